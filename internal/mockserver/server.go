// Package mockserver is a local stand-in for the remote detection service,
// used to exercise the scanner without the real computer-vision backend.
// It speaks the same wire protocol over the same three endpoints and
// fabricates a detection every Nth frame from its product catalog.
package mockserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"warescan/internal/logger"
	"warescan/internal/models"
	"warescan/internal/protocol"
	"warescan/internal/repository/sqlite"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	log         *logger.Logger
	products    *sqlite.ProductRepository
	detectEvery int

	mu       sync.Mutex
	requests map[string][]models.PickItem // submitted pick requests by name
}

func New(log *logger.Logger, products *sqlite.ProductRepository, detectEvery int) *Server {
	if detectEvery < 1 {
		detectEvery = 1
	}
	return &Server{
		log:         log,
		products:    products,
		detectEvery: detectEvery,
		requests:    make(map[string][]models.PickItem),
	}
}

// Router wires the three workflow endpoints under /api/v1.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/ws/scan", s.handleCatalog)
	api.HandleFunc("/ws/create-request", s.handleCreateRequest)
	api.HandleFunc("/ws/pick/{request}", s.handlePick)
	return r
}

// authorize rejects connections without a bearer token before the upgrade.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Query().Get("token") == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return false
	}
	return true
}

func (s *Server) send(conn *websocket.Conn, v interface{}) {
	if err := conn.WriteJSON(v); err != nil {
		s.log.Warning("Mock write failed: %v", err)
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warning("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	matched, err := s.products.GetAll("")
	if err != nil {
		s.send(conn, protocol.NewError("catalog unavailable"))
		return
	}

	frames := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			s.log.Warning("Mock discarding malformed message: %v", err)
			continue
		}

		switch env.Type {
		case protocol.KindInit:
			var init protocol.InitMessage
			if err := json.Unmarshal(env.Raw, &init); err != nil {
				continue
			}
			query := ""
			if len(init.Queries) > 0 {
				query = init.Queries[0]
			}
			if matched, err = s.products.GetAll(query); err != nil {
				s.send(conn, protocol.NewError("catalog unavailable"))
				continue
			}
			s.send(conn, map[string]interface{}{
				"type":             protocol.KindInit,
				"matched_products": len(matched),
			})
		case protocol.KindFrame:
			frames++
			if frames%s.detectEvery != 0 || len(matched) == 0 {
				continue
			}
			p := matched[(frames/s.detectEvery-1)%len(matched)]
			s.send(conn, map[string]interface{}{
				"type": protocol.KindDetection,
				"detections": []models.Detection{{
					Rect:        fabricateRect(frames),
					UPC:         p.UPC,
					ProductName: p.Name,
					MatchType:   models.MatchTypeMatch,
					Color:       "green",
				}},
			})
		}
	}
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warning("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	catalog, err := s.products.GetAll("")
	if err != nil {
		s.send(conn, protocol.NewError("catalog unavailable"))
		return
	}

	cart := []models.CartItem{}
	s.send(conn, map[string]interface{}{"type": protocol.KindInit, "cart": cart})

	frames := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			s.log.Warning("Mock discarding malformed message: %v", err)
			continue
		}

		switch env.Type {
		case protocol.KindFrame:
			frames++
			if frames%s.detectEvery != 0 || len(catalog) == 0 {
				continue
			}
			p := catalog[(frames/s.detectEvery-1)%len(catalog)]
			s.send(conn, map[string]interface{}{
				"type":    protocol.KindDetection,
				"found":   true,
				"product": p,
				"rect":    fabricateRect(frames),
				"color":   "blue",
			})
		case protocol.KindAddItem:
			var msg protocol.AddItemMessage
			if err := json.Unmarshal(env.Raw, &msg); err != nil || msg.Quantity <= 0 {
				s.send(conn, protocol.NewError("invalid add_item"))
				continue
			}
			product, err := s.products.GetByUPC(msg.UPC)
			if err != nil || product == nil {
				s.send(conn, protocol.NewError("unknown product "+msg.UPC))
				continue
			}
			found := false
			for i := range cart {
				if cart[i].UPC == msg.UPC {
					cart[i].Quantity += msg.Quantity
					found = true
					break
				}
			}
			if !found {
				cart = append(cart, models.CartItem{
					UPC:         product.UPC,
					ProductName: product.Name,
					Quantity:    msg.Quantity,
				})
			}
			s.send(conn, map[string]interface{}{"type": protocol.KindCartUpdated, "items": cart})
		case protocol.KindRemoveItem:
			var msg protocol.RemoveItemMessage
			if err := json.Unmarshal(env.Raw, &msg); err != nil {
				continue
			}
			kept := cart[:0]
			for _, item := range cart {
				if item.UPC != msg.UPC {
					kept = append(kept, item)
				}
			}
			cart = kept
			s.send(conn, map[string]interface{}{"type": protocol.KindCartUpdated, "items": cart})
		case protocol.KindSubmit:
			var msg protocol.SubmitMessage
			if err := json.Unmarshal(env.Raw, &msg); err != nil || strings.TrimSpace(msg.Name) == "" {
				s.send(conn, protocol.NewError("invalid submit"))
				continue
			}
			if len(cart) == 0 {
				s.send(conn, protocol.NewError("cart is empty"))
				continue
			}
			s.storeRequest(msg.Name, cart)
			s.send(conn, map[string]interface{}{
				"type":         protocol.KindSubmitted,
				"request_name": msg.Name,
			})
			return
		}
	}
}

func (s *Server) handlePick(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(w, r) {
		return
	}
	requestName := mux.Vars(r)["request"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warning("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	catalog, err := s.products.GetAll("")
	if err != nil {
		s.send(conn, protocol.NewError("catalog unavailable"))
		return
	}

	items := s.lookupRequest(requestName)
	if items == nil {
		// Unknown request: synthesize one so picking can be exercised.
		for i, p := range catalog {
			if i >= 3 {
				break
			}
			mode := models.ModeBulk
			if i%2 == 1 {
				mode = models.ModeScanToCount
			}
			items = append(items, models.PickItem{
				UPC:          p.UPC,
				ProductName:  p.Name,
				RequestedQty: 5 - i,
				Mode:         mode,
			})
		}
	}

	s.send(conn, map[string]interface{}{"type": protocol.KindInit, "items": items})

	frames := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			s.log.Warning("Mock discarding malformed message: %v", err)
			continue
		}

		switch env.Type {
		case protocol.KindFrame:
			frames++
			if frames%s.detectEvery != 0 || len(catalog) == 0 {
				continue
			}
			p := catalog[(frames/s.detectEvery-1)%len(catalog)]
			idx := -1
			for i := range items {
				if items[i].UPC == p.UPC {
					idx = i
					break
				}
			}
			if idx < 0 {
				s.send(conn, map[string]interface{}{
					"type":    protocol.KindWarning,
					"upc":     p.UPC,
					"message": "barcode not in this request",
					"rect":    fabricateRect(frames),
				})
				continue
			}
			if items[idx].Mode == models.ModeScanToCount && !items[idx].IsComplete() {
				items[idx].PickedQty++
			}
			s.send(conn, map[string]interface{}{
				"type":          protocol.KindDetection,
				"upc":           items[idx].UPC,
				"product_name":  items[idx].ProductName,
				"requested_qty": items[idx].RequestedQty,
				"picked_qty":    items[idx].PickedQty,
				"mode":          items[idx].Mode,
				"in_request":    true,
				"rect":          fabricateRect(frames),
			})
		case protocol.KindManualUpdate:
			var msg protocol.ManualUpdateMessage
			if err := json.Unmarshal(env.Raw, &msg); err != nil || msg.Quantity < 0 {
				s.send(conn, protocol.NewError("invalid manual_update"))
				continue
			}
			updated := false
			for i := range items {
				if items[i].UPC == msg.UPC {
					items[i].PickedQty = msg.Quantity
					updated = true
					break
				}
			}
			if !updated {
				s.send(conn, protocol.NewError("item not in request: "+msg.UPC))
				continue
			}
			s.send(conn, map[string]interface{}{"type": protocol.KindUpdate})
		case protocol.KindGetStatus:
			s.send(conn, map[string]interface{}{"type": protocol.KindStatus, "items": items})
		}
	}
}

// storeRequest converts a submitted cart into pickable items. Every other
// line alternates fulfillment mode so both paths are exercised.
func (s *Server) storeRequest(name string, cart []models.CartItem) {
	items := make([]models.PickItem, 0, len(cart))
	for i, line := range cart {
		mode := models.ModeBulk
		if i%2 == 1 {
			mode = models.ModeScanToCount
		}
		items = append(items, models.PickItem{
			UPC:          line.UPC,
			ProductName:  line.ProductName,
			RequestedQty: line.Quantity,
			Mode:         mode,
		})
	}

	s.mu.Lock()
	s.requests[name] = items
	s.mu.Unlock()
	s.log.Info("Mock stored pick request %q with %d items", name, len(items))
}

func (s *Server) lookupRequest(name string) []models.PickItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[name]
	if !ok {
		return nil
	}
	items := make([]models.PickItem, len(stored))
	copy(items, stored)
	return items
}

// fabricateRect drifts a plausible bounding box around the frame.
func fabricateRect(frames int) *models.Rect {
	return &models.Rect{
		X:      100 + (frames*13)%300,
		Y:      80 + (frames*7)%200,
		Width:  160,
		Height: 90,
	}
}
