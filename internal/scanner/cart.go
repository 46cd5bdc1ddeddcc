package scanner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"warescan/internal/config"
	"warescan/internal/logger"
	"warescan/internal/models"
	"warescan/internal/protocol"
)

// CartSession builds a cart for a new pick request. The visible cart is
// exactly the last server echo; add/remove/submit commands are never
// applied locally.
type CartSession struct {
	*Session

	cart         []models.CartItem
	pending      *models.Product
	pendingRect  *models.Rect
	pendingColor string
	requestName  string
}

func NewCartSession(cfg *config.Config, log *logger.Logger) *CartSession {
	c := &CartSession{}
	c.Session = newSession(cfg, log, c)
	return c
}

func (c *CartSession) endpoint() string {
	return c.cfg.ServerURL + "/ws/create-request"
}

func (c *CartSession) initMessage() interface{} {
	return protocol.NewInit(protocol.ModeCreateRequest, nil)
}

func (c *CartSession) frameInterval() time.Duration {
	return time.Duration(c.cfg.CatalogFrameInterval) * time.Millisecond
}

func (c *CartSession) handle(kind string, raw json.RawMessage) {
	switch kind {
	case protocol.KindInit:
		var p protocol.CartInitPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warning("Session %s: discarding init payload: %v", c.id, err)
			return
		}
		c.cart = p.Cart
	case protocol.KindDetection:
		var p protocol.CartDetectionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warning("Session %s: discarding detection payload: %v", c.id, err)
			return
		}
		if p.Found && p.Product != nil {
			c.pending = p.Product
			c.pendingRect = p.Rect
			c.pendingColor = p.Color
		}
	case protocol.KindCartUpdated:
		var p protocol.CartUpdatedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warning("Session %s: discarding cart_updated payload: %v", c.id, err)
			return
		}
		c.cart = p.Items
		c.pending = nil
		c.pendingRect = nil
		c.pendingColor = ""
	case protocol.KindSubmitted:
		var p protocol.SubmittedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warning("Session %s: discarding submitted payload: %v", c.id, err)
			return
		}
		c.requestName = p.RequestName
		c.finishLocked()
		c.log.Info("Session %s: pick request %q created", c.id, p.RequestName)
	}
}

func (c *CartSession) reset() {
	c.cart = nil
	c.pending = nil
	c.pendingRect = nil
	c.pendingColor = ""
}

// AddItem asks the server to add the detected product to the cart. The cart
// itself only changes on the cart_updated echo; duplicate UPCs are
// incremented server-side.
func (c *CartSession) AddItem(upc string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return fmt.Errorf("cannot add item: session is %s", c.state)
	}
	c.sendLocked(protocol.NewAddItem(upc, quantity))
	return nil
}

// RemoveItem asks the server to drop the cart line for upc.
func (c *CartSession) RemoveItem(upc string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return fmt.Errorf("cannot remove item: session is %s", c.state)
	}
	c.sendLocked(protocol.NewRemoveItem(upc))
	return nil
}

// Submit asks the server to persist the cart as a named pick request.
// The session reaches Submitted only on the server's confirmation.
func (c *CartSession) Submit(name, priority string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("request name is required")
	}
	switch priority {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	case "":
		priority = models.PriorityNormal
	default:
		return fmt.Errorf("invalid priority %q", priority)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return fmt.Errorf("cannot submit: session is %s", c.state)
	}
	if len(c.cart) == 0 {
		return fmt.Errorf("cannot submit an empty cart")
	}
	c.sendLocked(protocol.NewSubmit(name, priority))
	return nil
}

// Cart returns the server-confirmed cart contents.
func (c *CartSession) Cart() []models.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CartItem, len(c.cart))
	copy(out, c.cart)
	return out
}

// PendingProduct returns the currently detected product awaiting the user's
// add confirmation, or nil.
func (c *CartSession) PendingProduct() *models.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	p := *c.pending
	return &p
}

// RequestName returns the created request's name once the session is Submitted.
func (c *CartSession) RequestName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestName
}
