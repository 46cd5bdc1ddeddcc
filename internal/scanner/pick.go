package scanner

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"warescan/internal/config"
	"warescan/internal/logger"
	"warescan/internal/models"
	"warescan/internal/protocol"
)

// ScanResult is the transient outcome of the most recent scan while
// fulfilling a request: a success for products that belong to the request,
// a failure for ones that do not.
type ScanResult struct {
	UPC          string
	ProductName  string
	RequestedQty int
	PickedQty    int
	Mode         string
	InRequest    bool
	Rect         *models.Rect
	At           time.Time
}

// PickSession fulfills an existing pick request. The item list is
// authoritative only as last communicated by the server; progress never
// advances locally without a server confirmation.
type PickSession struct {
	*Session

	request string
	items   []models.PickItem
	last    *ScanResult
}

func NewPickSession(cfg *config.Config, log *logger.Logger, requestName string) *PickSession {
	p := &PickSession{request: requestName}
	p.Session = newSession(cfg, log, p)
	return p
}

func (p *PickSession) endpoint() string {
	return p.cfg.ServerURL + "/ws/pick/" + url.PathEscape(p.request)
}

func (p *PickSession) initMessage() interface{} {
	return protocol.NewInit(protocol.ModePick, nil)
}

func (p *PickSession) frameInterval() time.Duration {
	return time.Duration(p.cfg.PickFrameInterval) * time.Millisecond
}

func (p *PickSession) handle(kind string, raw json.RawMessage) {
	switch kind {
	case protocol.KindInit, protocol.KindStatus:
		var payload protocol.StatusPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			p.log.Warning("Session %s: discarding %s payload: %v", p.id, kind, err)
			return
		}
		p.items = payload.Items
	case protocol.KindDetection:
		var payload protocol.PickDetectionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			p.log.Warning("Session %s: discarding detection payload: %v", p.id, err)
			return
		}
		p.last = &ScanResult{
			UPC:          payload.UPC,
			ProductName:  payload.ProductName,
			RequestedQty: payload.RequestedQty,
			PickedQty:    payload.PickedQty,
			Mode:         payload.Mode,
			InRequest:    true,
			Rect:         payload.Rect,
			At:           time.Now(),
		}
		// The scan may have advanced progress server-side; refresh.
		p.sendLocked(protocol.NewGetStatus())
	case protocol.KindWarning:
		var payload protocol.WarningPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			p.log.Warning("Session %s: discarding warning payload: %v", p.id, err)
			return
		}
		p.last = &ScanResult{
			UPC:       payload.UPC,
			InRequest: false,
			Rect:      payload.Rect,
			At:        time.Now(),
		}
	case protocol.KindUpdate:
		p.sendLocked(protocol.NewGetStatus())
	}
}

func (p *PickSession) reset() {
	p.items = nil
	p.last = nil
}

// ManualUpdate sets the picked quantity of a bulk-mode item directly.
// The item list only changes when the server's update/status echo arrives.
func (p *PickSession) ManualUpdate(upc string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("quantity cannot be negative, got %d", quantity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return fmt.Errorf("cannot update: session is %s", p.state)
	}
	p.sendLocked(protocol.NewManualUpdate(upc, quantity))
	return nil
}

// RefreshStatus asks the server for the current item list.
func (p *PickSession) RefreshStatus() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateActive {
		return fmt.Errorf("cannot refresh: session is %s", p.state)
	}
	p.sendLocked(protocol.NewGetStatus())
	return nil
}

// RequestName returns the name of the request being fulfilled.
func (p *PickSession) RequestName() string {
	return p.request
}

// Items returns the server-confirmed item list.
func (p *PickSession) Items() []models.PickItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.PickItem, len(p.items))
	copy(out, p.items)
	return out
}

// LastResult returns the most recent scan outcome, or nil.
func (p *PickSession) LastResult() *ScanResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	r := *p.last
	return &r
}

// Progress returns how many items are complete out of the total.
func (p *PickSession) Progress() (complete, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.items {
		if item.IsComplete() {
			complete++
		}
	}
	return complete, len(p.items)
}
