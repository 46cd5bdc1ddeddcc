package scanner

import (
	"encoding/json"
	"time"

	"warescan/internal/config"
	"warescan/internal/logger"
	"warescan/internal/models"
	"warescan/internal/protocol"
)

// CatalogSession is the generic lookup workflow: stream frames, render
// whatever the service recognizes. Optional search queries narrow the
// match set service-side.
type CatalogSession struct {
	*Session

	queries    []string
	matched    int
	detections []models.Detection
}

func NewCatalogSession(cfg *config.Config, log *logger.Logger, queries []string) *CatalogSession {
	c := &CatalogSession{queries: queries}
	c.Session = newSession(cfg, log, c)
	return c
}

func (c *CatalogSession) endpoint() string {
	return c.cfg.ServerURL + "/ws/scan"
}

func (c *CatalogSession) initMessage() interface{} {
	return protocol.NewInit(protocol.ModeCatalog, c.queries)
}

func (c *CatalogSession) frameInterval() time.Duration {
	return time.Duration(c.cfg.CatalogFrameInterval) * time.Millisecond
}

func (c *CatalogSession) handle(kind string, raw json.RawMessage) {
	switch kind {
	case protocol.KindInit:
		var p protocol.CatalogInitPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warning("Session %s: discarding init payload: %v", c.id, err)
			return
		}
		c.matched = p.MatchedProducts
		c.log.Info("Session %s: scanner initialized, %d matched products", c.id, p.MatchedProducts)
	case protocol.KindDetection:
		var p protocol.CatalogDetectionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warning("Session %s: discarding detection payload: %v", c.id, err)
			return
		}
		// Each detection list supersedes the previous one.
		c.detections = p.Detections
	}
}

func (c *CatalogSession) reset() {
	c.detections = nil
}

// Detections returns the current detection list for rendering.
func (c *CatalogSession) Detections() []models.Detection {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Detection, len(c.detections))
	copy(out, c.detections)
	return out
}

// MatchedProducts returns the service-reported match count (informational).
func (c *CatalogSession) MatchedProducts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matched
}
