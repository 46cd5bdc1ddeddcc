package models

// Match classifications reported by the detection service.
const (
	MatchTypeMatch     = "match"
	MatchTypeNoMatch   = "no-match"
	MatchTypeAmbiguous = "ambiguous"
)

// Fulfillment modes for a pick item.
const (
	ModeBulk        = "bulk"
	ModeScanToCount = "scan-to-count"
)

// Pick request priorities accepted on submit.
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Product describes one catalog entry known to the detection service.
type Product struct {
	UPC          string `json:"upc"`
	Name         string `json:"name"`
	MainCategory string `json:"main_category"`
}

// Rect is a bounding rectangle in frame pixel space.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one recognized region from a single frame. Transient:
// superseded by the next detection message.
type Detection struct {
	Rect        *Rect  `json:"rect,omitempty"`
	UPC         string `json:"upc"`
	ProductName string `json:"product_name"`
	MatchType   string `json:"match_type"`
	Color       string `json:"color,omitempty"`
}

// CartItem is one line of a cart being built for a new pick request.
// The set of items is keyed by UPC; the server increments quantity on
// duplicate adds.
type CartItem struct {
	UPC         string `json:"upc"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// PickItem is one line of an existing pick request being fulfilled.
// Progress is authoritative only as last communicated by the server;
// Remaining and IsComplete are derived from the counts rather than
// trusted from the wire.
type PickItem struct {
	UPC          string `json:"upc"`
	ProductName  string `json:"product_name"`
	RequestedQty int    `json:"requested_qty"`
	PickedQty    int    `json:"picked_qty"`
	Mode         string `json:"mode"`
}

// Remaining returns how many units are still to pick, never negative.
func (p PickItem) Remaining() int {
	remaining := p.RequestedQty - p.PickedQty
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsComplete reports whether the item is fully picked.
func (p PickItem) IsComplete() bool {
	return p.Remaining() == 0
}
