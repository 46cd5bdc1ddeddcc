// Package protocol defines the JSON wire messages exchanged with the
// detection service. Every message is a flat object with a required
// "type" discriminator; payload fields sit alongside it at the top level.
package protocol

import (
	"encoding/json"
	"fmt"

	"warescan/internal/models"
)

// Inbound message kinds.
const (
	KindInit        = "init"
	KindDetection   = "detection"
	KindWarning     = "warning"
	KindCartUpdated = "cart_updated"
	KindSubmitted   = "submitted"
	KindUpdate      = "update"
	KindStatus      = "status"
	KindError       = "error"
)

// Outbound message kinds.
const (
	KindFrame        = "frame"
	KindAddItem      = "add_item"
	KindRemoveItem   = "remove_item"
	KindSubmit       = "submit"
	KindManualUpdate = "manual_update"
	KindGetStatus    = "get_status"
)

// Scanning modes announced in the init message.
const (
	ModeCatalog       = "catalog"
	ModeCreateRequest = "create-request"
	ModePick          = "pick"
)

// Envelope is one decoded inbound message: its kind plus the raw bytes
// for kind-specific unmarshalling.
type Envelope struct {
	Type string
	Raw  json.RawMessage
}

// Decode extracts the type discriminator from a raw inbound message.
// Messages without a type are malformed.
func Decode(raw []byte) (Envelope, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if head.Type == "" {
		return Envelope{}, fmt.Errorf("message has no type discriminator")
	}
	return Envelope{Type: head.Type, Raw: json.RawMessage(raw)}, nil
}

// ---- Inbound payloads ----

// CatalogInitPayload acknowledges a catalog session; the count is informational.
type CatalogInitPayload struct {
	MatchedProducts int `json:"matched_products"`
}

type CatalogDetectionPayload struct {
	Detections []models.Detection `json:"detections"`
}

// CartInitPayload carries the server-held cart at session start.
type CartInitPayload struct {
	Cart []models.CartItem `json:"cart"`
}

// CartDetectionPayload reports a single product recognized while building a cart.
type CartDetectionPayload struct {
	Found   bool            `json:"found"`
	Product *models.Product `json:"product,omitempty"`
	Rect    *models.Rect    `json:"rect,omitempty"`
	Color   string          `json:"color,omitempty"`
}

type CartUpdatedPayload struct {
	Items []models.CartItem `json:"items"`
}

type SubmittedPayload struct {
	RequestName string `json:"request_name"`
}

// PickInitPayload carries the item list for the request being fulfilled;
// StatusPayload carries the same shape on every refresh.
type PickInitPayload struct {
	Items []models.PickItem `json:"items"`
}

type StatusPayload struct {
	Items []models.PickItem `json:"items"`
}

// PickDetectionPayload reports a scanned product that belongs to the request.
type PickDetectionPayload struct {
	UPC          string       `json:"upc"`
	ProductName  string       `json:"product_name"`
	RequestedQty int          `json:"requested_qty"`
	PickedQty    int          `json:"picked_qty"`
	Mode         string       `json:"mode"`
	InRequest    bool         `json:"in_request"`
	Rect         *models.Rect `json:"rect,omitempty"`
}

// WarningPayload reports a scanned product that is not part of the request.
type WarningPayload struct {
	UPC     string       `json:"upc"`
	Message string       `json:"message,omitempty"`
	Rect    *models.Rect `json:"rect,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// ---- Outbound messages ----

type InitMessage struct {
	Type    string   `json:"type"`
	Queries []string `json:"queries,omitempty"`
	Mode    string   `json:"mode"`
}

func NewInit(mode string, queries []string) InitMessage {
	return InitMessage{Type: KindInit, Queries: queries, Mode: mode}
}

// FrameMessage carries one base64-encoded JPEG frame.
type FrameMessage struct {
	Type  string `json:"type"`
	Frame string `json:"frame"`
}

func NewFrame(frame string) FrameMessage {
	return FrameMessage{Type: KindFrame, Frame: frame}
}

type AddItemMessage struct {
	Type     string `json:"type"`
	UPC      string `json:"upc"`
	Quantity int    `json:"quantity"`
}

func NewAddItem(upc string, quantity int) AddItemMessage {
	return AddItemMessage{Type: KindAddItem, UPC: upc, Quantity: quantity}
}

type RemoveItemMessage struct {
	Type string `json:"type"`
	UPC  string `json:"upc"`
}

func NewRemoveItem(upc string) RemoveItemMessage {
	return RemoveItemMessage{Type: KindRemoveItem, UPC: upc}
}

type SubmitMessage struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Priority string `json:"priority"`
}

func NewSubmit(name, priority string) SubmitMessage {
	return SubmitMessage{Type: KindSubmit, Name: name, Priority: priority}
}

type ManualUpdateMessage struct {
	Type     string `json:"type"`
	UPC      string `json:"upc"`
	Quantity int    `json:"quantity"`
}

func NewManualUpdate(upc string, quantity int) ManualUpdateMessage {
	return ManualUpdateMessage{Type: KindManualUpdate, UPC: upc, Quantity: quantity}
}

type GetStatusMessage struct {
	Type string `json:"type"`
}

func NewGetStatus() GetStatusMessage {
	return GetStatusMessage{Type: KindGetStatus}
}

// ErrorMessage is emitted by the service side (mock included) for
// user-visible, non-fatal errors.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: KindError, Message: message}
}
