package mockserver

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"warescan/internal/logger"
	"warescan/internal/models"
	"warescan/internal/protocol"
	"warescan/internal/repository/sqlite"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewProductRepository(db)
	if err := repo.Seed(); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	srv := New(logger.New(t.TempDir()), repo, 2)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial %s failed: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Server sent a message without a type: %s", raw)
	}
	return env
}

func TestMissingToken_Rejected(t *testing.T) {
	ts := testServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws/scan"
	_, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Handshake without a token should be rejected")
	}
}

func TestCatalog_InitAndDetection(t *testing.T) {
	ts := testServer(t)
	conn := dialWS(t, ts, "/api/v1/ws/scan", "tok")

	if err := conn.WriteJSON(protocol.NewInit(protocol.ModeCatalog, nil)); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != protocol.KindInit {
		t.Fatalf("Expected init, got %q", env.Type)
	}
	var init protocol.CatalogInitPayload
	if err := json.Unmarshal(env.Raw, &init); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if init.MatchedProducts == 0 {
		t.Error("Seeded catalog should report matched products")
	}

	// detectEvery is 2: the second frame produces a detection.
	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(protocol.NewFrame("ZnJhbWU=")); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
	}

	env = readEnvelope(t, conn)
	if env.Type != protocol.KindDetection {
		t.Fatalf("Expected detection, got %q", env.Type)
	}
	var det protocol.CatalogDetectionPayload
	if err := json.Unmarshal(env.Raw, &det); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(det.Detections) != 1 || det.Detections[0].UPC == "" || det.Detections[0].Rect == nil {
		t.Errorf("Unexpected detection payload: %+v", det)
	}
}

func TestCreateRequest_CartLifecycle(t *testing.T) {
	ts := testServer(t)
	conn := dialWS(t, ts, "/api/v1/ws/create-request", "tok")

	env := readEnvelope(t, conn)
	if env.Type != protocol.KindInit {
		t.Fatalf("Expected init, got %q", env.Type)
	}
	var init protocol.CartInitPayload
	if err := json.Unmarshal(env.Raw, &init); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(init.Cart) != 0 {
		t.Errorf("Expected an empty starting cart, got %v", init.Cart)
	}

	// Duplicate adds must increment, not duplicate.
	upc := "036000291452"
	conn.WriteJSON(protocol.NewAddItem(upc, 2))
	readEnvelope(t, conn) // first cart_updated
	conn.WriteJSON(protocol.NewAddItem(upc, 3))

	env = readEnvelope(t, conn)
	if env.Type != protocol.KindCartUpdated {
		t.Fatalf("Expected cart_updated, got %q", env.Type)
	}
	var updated protocol.CartUpdatedPayload
	if err := json.Unmarshal(env.Raw, &updated); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(updated.Items) != 1 || updated.Items[0].Quantity != 5 {
		t.Errorf("Expected one line with quantity 5, got %v", updated.Items)
	}

	conn.WriteJSON(protocol.NewSubmit("mon-01", models.PriorityNormal))
	env = readEnvelope(t, conn)
	if env.Type != protocol.KindSubmitted {
		t.Fatalf("Expected submitted, got %q", env.Type)
	}
	var sub protocol.SubmittedPayload
	if err := json.Unmarshal(env.Raw, &sub); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if sub.RequestName != "mon-01" {
		t.Errorf("Expected request name mon-01, got %q", sub.RequestName)
	}
}

func TestCreateRequest_UnknownProduct(t *testing.T) {
	ts := testServer(t)
	conn := dialWS(t, ts, "/api/v1/ws/create-request", "tok")
	readEnvelope(t, conn) // init

	conn.WriteJSON(protocol.NewAddItem("no-such-upc", 1))

	env := readEnvelope(t, conn)
	if env.Type != protocol.KindError {
		t.Fatalf("Expected error for unknown UPC, got %q", env.Type)
	}
}

func TestPick_ManualUpdateAndStatus(t *testing.T) {
	ts := testServer(t)
	conn := dialWS(t, ts, "/api/v1/ws/pick/any-request", "tok")

	env := readEnvelope(t, conn)
	if env.Type != protocol.KindInit {
		t.Fatalf("Expected init, got %q", env.Type)
	}
	var init protocol.PickInitPayload
	if err := json.Unmarshal(env.Raw, &init); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(init.Items) == 0 {
		t.Fatal("Expected synthesized items for an unknown request")
	}

	target := init.Items[0]
	conn.WriteJSON(protocol.NewManualUpdate(target.UPC, target.RequestedQty))
	env = readEnvelope(t, conn)
	if env.Type != protocol.KindUpdate {
		t.Fatalf("Expected update ack, got %q", env.Type)
	}

	conn.WriteJSON(protocol.NewGetStatus())
	env = readEnvelope(t, conn)
	if env.Type != protocol.KindStatus {
		t.Fatalf("Expected status, got %q", env.Type)
	}
	var status protocol.StatusPayload
	if err := json.Unmarshal(env.Raw, &status); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, item := range status.Items {
		if item.UPC == target.UPC {
			if !item.IsComplete() || item.Remaining() != 0 {
				t.Errorf("Expected item complete after manual update, got %+v", item)
			}
			return
		}
	}
	t.Errorf("Item %s missing from status", target.UPC)
}
