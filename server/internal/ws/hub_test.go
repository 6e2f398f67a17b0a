package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/livefeed/livefeed/pkg/types"
	"github.com/livefeed/livefeed/server/internal/config"
	"github.com/livefeed/livefeed/server/internal/metrics"
	wsHub "github.com/livefeed/livefeed/server/internal/ws"
)

// --- helpers ----------------------------------------------------------------

func newHub() *wsHub.Hub {
	cfg := config.Default().Hub
	return wsHub.New(cfg, metrics.NewHubMetrics(prometheus.NewRegistry()))
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = newHub()
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitCount polls until the hub reports want subscribers.
func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count: got %d, want %d", hub.Count(), want)
}

// readEvent reads one message from conn with a short deadline.
func readEvent(t *testing.T, conn *websocket.Conn) types.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev types.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal %s: %v", msg, err)
	}
	return ev
}

func rec(id, ts int64) types.Record {
	return types.Record{ID: id, Timestamp: ts, Body: "lorem"}
}

// --- tests ------------------------------------------------------------------

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t)

	for i := 0; i < 3; i++ {
		dial(t, wsURL)
	}
	waitCount(t, hub, 3)
}

func TestHub_CountDecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t)

	conn := dial(t, wsURL)
	waitCount(t, hub, 1)

	conn.Close()
	waitCount(t, hub, 0)
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	conn := dial(t, wsURL)
	waitCount(t, hub, 1)

	hub.Broadcast(types.InsertEvent(rec(1, 100)))

	ev := readEvent(t, conn)
	if ev.Type != types.EventInsert {
		t.Errorf("type: got %q, want insert", ev.Type)
	}
	if ev.Record != rec(1, 100) {
		t.Errorf("record: got %+v", ev.Record)
	}
}

func TestHub_PreservesOrderPerSubscriber(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	conns := []*websocket.Conn{dial(t, wsURL), dial(t, wsURL)}
	waitCount(t, hub, 2)

	const n = 100
	for i := int64(1); i <= n; i++ {
		switch i % 3 {
		case 0:
			hub.Broadcast(types.DeleteEvent(rec(i, i)))
		case 1:
			hub.Broadcast(types.InsertEvent(rec(i, i)))
		default:
			hub.Broadcast(types.MutateEvent(types.Mutation{Old: rec(i, i), New: rec(i, i)}))
		}
	}

	for ci, conn := range conns {
		for i := int64(1); i <= n; i++ {
			ev := readEvent(t, conn)
			if ev.Timestamp() != i {
				t.Fatalf("client %d: event %d has timestamp %d", ci, i, ev.Timestamp())
			}
		}
	}
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := newHub()
	// Must neither block nor panic.
	hub.Broadcast(types.InsertEvent(rec(1, 1)))
	if hub.Count() != 0 {
		t.Errorf("Count: got %d, want 0", hub.Count())
	}
}

func TestHub_InboundMessagesIgnored(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	conn := dial(t, wsURL)
	waitCount(t, hub, 1)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	hub.Broadcast(types.DeleteEvent(rec(5, 50)))

	ev := readEvent(t, conn)
	if ev.Type != types.EventDelete || ev.Record.ID != 5 {
		t.Errorf("event: got %+v", ev)
	}
	if hub.Count() != 1 {
		t.Errorf("Count: got %d, want 1", hub.Count())
	}
}

func TestHub_ClosedSubscriberDoesNotAffectOthers(t *testing.T) {
	wsURL, hub, _ := startHub(t)
	gone := dial(t, wsURL)
	live := dial(t, wsURL)
	waitCount(t, hub, 2)

	gone.Close()
	hub.Broadcast(types.InsertEvent(rec(1, 1)))
	hub.Broadcast(types.InsertEvent(rec(2, 2)))

	if ev := readEvent(t, live); ev.Record.ID != 1 {
		t.Errorf("first event id: got %d, want 1", ev.Record.ID)
	}
	if ev := readEvent(t, live); ev.Record.ID != 2 {
		t.Errorf("second event id: got %d, want 2", ev.Record.ID)
	}
	waitCount(t, hub, 1)
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t)

	conn := dial(t, wsURL)
	waitCount(t, hub, 1)

	cancel()
	waitCount(t, hub, 0)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage after shutdown: expected close error")
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	srv := httptest.NewServer(newHub())
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers -> 400
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
