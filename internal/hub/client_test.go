package hub

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillchat/quill/internal/config"
)

// startLivenessServer runs a WebSocket endpoint that registers each
// connection and counts teardowns. Mirrors the production wiring: onClose
// unregisters, and both pumps run per connection.
func startLivenessServer(t *testing.T, cfg config.WebSocketConfig, r *Registry, teardowns *int32) *httptest.Server {
	t.Helper()

	var next int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}

		id := fmt.Sprintf("conn-%d", atomic.AddInt32(&next, 1))
		c := NewClient(id, conn, cfg)
		c.Authenticate("u1", "alice")
		c.OnClose(func(cl *Client) {
			r.Unregister(cl)
			atomic.AddInt32(teardowns, 1)
		})
		r.Register(c)

		go c.WritePump()
		go c.ReadPump(func(*Client, []byte) {})
	}))

	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// drain keeps reading so control frames are processed. The default gorilla
// ping handler answers every ping with a pong.
func drain(conn *websocket.Conn) {
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestResponsivePeerStaysRegistered(t *testing.T) {
	cfg := testWSConfig()
	r := NewRegistry()
	var teardowns int32

	srv := startLivenessServer(t, cfg, r, &teardowns)
	conn := dialWS(t, srv)
	drain(conn)

	// Survive well over ten heartbeat cycles.
	time.Sleep(12 * cfg.PingInterval)

	if got := r.Len(); got != 1 {
		t.Fatalf("registry length = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&teardowns); got != 0 {
		t.Fatalf("teardowns = %d, want 0", got)
	}
}

func TestUnresponsivePeerIsEvicted(t *testing.T) {
	cfg := testWSConfig()
	r := NewRegistry()
	var teardowns int32

	srv := startLivenessServer(t, cfg, r, &teardowns)
	conn := dialWS(t, srv)

	// Swallow pings instead of answering them: a half-open peer.
	conn.SetPingHandler(func(string) error { return nil })
	drain(conn)

	waitFor(t, 2*time.Second, func() bool {
		return r.Len() == 0 && atomic.LoadInt32(&teardowns) == 1
	}, "dead connection evicted")

	// Teardown stays exactly-once.
	time.Sleep(4 * cfg.PingInterval)
	if got := atomic.LoadInt32(&teardowns); got != 1 {
		t.Fatalf("teardowns = %d, want 1", got)
	}
}

func TestGracefulCloseTearsDownOnce(t *testing.T) {
	cfg := testWSConfig()
	r := NewRegistry()
	var teardowns int32

	srv := startLivenessServer(t, cfg, r, &teardowns)
	conn := dialWS(t, srv)
	drain(conn)

	waitFor(t, time.Second, func() bool { return r.Len() == 1 }, "connection registered")

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, 2*time.Second, func() bool {
		return r.Len() == 0 && atomic.LoadInt32(&teardowns) == 1
	}, "graceful close unregisters")
}
