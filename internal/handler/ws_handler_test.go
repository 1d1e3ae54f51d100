package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/quillchat/quill/internal/auth"
	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/domain"
	"github.com/quillchat/quill/internal/hub"
	"github.com/quillchat/quill/internal/presence"
	"github.com/quillchat/quill/internal/service"
	"github.com/quillchat/quill/internal/storage"
)

type wsStack struct {
	srv      *httptest.Server
	resolver *auth.Resolver
	messages *memMessageRepo
	registry *hub.Registry
}

func newWSStack(t *testing.T) *wsStack {
	t.Helper()

	files, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	resolver := auth.NewResolver(auth.Config{Secret: "test-secret", TokenTTL: time.Hour, Issuer: "quill-test"})
	messages := &memMessageRepo{}

	registry := hub.NewRegistry()
	broadcaster := presence.NewBroadcaster(registry)
	svc := service.NewDMService(registry, broadcaster, messages, files, false)

	// Heartbeat long enough that no ping fires during a test; eviction
	// behavior is covered by the hub tests.
	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 1 << 20,
		SendBuffer:     16,
	}

	engine := gin.New()
	NewWSHandler(registry, broadcaster, svc, resolver, wsCfg).RegisterRoutes(engine)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &wsStack{srv: srv, resolver: resolver, messages: messages, registry: registry}
}

// dial opens a WebSocket connection, optionally carrying a session cookie.
func (s *wsStack) dial(t *testing.T, userID, username string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if userID != "" {
		token, err := s.resolver.Issue(userID, username)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}
		header.Set("Cookie", auth.CookieName+"="+token)
	}

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match accepts one. The default gorilla ping
// handler answers heartbeats along the way, so reading also keeps the
// connection alive.
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]json.RawMessage) bool, what string) map[string]json.RawMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		var frame map[string]json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		if match(frame) {
			return frame
		}
	}
}

func rosterOfSize(n int) func(map[string]json.RawMessage) bool {
	return func(frame map[string]json.RawMessage) bool {
		raw, ok := frame["online"]
		if !ok {
			return false
		}
		var online []domain.OnlineUser
		if err := json.Unmarshal(raw, &online); err != nil {
			return false
		}
		return len(online) == n
	}
}

func TestRosterFollowsConnectionLifecycle(t *testing.T) {
	s := newWSStack(t)

	alice := s.dial(t, "u1", "alice")
	readUntil(t, alice, rosterOfSize(1), "roster with alice")

	bob := s.dial(t, "u2", "bob")
	readUntil(t, alice, rosterOfSize(2), "roster with both")
	readUntil(t, bob, rosterOfSize(2), "roster with both")

	bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	bob.Close()

	readUntil(t, alice, rosterOfSize(1), "roster after bob left")
}

func TestMessageDeliveredToRecipient(t *testing.T) {
	s := newWSStack(t)

	alice := s.dial(t, "u1", "alice")
	bob := s.dial(t, "u2", "bob")
	readUntil(t, bob, rosterOfSize(2), "roster with both")

	env := domain.Envelope{Recipient: "u2", Text: "hello bob"}
	if err := alice.WriteJSON(env); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	frame := readUntil(t, bob, func(f map[string]json.RawMessage) bool {
		_, ok := f["id"]
		return ok
	}, "delivered message")

	var msg domain.MessageFrame
	raw, _ := json.Marshal(frame)
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("bad message frame: %v", err)
	}
	if msg.Sender != "u1" || msg.Recipient != "u2" || msg.Text != "hello bob" || msg.ID == "" {
		t.Fatalf("message frame = %+v", msg)
	}

	if s.messages.count() != 1 {
		t.Fatalf("persisted %d messages, want 1", s.messages.count())
	}
}

func TestStatusUpdateBroadcast(t *testing.T) {
	s := newWSStack(t)

	alice := s.dial(t, "u1", "alice")
	bob := s.dial(t, "u2", "bob")
	readUntil(t, bob, rosterOfSize(2), "roster with both")

	env := domain.Envelope{UserStatusUpdate: &domain.StatusUpdate{UserID: "u1", Status: "away"}}
	if err := alice.WriteJSON(env); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	frame := readUntil(t, bob, func(f map[string]json.RawMessage) bool {
		_, ok := f["userStatusUpdate"]
		return ok
	}, "status broadcast")

	var status domain.StatusFrame
	raw, _ := json.Marshal(frame)
	if err := json.Unmarshal(raw, &status); err != nil {
		t.Fatalf("bad status frame: %v", err)
	}
	if status.UserStatusUpdate.UserID != "u1" || status.UserStatusUpdate.Status != "away" {
		t.Fatalf("status frame = %+v", status.UserStatusUpdate)
	}
}

func TestAnonymousConnectionCannotSend(t *testing.T) {
	s := newWSStack(t)

	alice := s.dial(t, "u1", "alice")
	anon := s.dial(t, "", "")

	// Anonymous connections receive pushes but never appear in the roster.
	readUntil(t, anon, rosterOfSize(1), "roster push to anonymous connection")

	env := domain.Envelope{Recipient: "u1", Text: "forged"}
	if err := anon.WriteJSON(env); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// The rejected frame is dropped without persisting or delivering.
	time.Sleep(100 * time.Millisecond)
	if s.messages.count() != 0 {
		t.Fatalf("persisted %d messages from anonymous sender, want 0", s.messages.count())
	}

	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		_, data, err := alice.ReadMessage()
		if err != nil {
			break
		}
		var frame map[string]json.RawMessage
		if json.Unmarshal(data, &frame) == nil {
			if _, ok := frame["id"]; ok {
				t.Fatalf("anonymous message delivered: %s", data)
			}
		}
	}
}

func TestMalformedFrameKeepsConnectionAlive(t *testing.T) {
	s := newWSStack(t)

	alice := s.dial(t, "u1", "alice")
	readUntil(t, alice, rosterOfSize(1), "initial roster")

	if err := alice.WriteMessage(websocket.TextMessage, []byte("not json{")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// Connection survives the bad frame and still serves broadcasts.
	s.dial(t, "u2", "bob")
	readUntil(t, alice, rosterOfSize(2), "roster after malformed frame")
}
