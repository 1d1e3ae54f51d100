package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/log"
)

// LivenessState is the per-connection heartbeat state.
type LivenessState int32

const (
	// StateAlive: the peer answered the last ping (or none was sent yet).
	StateAlive LivenessState = iota
	// StateAwaitingPong: a ping is in flight and the deadline timer is armed.
	StateAwaitingPong
	// StateDead: terminal. The transport has been closed and the entry
	// removed from the registry; a reconnect creates a fresh Client.
	StateDead
)

var (
	// ErrConnClosed is returned when sending to a torn-down connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the peer cannot keep up with its
	// outbound queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one live WebSocket connection. UserID/Username are empty for
// connections whose handshake carried no valid credential; such clients
// receive pushes but appear in no roster or routing lookups.
//
// The Client owns its deadline timer and stops it on every teardown path.
type Client struct {
	ID       string
	UserID   string
	Username string

	Conn *websocket.Conn
	Send chan []byte

	cfg config.WebSocketConfig

	mu       sync.Mutex
	state    LivenessState
	deadline *time.Timer

	done      chan struct{}
	closeOnce sync.Once

	// onClose runs exactly once after the transport is closed, on both
	// graceful close and liveness-timeout termination.
	onClose func(*Client)
}

// NewClient creates a Client for an upgraded connection.
func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		ID:    id,
		Conn:  conn,
		Send:  make(chan []byte, cfg.SendBuffer),
		cfg:   cfg,
		state: StateAlive,
		done:  make(chan struct{}),
	}
}

// Authenticate binds a verified identity to the connection.
func (c *Client) Authenticate(userID, username string) {
	c.UserID = userID
	c.Username = username
}

// Authenticated reports whether the handshake carried a valid credential.
func (c *Client) Authenticated() bool {
	return c.UserID != ""
}

// OnClose registers the teardown hook. Must be set before the pumps start.
func (c *Client) OnClose(fn func(*Client)) {
	c.onClose = fn
}

// State returns the current liveness state.
func (c *Client) State() LivenessState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReadPump consumes inbound frames and dispatches them to handler. It owns
// the connection teardown: when the read loop exits for any reason the
// client is torn down exactly once.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer c.Teardown()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetPongHandler(func(string) error {
		c.pong()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str(log.FieldConnID, c.ID).Msg("read error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump serializes all writes to the connection: queued frames plus the
// periodic heartbeat ping.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			if !c.beginHeartbeat() {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// SendFrame marshals v and queues it for delivery. Best effort: a closed
// connection or a full buffer is the caller's signal to skip this peer,
// never to block.
func (c *Client) SendFrame(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// beginHeartbeat transitions Alive -> AwaitingPong and arms the deadline
// timer. Returns false once the client is Dead.
func (c *Client) beginHeartbeat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDead {
		return false
	}
	c.state = StateAwaitingPong
	if c.deadline != nil {
		c.deadline.Stop()
	}
	c.deadline = time.AfterFunc(c.cfg.PongWait, c.expire)
	return true
}

// pong transitions AwaitingPong -> Alive and disarms the deadline timer.
func (c *Client) pong() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingPong {
		return
	}
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
	c.state = StateAlive
}

// expire fires when the deadline passes without a pong: the peer is
// half-open. Transition to Dead and force-close the transport.
func (c *Client) expire() {
	c.mu.Lock()
	if c.state != StateAwaitingPong {
		c.mu.Unlock()
		return
	}
	c.state = StateDead
	c.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldConnID, c.ID).Str(log.FieldUserID, c.UserID).Msg("liveness deadline expired, terminating connection")
	c.Teardown()
}

// Teardown closes the transport and runs the onClose hook exactly once.
// Every exit route converges here: graceful peer close, read/write errors,
// and the Dead-state forced termination.
func (c *Client) Teardown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateDead
		if c.deadline != nil {
			c.deadline.Stop()
			c.deadline = nil
		}
		c.mu.Unlock()

		close(c.done)
		c.Conn.Close()

		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
