package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quillchat/quill/internal/audit"
	"github.com/quillchat/quill/internal/auth"
	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/domain"
	"github.com/quillchat/quill/internal/hub"
	"github.com/quillchat/quill/internal/log"
	"github.com/quillchat/quill/internal/presence"
	"github.com/quillchat/quill/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler accepts WebSocket connections and dispatches inbound frames.
type WSHandler struct {
	registry    *hub.Registry
	broadcaster *presence.Broadcaster
	service     service.DMService
	resolver    *auth.Resolver
	wsCfg       config.WebSocketConfig
}

// NewWSHandler creates the WebSocket handler.
func NewWSHandler(
	registry *hub.Registry,
	broadcaster *presence.Broadcaster,
	svc service.DMService,
	resolver *auth.Resolver,
	wsCfg config.WebSocketConfig,
) *WSHandler {
	return &WSHandler{
		registry:    registry,
		broadcaster: broadcaster,
		service:     svc,
		resolver:    resolver,
		wsCfg:       wsCfg,
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection, resolves the session cookie, and
// places the client under registry and liveness supervision. A handshake
// without a valid credential is still accepted at the transport level; the
// connection just carries no identity and appears in no roster or routing
// lookups.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	identity, authErr := h.resolver.FromRequest(c.Request)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), conn, h.wsCfg)
	if authErr == nil {
		client.Authenticate(identity.UserID, identity.Username)
	} else {
		l := log.L()
		l.Debug().Err(authErr).Str(log.FieldConnID, client.ID).Msg("unauthenticated websocket connection")
	}

	client.OnClose(func(cl *hub.Client) {
		h.registry.Unregister(cl)
		h.broadcaster.BroadcastRoster()
		audit.Log(context.Background(), audit.ActionDisconnect, cl.UserID, "connection closed")
	})

	h.registry.Register(client)
	h.broadcaster.BroadcastRoster()
	audit.Log(c.Request.Context(), audit.ActionConnect, client.UserID, "connection established")

	go client.WritePump()
	go client.ReadPump(h.handleFrame)
}

// handleFrame routes one inbound frame. Malformed or invalid frames are
// dropped after logging; they never tear down the connection.
func (h *WSHandler) handleFrame(client *hub.Client, message []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldConnID, client.ID).Msg("malformed frame")
		return
	}

	ctx := context.Background()

	if env.UserStatusUpdate != nil {
		h.service.HandleStatusUpdate(ctx, client, *env.UserStatusUpdate)
		return
	}

	if err := h.service.HandleDirectMessage(ctx, client, env); err != nil {
		l := log.L()
		switch {
		case errors.Is(err, service.ErrInvalidMessage), errors.Is(err, service.ErrUnauthenticated):
			l.Warn().Err(err).Str(log.FieldConnID, client.ID).Str(log.FieldUserID, client.UserID).Msg("message rejected")
		default:
			l.Error().Err(err).Str(log.FieldConnID, client.ID).Str(log.FieldUserID, client.UserID).Msg("message handling failed")
		}
	}
}
