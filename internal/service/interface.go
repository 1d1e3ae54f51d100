package service

import (
	"context"
	"errors"

	"github.com/quillchat/quill/internal/domain"
	"github.com/quillchat/quill/internal/hub"
)

var (
	// ErrInvalidMessage is returned for a send with no recipient or with
	// neither text nor attachment. No record is created and nothing is sent.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnauthenticated is returned when the sending connection carries no
	// verified identity.
	ErrUnauthenticated = errors.New("connection not authenticated")
)

// DMService routes inbound WebSocket frames: status deltas to the presence
// broadcaster, direct messages through persistence and live fanout.
type DMService interface {
	HandleStatusUpdate(ctx context.Context, c *hub.Client, update domain.StatusUpdate)
	HandleDirectMessage(ctx context.Context, c *hub.Client, env domain.Envelope) error
}
