package presence

import (
	"github.com/quillchat/quill/internal/domain"
	"github.com/quillchat/quill/internal/hub"
	"github.com/quillchat/quill/internal/log"
)

// Broadcaster pushes presence events to every live connection. Delivery is
// best effort: nothing is acknowledged or retried, and a failed send to one
// connection never affects the others.
type Broadcaster struct {
	registry *hub.Registry
}

// NewBroadcaster creates a Broadcaster over the given registry.
func NewBroadcaster(registry *hub.Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// BroadcastRoster pushes the full online roster to every live connection.
// Called after every connect and disconnect so clients always hold the
// complete current roster instead of reconciling diffs.
func (b *Broadcaster) BroadcastRoster() {
	b.push(&domain.RosterFrame{Online: b.registry.Snapshot()})
}

// BroadcastStatus pushes a single client-reported (userId, status) delta.
// Advisory metadata only; not derived from the registry, not persisted.
func (b *Broadcaster) BroadcastStatus(userID, status string) {
	b.push(&domain.StatusFrame{
		UserStatusUpdate: domain.StatusUpdate{UserID: userID, Status: status},
	})
}

func (b *Broadcaster) push(frame interface{}) {
	for _, c := range b.registry.Clients() {
		if err := c.SendFrame(frame); err != nil {
			l := log.L()
			l.Warn().Err(err).Str(log.FieldConnID, c.ID).Str(log.FieldUserID, c.UserID).Msg("presence push failed")
		}
	}
}
