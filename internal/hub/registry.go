package hub

import (
	"sync"

	"github.com/quillchat/quill/internal/domain"
	"github.com/quillchat/quill/internal/log"
)

// Registry is the single source of truth for live connections. All access
// goes through the mutex; snapshots are copied out so callers never hold a
// reference into the internal map. The lock is never held across I/O.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connection ID -> client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register inserts or replaces the entry for the client's connection ID.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldUserID, c.UserID).Msg("client registered")
}

// Unregister removes the entry. No-op when the client is already gone.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	_, ok := r.clients[c.ID]
	if ok {
		delete(r.clients, c.ID)
	}
	r.mu.Unlock()

	if ok {
		l := log.L()
		l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldUserID, c.UserID).Msg("client unregistered")
	}
}

// Snapshot returns a point-in-time copy of the online roster: one entry per
// authenticated live connection. Connections accepted without a credential
// are deliberately left out: they stay live and receive pushes, but carry no
// identity worth listing.
func (r *Registry) Snapshot() []domain.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]domain.OnlineUser, 0, len(r.clients))
	for _, c := range r.clients {
		if !c.Authenticated() {
			continue
		}
		online = append(online, domain.OnlineUser{UserID: c.UserID, Username: c.Username})
	}
	return online
}

// Route returns every live connection for a user, empty when offline. A
// user with several simultaneous sessions gets one entry per session.
func (r *Registry) Route(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*Client
	if userID == "" {
		return matches
	}
	for _, c := range r.clients {
		if c.UserID == userID {
			matches = append(matches, c)
		}
	}
	return matches
}

// Clients returns a copy of all live connections, authenticated or not.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		all = append(all, c)
	}
	return all
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
