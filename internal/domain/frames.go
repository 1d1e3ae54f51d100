package domain

// Wire frames exchanged over the WebSocket connection. Field names follow
// the client protocol: userId/username camel case, file payloads carry the
// name and a base64 data URL.

// StatusUpdate is a client-reported (userId, status) pair. Advisory
// presence metadata, never persisted.
type StatusUpdate struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// FilePayload is an inbound attachment: original name plus base64 data,
// with or without a data-URL prefix.
type FilePayload struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// Envelope is the inbound frame. Exactly one path is taken: a status
// update when UserStatusUpdate is set, otherwise a direct message.
type Envelope struct {
	UserStatusUpdate *StatusUpdate `json:"userStatusUpdate,omitempty"`
	Recipient        string        `json:"recipient,omitempty"`
	Text             string        `json:"text,omitempty"`
	File             *FilePayload  `json:"file,omitempty"`
}

// OnlineUser is one roster entry.
type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RosterFrame is the full-roster push sent on every connect/disconnect.
type RosterFrame struct {
	Online []OnlineUser `json:"online"`
}

// StatusFrame is the status-delta push.
type StatusFrame struct {
	UserStatusUpdate StatusUpdate `json:"userStatusUpdate"`
}

// MessageFrame is a delivered direct message.
type MessageFrame struct {
	Text      string `json:"text,omitempty"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	File      string `json:"file,omitempty"`
	ID        string `json:"id"`
}
