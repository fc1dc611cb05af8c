package v1

import "time"

// Media references an attachment stored by the media collaborator.
type Media struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// Message is the canonical persisted message record. Immutable once created.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text,omitempty"`
	Media       *Media    `json:"media,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Counterpart returns the other party of m as seen by self.
func (m Message) Counterpart(self string) string {
	if m.SenderID == self {
		return m.RecipientID
	}
	return m.SenderID
}

// ConnectionEstablishedPayload is sent once a connection is live.
// UserID is empty for unidentified connections.
type ConnectionEstablishedPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
}

// PresenceUpdatePayload carries the full presence set. Order is irrelevant.
type PresenceUpdatePayload struct {
	Users []string `json:"users"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
