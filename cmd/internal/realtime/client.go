package realtime

import (
	"sync"

	v1 "chitchat/shared/contracts/realtime/v1"
)

// Client is the connection handle for one live websocket session.
//
// Send is never closed by the server so concurrent pushers cannot panic.
// Once Close has run the handle is stale: Push reports false and nothing is queued.
type Client struct {
	SessionID string
	// UserID is empty for connections that never supplied an identity.
	UserID string
	Send   chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID, userID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

// Close marks the handle stale (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Push enqueues env without blocking.
// It returns false when the client is closed or its queue is full.
func (c *Client) Push(env v1.Envelope) bool {
	if c == nil || c.Closed() {
		return false
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
