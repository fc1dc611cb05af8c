// Package v1 defines the chitchat realtime protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between the server and the Go client to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the WebSocket subprotocol negotiated at handshake.
const Subprotocol = "chitchat.realtime.v1"

// Type constants (wire-stable). All of them flow server -> client.
const (
	// TypeConnectionEstablished confirms the connection is live.
	TypeConnectionEstablished = "connection_established"

	// TypePresenceUpdate carries the full set of online identities (full replacement).
	TypePresenceUpdate = "presence_update"

	// TypeMessageNew pushes a newly persisted message to its recipient.
	TypeMessageNew = "message_new"

	// TypeError is a generic error envelope.
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeConnectionEstablished,
		TypePresenceUpdate,
		TypeMessageNew,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ, id string, ts time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}
