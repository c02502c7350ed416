package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

type State string

const (
	StateCreated         State = "created"
	StateOfferSent       State = "offer_sent"
	StateOfferReceived   State = "offer_received"
	StateAnswerExchanged State = "answer_exchanged"
	StateChannelOpen     State = "channel_open"
	StateClosed          State = "closed"
)

// Session describes one peer link as seen from this replica. Connection and
// channel handles live in the manager; sessions are never reused across
// disconnects.
type Session struct {
	ID    string
	Role  Role
	State State
}

// Signal blob kinds.
const (
	BlobOffer  = "offer"
	BlobAnswer = "answer"
)

var ErrMalformedBlob = errors.New("malformed signal blob")

// SignalBlob is the out-of-band handshake payload people copy between
// devices: a session id, an offer/answer tag, and the opaque negotiation
// description. Encoded as base64 over JSON so it survives chat clients and
// clipboards intact.
type SignalBlob struct {
	SessionID   string `json:"session_id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

func (b SignalBlob) validate() error {
	if b.SessionID == "" || b.Description == "" {
		return fmt.Errorf("%w: session_id and description are required", ErrMalformedBlob)
	}
	if b.Kind != BlobOffer && b.Kind != BlobAnswer {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedBlob, b.Kind)
	}
	return nil
}

func (b SignalBlob) Encode() (string, error) {
	if err := b.validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode signal blob: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

func DecodeSignalBlob(raw string) (SignalBlob, error) {
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return SignalBlob{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	blob := SignalBlob{}
	if err := json.Unmarshal(payload, &blob); err != nil {
		return SignalBlob{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if err := blob.validate(); err != nil {
		return SignalBlob{}, err
	}
	return blob, nil
}
