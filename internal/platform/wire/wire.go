package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message types carried over a session's byte-stream channel.
const (
	TypeOp   = "op"
	TypeSync = "sync"
)

var ErrMalformed = errors.New("malformed wire message")

// Envelope is the closed set of messages peers exchange: a single operation
// or a full log snapshot. Anything that decodes to neither shape is rejected.
type Envelope struct {
	T     string          `json:"t"`
	Op    json.RawMessage `json:"op,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

func (e Envelope) validate() error {
	switch e.T {
	case TypeOp:
		if len(e.Op) == 0 {
			return fmt.Errorf("%w: op payload is required", ErrMalformed)
		}
	case TypeSync:
		if len(e.State) == 0 {
			return fmt.Errorf("%w: state payload is required", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, e.T)
	}
	return nil
}

func NewOp(op any) (Envelope, error) {
	raw, err := json.Marshal(op)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode op payload: %w", err)
	}
	return Envelope{T: TypeOp, Op: raw}, nil
}

func NewSync(state any) (Envelope, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode state payload: %w", err)
	}
	return Envelope{T: TypeSync, State: raw}, nil
}

func Encode(env Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return payload, nil
}

func Decode(raw []byte) (Envelope, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	env := Envelope{}
	if err := decoder.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
