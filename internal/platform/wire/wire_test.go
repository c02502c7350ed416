package wire_test

import (
	"encoding/json"
	"errors"
	"testing"

	"taskmesh/internal/platform/wire"
)

func TestEncodeDecodeOpRoundTrip(t *testing.T) {
	t.Parallel()
	env, err := wire.NewOp(map[string]string{"id": "op-1"})
	if err != nil {
		t.Fatalf("new op: %v", err)
	}
	raw, err := wire.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := wire.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.T != wire.TypeOp {
		t.Fatalf("expected type %q, got %q", wire.TypeOp, decoded.T)
	}
	payload := map[string]string{}
	if err := json.Unmarshal(decoded.Op, &payload); err != nil {
		t.Fatalf("unmarshal op payload: %v", err)
	}
	if payload["id"] != "op-1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	t.Parallel()
	_, err := wire.Decode([]byte(`{"t":"gossip","op":{}}`))
	if !errors.Is(err, wire.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := wire.Decode([]byte(`{"t":"op","op":{},"extra":true}`))
	if !errors.Is(err, wire.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeRejectsMissingPayload(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{`{"t":"op"}`, `{"t":"sync"}`, `not json`, `{}`} {
		if _, err := wire.Decode([]byte(raw)); !errors.Is(err, wire.ErrMalformed) {
			t.Fatalf("input %q: expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestEncodeValidates(t *testing.T) {
	t.Parallel()
	if _, err := wire.Encode(wire.Envelope{T: "op"}); !errors.Is(err, wire.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
