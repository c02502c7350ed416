package domain_test

import (
	"errors"
	"testing"

	"taskmesh/internal/modules/session/domain"
)

func TestSignalBlobRoundTrip(t *testing.T) {
	t.Parallel()
	blob := domain.SignalBlob{
		SessionID:   "sess-1",
		Kind:        domain.BlobOffer,
		Description: `{"peer_id":"abc","addrs":["/ip4/127.0.0.1/tcp/4001"]}`,
	}
	encoded, err := blob.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := domain.DecodeSignalBlob(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != blob {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, blob)
	}
}

func TestDecodeSignalBlobToleratesSurroundingWhitespace(t *testing.T) {
	t.Parallel()
	blob := domain.SignalBlob{SessionID: "sess-1", Kind: domain.BlobAnswer, Description: "desc"}
	encoded, err := blob.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := domain.DecodeSignalBlob("  " + encoded + "\n"); err != nil {
		t.Fatalf("decode with whitespace: %v", err)
	}
}

func TestDecodeSignalBlobRejectsGarbage(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"",
		"not base64 at all!!!",
		"bm90IGpzb24=",
		"e30=", // valid base64 of {} with no fields
	} {
		if _, err := domain.DecodeSignalBlob(raw); !errors.Is(err, domain.ErrMalformedBlob) {
			t.Fatalf("input %q: expected ErrMalformedBlob, got %v", raw, err)
		}
	}
}

func TestEncodeRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	blob := domain.SignalBlob{SessionID: "sess-1", Kind: "renegotiate", Description: "desc"}
	if _, err := blob.Encode(); !errors.Is(err, domain.ErrMalformedBlob) {
		t.Fatalf("expected ErrMalformedBlob, got %v", err)
	}
}
