package id

import (
	"crypto/rand"
	"encoding/hex"
)

// Generator mints the opaque identifiers used for operations, tasks and
// sessions. Op ids double as the log's dedup key, so they must never collide
// across replicas.
type Generator interface {
	New() string
}

type RandomHex struct{}

func (RandomHex) New() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
