package domain

import (
	"errors"
	"fmt"
)

// Operation kinds. The set is closed; anything else is rejected on ingest.
const (
	KindAdd    = "add"
	KindEdit   = "edit"
	KindToggle = "toggle"
	KindRemove = "remove"
)

var ErrInvalidOperation = errors.New("invalid operation")

// Operation is an immutable record of one task mutation. Replicas exchange
// operations, never tasks; the current list is always derived by folding.
// WallClock is informational only and never participates in ordering.
type Operation struct {
	ID        string  `json:"id"`
	Peer      string  `json:"peer"`
	Lamport   uint64  `json:"lamport"`
	WallClock int64   `json:"wall_clock"`
	Kind      string  `json:"kind"`
	TaskID    string  `json:"task_id"`
	Text      *string `json:"text,omitempty"`
	Done      *bool   `json:"done,omitempty"`
}

func (op Operation) Validate() error {
	if op.ID == "" || op.Peer == "" || op.TaskID == "" {
		return fmt.Errorf("%w: id, peer and task_id are required", ErrInvalidOperation)
	}
	if op.Lamport == 0 {
		return fmt.Errorf("%w: lamport must be positive", ErrInvalidOperation)
	}
	switch op.Kind {
	case KindAdd:
		if op.Text == nil {
			return fmt.Errorf("%w: add requires text", ErrInvalidOperation)
		}
	case KindEdit:
		if op.Text == nil {
			return fmt.Errorf("%w: edit requires text", ErrInvalidOperation)
		}
	case KindToggle:
		if op.Done == nil {
			return fmt.Errorf("%w: toggle requires done", ErrInvalidOperation)
		}
	case KindRemove:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	return nil
}

// Task is a row of the materialized view. LastWrite is the wall clock of the
// newest operation folded into the row; it orders the rendered list but never
// resolves conflicts.
type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	LastWrite int64  `json:"last_write"`
}
