package domain

import "time"

type ActivityType string

const (
	ActivityOpApplied    ActivityType = "op_applied"
	ActivityOpReceived   ActivityType = "op_received"
	ActivitySyncSent     ActivityType = "sync_sent"
	ActivitySyncReceived ActivityType = "sync_received"
	ActivityLogImported  ActivityType = "log_imported"
)

type ActivityEvent struct {
	ID         string       `json:"id"`
	OccurredAt time.Time    `json:"occurred_at"`
	Type       ActivityType `json:"type"`
	Message    string       `json:"message"`
}
