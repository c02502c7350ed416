package dto

import "time"

type TaskOutput struct {
	ID        string
	Text      string
	Done      bool
	LastWrite time.Time
}

type ExportOutput struct {
	Payload string
}

type ImportOutput struct {
	Applied int
}

type ActivityOutput struct {
	ID         string
	OccurredAt time.Time
	Type       string
	Message    string
}
