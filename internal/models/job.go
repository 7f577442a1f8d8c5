package models

import (
	"time"
)

// Job status values persisted in Postgres.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusDiscarded  = "discarded"
	StatusFailed     = "failed"
)

// ExtractionJob tracks one source document through the extraction queue.
// At most one job exists per document; re-enqueues reset the existing row
// instead of inserting a duplicate.
type ExtractionJob struct {
	ID               string    `json:"id"`
	SourceDocumentID string    `json:"source_document_id"`
	ToolName         string    `json:"tool_name"`
	SourceURL        string    `json:"source_url"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	RunAfter         time.Time `json:"run_after"`
	LastError        *string   `json:"last_error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// JobStats aggregates queue counts per status for operators.
type JobStats struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}
