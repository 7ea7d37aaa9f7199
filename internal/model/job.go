package model

import (
	"time"
)

// JobStatus is the lifecycle state of an indexing job.
// Transitions are monotonic: pending → running → {completed | failed}.
type JobStatus string

// Job statuses.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Phase names used in progress events.
const (
	PhaseStarting      = "starting"
	PhaseIndexing      = "indexing"
	PhaseReverseLookup = "reverse_lookup"
	PhaseCompleted     = "completed"
)

// Progress is a flat progress event for one job, emitted after every record
// and at phase transitions.
type Progress struct {
	Provider   string  `json:"provider"`
	Phase      string  `json:"phase"`
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percent    float64 `json:"percent"`
	RecordName string  `json:"record_name,omitempty"`
}

// JobResult summarizes a completed indexing run.
type JobResult struct {
	Total            int      `json:"total"`
	Created          int      `json:"created"`
	Merged           int      `json:"merged"`
	Updated          int      `json:"updated"`
	SkippedProviders []string `json:"skipped_providers,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
}

// Job is one indexing run over a target location.
type Job struct {
	ID          string     `json:"id" db:"id"`
	Location    string     `json:"location" db:"location"`
	Category    string     `json:"category,omitempty" db:"category"`
	Status      JobStatus  `json:"status" db:"status"`
	Progress    *Progress  `json:"progress,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Budget is a per-provider call counter over a reset window.
// A nil Limit means unlimited.
type Budget struct {
	Provider string    `json:"provider" db:"provider"`
	Calls    int       `json:"calls" db:"calls"`
	Limit    *int      `json:"limit,omitempty" db:"call_limit"`
	ResetsAt time.Time `json:"resets_at" db:"resets_at"`
}

// Remaining returns the calls left in the current window, or -1 if unlimited.
func (b *Budget) Remaining() int {
	if b.Limit == nil {
		return -1
	}
	left := *b.Limit - b.Calls
	if left < 0 {
		return 0
	}
	return left
}
