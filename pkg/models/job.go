package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a scheduled job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobDone      JobStatus = "done"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobCancelled || s == JobFailed
}

// Job types understood by the application
const (
	JobTypePing     = "ping"
	JobTypeReminder = "reminder"
	JobTypeNudge    = "nudge"

	JobTypeWeeklySummary = "weekly_summary"
)

// ScheduledJob is a persisted action with a target execution instant
type ScheduledJob struct {
	ID          string          `json:"job_id"`
	OwnerID     int64           `json:"owner_id"`
	Type        string          `json:"job_type"`
	DueAt       time.Time       `json:"due_at"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// ReminderPayload is the payload of a reminder job
type ReminderPayload struct {
	Text string `json:"text"`
}
