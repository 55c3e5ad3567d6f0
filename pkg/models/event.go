package models

import (
	"encoding/json"
	"time"
)

// Event kinds written to the activity log
const (
	EventSessionStart     = "session_start"
	EventSessionStop      = "session_stop"
	EventSessionUndo      = "session_undo"
	EventSessionImport    = "session_import"
	EventGoalSet          = "goal_set"
	EventStepAdd          = "step_add"
	EventStepDone         = "step_done"
	EventStepEdit         = "step_edit"
	EventStepDelete       = "step_delete"
	EventBlocker          = "blocker"
	EventReminderSnoozed  = "reminder_snoozed"
	EventReminderSilenced = "reminder_silenced"
)

// Event is an append-only activity log entry
type Event struct {
	ID        int64           `json:"id"`
	OwnerID   int64           `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
	Kind      string          `json:"kind"`
	RefID     *int64          `json:"ref_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
