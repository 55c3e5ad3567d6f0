package models

// ReminderStage is the per-day progress of the reminder gate. Stages only move forward.
type ReminderStage int

const (
	// StageIdle means nothing has been sent for the day
	StageIdle ReminderStage = iota
	// StageNudgeSent means the start-now nudge went out
	StageNudgeSent
	// StageEscalationSent means the blocker prompt went out; nothing more is sent that day
	StageEscalationSent
)

func (s ReminderStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageNudgeSent:
		return "nudge_sent"
	case StageEscalationSent:
		return "escalation_sent"
	default:
		return "unknown"
	}
}

// DailyReminderState is the reminder gate row for one owner and local calendar day.
type DailyReminderState struct {
	OwnerID int64         `json:"owner_id"`
	Day     string        `json:"day"` // YYYY-MM-DD in the owner's timezone
	Stage   ReminderStage `json:"stage"`
}

// ReminderSent reports whether the primary nudge was emitted (or skipped past).
func (s DailyReminderState) ReminderSent() bool {
	return s.Stage >= StageNudgeSent
}

// EscalationSent reports whether the escalation prompt was emitted.
func (s DailyReminderState) EscalationSent() bool {
	return s.Stage >= StageEscalationSent
}
