package models

import "time"

// StudySession is a tracked work interval. EndedAt is nil while the session is open.
type StudySession struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Topic     string     `json:"topic,omitempty"`
}

// IsOpen reports whether the session has not been stopped yet.
func (s StudySession) IsOpen() bool {
	return s.EndedAt == nil
}

// EndOr returns the end of the session, or eval when the session is still open.
func (s StudySession) EndOr(eval time.Time) time.Time {
	if s.EndedAt == nil {
		return eval
	}
	return *s.EndedAt
}

// UndoKind tells which session event an undo reverted
type UndoKind string

const (
	UndoStart UndoKind = "start" // an open session was deleted
	UndoStop  UndoKind = "stop"  // a stopped session was reopened
)
