package models

import "time"

// MaxActiveSteps caps the number of unfinished next steps per owner
const MaxActiveSteps = 3

// NextStep is a small concrete action the owner intends to do next
type NextStep struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	Text      string     `json:"text"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}
