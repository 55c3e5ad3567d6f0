package models

import "time"

// BlockerCategory classifies why a study day did not start
type BlockerCategory string

const (
	BlockerFatigue    BlockerCategory = "fatigue"
	BlockerUnclear    BlockerCategory = "unclear"
	BlockerMotivation BlockerCategory = "motivation"
	BlockerAnxiety    BlockerCategory = "anxiety"
	BlockerOther      BlockerCategory = "other"
)

// BlockerCategories lists the categories in menu order
var BlockerCategories = []BlockerCategory{
	BlockerFatigue,
	BlockerUnclear,
	BlockerMotivation,
	BlockerAnxiety,
	BlockerOther,
}

// Blocker records an obstruction reported by the owner
type Blocker struct {
	ID        int64           `json:"id"`
	OwnerID   int64           `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
	Category  BlockerCategory `json:"category"`
	Detail    string          `json:"detail,omitempty"`
}
