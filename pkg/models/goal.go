package models

import "time"

// Goal is the owner's daily target in minutes
type Goal struct {
	OwnerID   int64     `json:"owner_id"`
	Minutes   int       `json:"minutes"`
	UpdatedAt time.Time `json:"updated_at"`
}
