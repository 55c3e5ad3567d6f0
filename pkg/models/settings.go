package models

import "time"

// OwnerSettings holds per-owner preferences
type OwnerSettings struct {
	OwnerID           int64        `json:"owner_id"`
	Timezone          string       `json:"timezone"`
	RemindersEnabled  bool         `json:"reminders_enabled"`
	WeeklySummaryDay  time.Weekday `json:"weekly_summary_day"`
	WeeklySummaryTime string       `json:"weekly_summary_time"` // HH:MM local
}
