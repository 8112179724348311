package model

import "time"

// DailyStats is one day's funnel snapshot, appended after each
// reconciliation run so movement is visible over time.
type DailyStats struct {
	Date time.Time `json:"date"`

	Riders int `json:"riders"`
	// Placeholders counts records keyed by a name slug instead of an
	// email, i.e. people we cannot contact yet.
	Placeholders int           `json:"placeholders"`
	Clients      int           `json:"clients"`
	Revenue      float64       `json:"revenue"`
	ByStage      map[Stage]int `json:"by_stage,omitempty"`
}

// Day returns the stats date normalized to midnight UTC.
func (d DailyStats) Day() time.Time {
	return time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(), 0, 0, 0, 0, time.UTC)
}
