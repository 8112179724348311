package model

import "time"

// OutreachEntry records one message sent to a rider. The log is what
// keeps rescue sequences from re-sending and the race-result messages
// from congratulating the same finish twice.
type OutreachEntry struct {
	ID       string    `json:"id"`
	RiderKey string    `json:"rider_key"`
	Kind     string    `json:"kind"`    // "race_result", "rescue_1", ...
	Channel  string    `json:"channel"` // "email", "messenger", "manual"
	Subject  string    `json:"subject,omitempty"`
	Body     string    `json:"body,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}
