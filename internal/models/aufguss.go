package models

import "time"

// AufgussClaim is a persisted claim of a canonical slot.
// It is created on claim and deleted on cancel; it is never updated in place.
type AufgussClaim struct {
	ID           int64            `json:"id"`
	SaunaName    string           `json:"sauna_name"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      time.Time        `json:"end_time"`
	ClaimedBy    string           `json:"claimed_by"`
	AufgussType  string           `json:"aufguss_type"`
	ReminderSent bool             `json:"-"`
	Tallied      bool             `json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	Profile      *ProfileFragment `json:"profile,omitempty"`
}
