package models

import "time"

// Festival is a sauna event listed for members.
type Festival struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Location    string    `json:"location"`
}

// IsUpcoming reports whether the festival has not ended before now.
func (f *Festival) IsUpcoming(now time.Time) bool {
	return !f.EndDate.Before(now)
}
