package models

import "time"

// EvaluationPeriod is an administrator-defined window bounding when
// evaluations may be submitted.
type EvaluationPeriod struct {
	ID        int64     `db:"id" json:"id"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	Note      string    `db:"note" json:"note"`
	Closed    bool      `db:"closed" json:"closed"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
