package models

import "time"

// Student represents a learner registered for evaluations.
type Student struct {
	ID           int64     `db:"id" json:"id"`
	FullName     string    `db:"fullname" json:"fullname"`
	SchoolID     string    `db:"school_id" json:"school_id"`
	Course       string    `db:"course" json:"course"`
	Year         string    `db:"year" json:"year"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering options for listing students.
type StudentFilter struct {
	Search   string
	Course   string
	Year     string
	Page     int
	PageSize int
}

// DashboardTeacher is a teacher the student may evaluate, with submission state.
type DashboardTeacher struct {
	Teacher
	AlreadyEvaluated bool `db:"already_evaluated" json:"already_evaluated"`
}
