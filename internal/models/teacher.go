package models

import "time"

// Teacher represents an evaluable instructor record.
type Teacher struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Course      string    `db:"course" json:"course"`
	Year        string    `db:"year" json:"year"`
	Description string    `db:"description" json:"description"`
	Email       string    `db:"email" json:"email"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TeacherDetail enriches a teacher with its subject assignments.
type TeacherDetail struct {
	Teacher
	Subjects []Subject `json:"subjects"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search   string
	Course   string
	Page     int
	PageSize int
}
