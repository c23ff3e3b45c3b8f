package models

import "time"

// Subject represents an academic subject offered to a course/year cohort.
// (subject_code, course, year) is unique.
type Subject struct {
	ID           int64     `db:"id" json:"id"`
	SubjectCode  string    `db:"subject_code" json:"subject_code"`
	SubjectTitle string    `db:"subject_title" json:"subject_title"`
	Course       string    `db:"course" json:"course"`
	Year         string    `db:"year" json:"year"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Course is a catalog entry referenced by teachers and subjects via its code.
type Course struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
