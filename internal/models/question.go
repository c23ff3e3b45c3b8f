package models

import "time"

// EvaluationQuestion is one questionnaire item, displayed grouped and ordered.
type EvaluationQuestion struct {
	ID           int64     `db:"id" json:"id"`
	GroupTitle   string    `db:"group_title" json:"group_title"`
	QuestionText string    `db:"question_text" json:"question_text"`
	Ordering     int       `db:"ordering" json:"ordering"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// QuestionGroup bundles questions sharing a group title for form rendering.
type QuestionGroup struct {
	Title     string               `json:"title"`
	Questions []EvaluationQuestion `json:"questions"`
}
