package models

import "time"

// Rating bounds for evaluation answers.
const (
	RatingMin = 1
	RatingMax = 5
)

// Evaluation is one student's completed submission for one teacher.
// At most one row exists per (student, teacher) pair.
type Evaluation struct {
	ID          int64     `db:"id" json:"id"`
	StudentID   int64     `db:"student_id" json:"student_id"`
	TeacherID   int64     `db:"teacher_id" json:"teacher_id"`
	Comment     string    `db:"comment" json:"comment"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
}

// EvaluationAnswer is one rating for one question, owned by its evaluation.
type EvaluationAnswer struct {
	ID           int64 `db:"id" json:"id"`
	EvaluationID int64 `db:"evaluation_id" json:"evaluation_id"`
	QuestionID   int64 `db:"question_id" json:"question_id"`
	Rating       int   `db:"rating" json:"rating"`
}

// EvaluationDetail joins an evaluation with student and teacher identity for
// the admin detail view.
type EvaluationDetail struct {
	Evaluation
	StudentName   string `db:"student_name" json:"student_name"`
	SchoolID      string `db:"school_id" json:"school_id"`
	StudentCourse string `db:"student_course" json:"student_course"`
	TeacherName   string `db:"teacher_name" json:"teacher_name"`

	Answers []AnswerDetail `db:"-" json:"answers,omitempty"`
}

// AnswerDetail pairs a rating with its question text.
type AnswerDetail struct {
	QuestionText string `db:"question_text" json:"question_text"`
	Rating       int    `db:"rating" json:"rating"`
}

// EvaluationForm is everything a client needs to render the questionnaire.
type EvaluationForm struct {
	Teacher          Teacher         `json:"teacher"`
	Groups           []QuestionGroup `json:"groups"`
	AlreadyEvaluated bool            `json:"already_evaluated"`
}
