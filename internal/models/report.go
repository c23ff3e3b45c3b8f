package models

import "time"

// QuestionStat aggregates answers for one question of a teacher's report.
type QuestionStat struct {
	QuestionID   int64   `db:"question_id" json:"question_id"`
	QuestionText string  `db:"question_text" json:"question_text"`
	AvgRating    float64 `db:"avg_rating" json:"avg_rating"`
	Responses    int     `db:"responses" json:"responses"`
}

// RecentEvaluation is one submission row in the report's recency list.
type RecentEvaluation struct {
	EvaluationID int64     `db:"evaluation_id" json:"evaluation_id"`
	StudentName  string    `db:"student_name" json:"student_name"`
	SchoolID     string    `db:"school_id" json:"school_id"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"`
	Comment      string    `db:"comment" json:"comment"`
}

// TeacherReport is the aggregated evaluation report for one teacher.
type TeacherReport struct {
	TeacherID        int64              `json:"teacher_id"`
	TeacherName      string             `json:"teacher_name"`
	TotalRespondents int                `json:"total_respondents"`
	OverallAverage   *float64           `json:"overall_average,omitempty"`
	Questions        []QuestionStat     `json:"questions"`
	Recent           []RecentEvaluation `json:"recent"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// MonitorStudent is one student's submission state against one teacher.
type MonitorStudent struct {
	StudentID int64  `json:"student_id"`
	FullName  string `json:"fullname"`
	SchoolID  string `json:"school_id"`
	Submitted bool   `json:"submitted"`
}

// MonitorTeacher lists submission states for every student of the
// teacher's course.
type MonitorTeacher struct {
	TeacherID   int64            `json:"teacher_id"`
	TeacherName string           `json:"teacher_name"`
	Course      string           `json:"course"`
	Students    []MonitorStudent `json:"students"`
}

// MonitorRow is one flattened (teacher, student) pairing from the monitoring
// query. The service folds rows into a MonitorMatrix.
type MonitorRow struct {
	TeacherID   int64  `db:"teacher_id"`
	TeacherName string `db:"teacher_name"`
	Course      string `db:"course"`
	StudentID   int64  `db:"student_id"`
	FullName    string `db:"fullname"`
	SchoolID    string `db:"school_id"`
	Submitted   bool   `db:"submitted"`
}

// MonitorMatrix groups submission tracking by course.
type MonitorMatrix struct {
	Courses     map[string][]MonitorTeacher `json:"courses"`
	GeneratedAt time.Time                   `json:"generated_at"`
}
