package models

import "time"

// Audit user types.
const (
	AuditUserStudent = "student"
	AuditUserAdmin   = "admin"
)

// Audit action constants.
const (
	AuditActionStudentLogin        = "student_login"
	AuditActionAdminLogin          = "admin_login"
	AuditActionStudentRegistered   = "student_registered"
	AuditActionSubmittedEvaluation = "submitted_evaluation"
	AuditActionDeleteEvaluation    = "delete_evaluation"
	AuditActionPasswordChange      = "password_change"
	AuditActionPasswordReset       = "password_reset"
	AuditActionAddTeacher          = "add_teacher"
	AuditActionEditTeacher         = "edit_teacher"
	AuditActionDeleteTeacher       = "delete_teacher"
	AuditActionAddSubject          = "add_subject"
	AuditActionEditSubject         = "edit_subject"
	AuditActionDeleteSubject       = "delete_subject"
	AuditActionAddCourse           = "add_course"
	AuditActionEditCourse          = "edit_course"
	AuditActionDeleteCourse        = "delete_course"
	AuditActionAddQuestion         = "add_question"
	AuditActionEditQuestion        = "edit_question"
	AuditActionDeleteQuestion      = "delete_question"
	AuditActionEditStudent         = "edit_student"
	AuditActionDeleteStudent       = "delete_student"
	AuditActionAddPeriod           = "add_period"
	AuditActionClosePeriod         = "close_period"
)

// AuditLog is an append-only trail record written alongside state changes.
type AuditLog struct {
	ID        int64     `db:"id" json:"id"`
	UserType  string    `db:"user_type" json:"user_type"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Action    string    `db:"action" json:"action"`
	Details   string    `db:"details" json:"details"`
	IP        string    `db:"ip" json:"ip"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditLogFilter narrows audit trail listings.
type AuditLogFilter struct {
	UserType string
	Action   string
	Page     int
	PageSize int
}
