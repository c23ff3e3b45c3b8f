package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuseval/teval-api/internal/models"
)

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	entry := &models.AuditLog{
		UserType:  models.AuditUserStudent,
		UserID:    1,
		Action:    models.AuditActionSubmittedEvaluation,
		Details:   "teacher_id=2 evaluation_id=99",
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	}
	mock.ExpectQuery("INSERT INTO audit_logs").
		WithArgs("student", int64(1), "submitted_evaluation", "teacher_id=2 evaluation_id=99", "10.0.0.1", "test-agent", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(55)))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, int64(55), entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_type", "user_id", "action", "details", "ip", "user_agent", "created_at"}).
		AddRow(int64(55), "student", int64(1), "submitted_evaluation", "", "", "", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_type, user_id, action, details, ip, user_agent, created_at FROM audit_logs WHERE 1=1 AND user_type = $1 AND action = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("student", "submitted_evaluation").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1 AND user_type = $1 AND action = $2")).
		WithArgs("student", "submitted_evaluation").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	entries, total, err := repo.List(context.Background(), models.AuditLogFilter{
		UserType: "student",
		Action:   "submitted_evaluation",
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
