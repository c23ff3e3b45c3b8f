package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeacherSubjectRepositoryCountForCohort(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherSubjectRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM teacher_subjects ts`).
		WithArgs(int64(2), "BSIT", "1st Year").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountForCohort(context.Background(), 2, "BSIT", "1st Year")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherSubjectRepositoryCountForCohortZero(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherSubjectRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM teacher_subjects ts`).
		WithArgs(int64(2), "BSCS", "4th Year").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	count, err := repo.CountForCohort(context.Background(), 2, "BSCS", "4th Year")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTeacherSubjectRepositoryReplaceForTeacher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherSubjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM teacher_subjects WHERE teacher_id").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO teacher_subjects").
		WithArgs(int64(2), int64(7)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO teacher_subjects").
		WithArgs(int64(2), int64(8)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceForTeacher(context.Background(), 2, []int64{7, 8}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherSubjectRepositoryReplaceForTeacherRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherSubjectRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM teacher_subjects WHERE teacher_id").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO teacher_subjects").
		WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	err := repo.ReplaceForTeacher(context.Background(), 2, []int64{7})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherSubjectRepositoryListEligibleTeachers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherSubjectRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "course", "year", "description", "email", "created_at", "already_evaluated"}).
		AddRow(int64(2), "Teacher Two", "BSIT", "1st Year", "", "two@example.com", time.Now(), false).
		AddRow(int64(3), "Teacher Three", "BSIT", "1st Year", "", "three@example.com", time.Now(), true)
	mock.ExpectQuery("SELECT DISTINCT t.id, t.name").
		WithArgs(int64(1), "BSIT", "1st Year").
		WillReturnRows(rows)

	teachers, err := repo.ListEligibleTeachers(context.Background(), 1, "BSIT", "1st Year")
	require.NoError(t, err)
	require.Len(t, teachers, 2)
	assert.False(t, teachers[0].AlreadyEvaluated)
	assert.True(t, teachers[1].AlreadyEvaluated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
