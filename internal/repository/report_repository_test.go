package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportRepositoryQuestionStats(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	// The answers must be narrowed to the teacher inside the join source, so
	// a question only answered for other teachers still lands in the result
	// with zero responses instead of vanishing.
	rows := sqlmock.NewRows([]string{"question_id", "question_text", "avg_rating", "responses"}).
		AddRow(int64(10), "Explains clearly", 4.5, 2).
		AddRow(int64(11), "Answers questions", 4.0, 2).
		AddRow(int64(12), "Starts on time", 0.0, 0)
	mock.ExpectQuery(`(?s)SELECT q\.id AS question_id.*LEFT JOIN \(.*JOIN evaluations e ON e\.id = a\.evaluation_id.*WHERE e\.teacher_id = \$1.*\) ta ON ta\.question_id = q\.id.*GROUP BY q\.id`).
		WithArgs(int64(2)).
		WillReturnRows(rows)

	stats, err := repo.QuestionStats(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, int64(12), stats[2].QuestionID)
	assert.Equal(t, 0, stats[2].Responses)
	assert.Zero(t, stats[2].AvgRating)
	assert.Equal(t, 4.5, stats[0].AvgRating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCountRespondents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM evaluations WHERE teacher_id = $1")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountRespondents(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryOverallAverageNoAnswers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(`SELECT AVG\(a\.rating\)`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	avg, err := repo.OverallAverage(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, avg)
	assert.NoError(t, mock.ExpectationsWereMet())
}
