package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
	"github.com/campuseval/teval-api/pkg/export"
)

type reportRepository interface {
	CountRespondents(ctx context.Context, teacherID int64) (int, error)
	OverallAverage(ctx context.Context, teacherID int64) (*float64, error)
	QuestionStats(ctx context.Context, teacherID int64) ([]models.QuestionStat, error)
	RecentEvaluations(ctx context.Context, teacherID int64, limit int) ([]models.RecentEvaluation, error)
	MonitorRows(ctx context.Context) ([]models.MonitorRow, error)
}

type reportTeacherRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool)
}

// ReportService aggregates evaluation results per teacher, caches the
// aggregate, and renders exports.
type ReportService struct {
	reports  reportRepository
	teachers reportTeacherRepository
	cache    reportCache
	metrics  cacheMetrics
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(
	reports reportRepository,
	teachers reportTeacherRepository,
	cache reportCache,
	metrics cacheMetrics,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		reports:  reports,
		teachers: teachers,
		cache:    cache,
		metrics:  metrics,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func teacherReportKey(teacherID int64) string {
	return fmt.Sprintf("reports:teacher:%d", teacherID)
}

// TeacherReport builds the aggregate for one teacher, serving from cache
// when fresh.
func (s *ReportService) TeacherReport(ctx context.Context, teacherID int64) (*models.TeacherReport, error) {
	if s.cache != nil {
		var cached models.TeacherReport
		if err := s.cache.Get(ctx, teacherReportKey(teacherID), &cached); err == nil {
			s.recordCache(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("report cache read failed", zap.Error(err))
		}
		s.recordCache(false)
	}

	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	respondents, err := s.reports.CountRespondents(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count respondents")
	}

	average, err := s.reports.OverallAverage(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute average")
	}

	questions, err := s.reports.QuestionStats(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question stats")
	}
	if questions == nil {
		questions = []models.QuestionStat{}
	}

	recent, err := s.reports.RecentEvaluations(ctx, teacherID, 50)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent evaluations")
	}
	if recent == nil {
		recent = []models.RecentEvaluation{}
	}

	report := &models.TeacherReport{
		TeacherID:        teacher.ID,
		TeacherName:      teacher.Name,
		TotalRespondents: respondents,
		OverallAverage:   average,
		Questions:        questions,
		Recent:           recent,
		GeneratedAt:      time.Now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, teacherReportKey(teacherID), report, s.cacheTTL); err != nil {
			s.logger.Warn("report cache write failed", zap.Error(err))
		}
	}
	return report, nil
}

// InvalidateTeacher drops any cached report for the teacher. Called after a
// new submission lands.
func (s *ReportService) InvalidateTeacher(ctx context.Context, teacherID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, teacherReportKey(teacherID)+"*"); err != nil {
		s.logger.Warn("report cache invalidation failed",
			zap.Int64("teacher_id", teacherID), zap.Error(err))
	}
}

// ExportFormat identifies a report download format.
type ExportFormat string

// Supported export formats.
const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered report bytes plus response metadata.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Export renders a teacher's report in the requested format.
func (s *ReportService) Export(ctx context.Context, teacherID int64, format ExportFormat) (*ExportResult, error) {
	report, err := s.TeacherReport(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Question", "Average Rating", "Responses"},
	}
	for _, q := range report.Questions {
		dataset.Rows = append(dataset.Rows, []string{
			q.QuestionText,
			fmt.Sprintf("%.2f", q.AvgRating),
			fmt.Sprintf("%d", q.Responses),
		})
	}
	dataset.Summary = append(dataset.Summary, fmt.Sprintf("Respondents: %d", report.TotalRespondents))
	if report.OverallAverage != nil {
		dataset.Summary = append(dataset.Summary, fmt.Sprintf("Overall average: %.2f", *report.OverallAverage))
	}

	switch format {
	case FormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("teacher-%d-report.csv", teacherID),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case FormatPDF:
		data, err := s.pdf.Render(dataset, fmt.Sprintf("Evaluation Report - %s", report.TeacherName))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("teacher-%d-report.pdf", teacherID),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// Monitor folds the flattened monitoring rows into a per-course matrix of
// teachers and their cohort students.
func (s *ReportService) Monitor(ctx context.Context) (*models.MonitorMatrix, error) {
	rows, err := s.reports.MonitorRows(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load monitoring data")
	}

	matrix := &models.MonitorMatrix{
		Courses:     make(map[string][]models.MonitorTeacher),
		GeneratedAt: time.Now().UTC(),
	}

	type key struct {
		course    string
		teacherID int64
	}
	position := make(map[key]int)

	for _, row := range rows {
		k := key{course: row.Course, teacherID: row.TeacherID}
		teachers := matrix.Courses[row.Course]
		i, ok := position[k]
		if !ok {
			i = len(teachers)
			position[k] = i
			teachers = append(teachers, models.MonitorTeacher{
				TeacherID:   row.TeacherID,
				TeacherName: row.TeacherName,
				Course:      row.Course,
			})
		}
		teachers[i].Students = append(teachers[i].Students, models.MonitorStudent{
			StudentID: row.StudentID,
			FullName:  row.FullName,
			SchoolID:  row.SchoolID,
			Submitted: row.Submitted,
		})
		matrix.Courses[row.Course] = teachers
	}

	return matrix, nil
}

func (s *ReportService) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit)
	}
}
