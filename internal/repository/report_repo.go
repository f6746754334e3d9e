package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/leadgen/internal/domain"
)

// ReportRepository handles local analysis history
type ReportRepository struct {
	db *DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create stores a new report
func (r *ReportRepository) Create(ctx context.Context, report *domain.Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, session_id, flow, source, title, summary, report_id, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.ID, report.SessionID, string(report.Flow), report.Source, report.Title,
		report.Summary, report.ReportID, string(report.Result), report.CreatedAt)

	return err
}

// Get retrieves a report by ID
func (r *ReportRepository) Get(ctx context.Context, id string) (*domain.Report, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, flow, source, title, summary, report_id, result, created_at
		FROM reports WHERE id = ?
	`, id)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return report, err
}

// ListBySession returns the most recent reports of a session, newest first
func (r *ReportRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.Report, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, flow, source, title, summary, report_id, result, created_at
		FROM reports WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]*domain.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	report := &domain.Report{}
	var flow, result string
	var title, summary, reportID sql.NullString

	if err := row.Scan(&report.ID, &report.SessionID, &flow, &report.Source, &title,
		&summary, &reportID, &result, &report.CreatedAt); err != nil {
		return nil, err
	}

	report.Flow = domain.Flow(flow)
	report.Title = title.String
	report.Summary = summary.String
	report.ReportID = reportID.String
	report.Result = []byte(result)
	return report, nil
}
