package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
)

// ReportRepository stores batch reports as JSON documents.
type ReportRepository struct {
	conn database.Connection
}

// NewReportRepository creates a new report repository.
func NewReportRepository(conn database.Connection) *ReportRepository {
	return &ReportRepository{conn: conn}
}

func (r *ReportRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// Save upserts a report. Re-running a batch replaces its report.
func (r *ReportRepository) Save(ctx context.Context, report *domain.BatchReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.BatchID, err)
	}
	query := `
		INSERT INTO batch_reports (id, strategy, report, created_unix)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			strategy = excluded.strategy,
			report = excluded.report,
			created_unix = excluded.created_unix
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	if _, err := exec.Exec(ctx, r.q(query), report.BatchID, string(report.Strategy), string(body), report.CompletedAt.Unix()); err != nil {
		return fmt.Errorf("save report %s: %w", report.BatchID, err)
	}
	return nil
}

// FindByID loads a report or returns ErrReportNotFound.
func (r *ReportRepository) FindByID(ctx context.Context, batchID string) (*domain.BatchReport, error) {
	var body string
	exec := database.ExecutorFromContext(ctx, r.conn)
	err := exec.QueryRow(ctx, r.q(`SELECT report FROM batch_reports WHERE id = ?`), batchID).Scan(&body)
	if database.IsNoRows(err) {
		return nil, domain.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", batchID, err)
	}

	var report domain.BatchReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", batchID, err)
	}
	return &report, nil
}
