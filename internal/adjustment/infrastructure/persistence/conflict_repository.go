package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	sharedApplication "github.com/felixgeelhaar/carevisit/internal/shared/application"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
)

// ConflictRepository stores conflict records. The flat columns serve queries; the record column is authoritative.
type ConflictRepository struct {
	conn database.Connection
	uow  sharedApplication.UnitOfWork
}

// NewConflictRepository creates a new conflict repository.
func NewConflictRepository(conn database.Connection) *ConflictRepository {
	return &ConflictRepository{conn: conn, uow: database.NewUnitOfWork(conn)}
}

func (r *ConflictRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// SaveAll upserts every record of a batch in one transaction.
func (r *ConflictRepository) SaveAll(ctx context.Context, batchID string, records []domain.ConflictRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := `
		INSERT INTO conflict_records (
			id, batch_id, kind, subject_item_id, counterpart_id, overlap_minutes,
			severity, severity_score, action, confidence, rationale, failed,
			target_start_unix, target_minutes, record, recorded_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (batch_id, id) DO UPDATE SET
			action = excluded.action,
			confidence = excluded.confidence,
			rationale = excluded.rationale,
			failed = excluded.failed,
			target_start_unix = excluded.target_start_unix,
			target_minutes = excluded.target_minutes,
			record = excluded.record,
			recorded_unix = excluded.recorded_unix
	`
	return sharedApplication.WithUnitOfWork(ctx, r.uow, func(txCtx context.Context) error {
		exec := database.ExecutorFromContext(txCtx, r.conn)
		for _, rec := range records {
			body, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode conflict %s: %w", rec.Conflict.ID, err)
			}
			var targetStart, targetMinutes *int64
			if w := rec.Decision.TargetWindow; w != nil {
				s, m := w.Start.Unix(), int64(w.DurationMinutes)
				targetStart, targetMinutes = &s, &m
			}
			failed := 0
			if rec.Decision.Failed {
				failed = 1
			}
			c := rec.Conflict
			_, err = exec.Exec(txCtx, r.q(query),
				c.ID.String(),
				batchID,
				string(c.Kind),
				c.Subject.ID,
				c.CounterpartID(),
				c.OverlapMinutes,
				string(c.Severity),
				c.SeverityScore,
				string(rec.Decision.Action),
				rec.Decision.Confidence,
				rec.Decision.Rationale,
				failed,
				targetStart,
				targetMinutes,
				string(body),
				rec.RecordedAt.Unix(),
			)
			if err != nil {
				return fmt.Errorf("save conflict %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// FindByBatch returns the records of a batch, highest severity first.
func (r *ConflictRepository) FindByBatch(ctx context.Context, batchID string) ([]domain.ConflictRecord, error) {
	query := `
		SELECT record FROM conflict_records
		WHERE batch_id = ?
		ORDER BY severity_score DESC, subject_item_id, id
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.q(query), batchID)
	if err != nil {
		return nil, fmt.Errorf("query conflicts of batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var out []domain.ConflictRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		var rec domain.ConflictRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode conflict of batch %s: %w", batchID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
