package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	sharedApplication "github.com/felixgeelhaar/carevisit/internal/shared/application"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
)

// ScheduleRepository is the SQL schedule store. It serves lookups and materializes commits.
type ScheduleRepository struct {
	conn database.Connection
	uow  sharedApplication.UnitOfWork
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(conn database.Connection) *ScheduleRepository {
	return &ScheduleRepository{conn: conn, uow: database.NewUnitOfWork(conn)}
}

func (r *ScheduleRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// FindSchedulesNear returns bookings that start within radiusDays of the window.
// Bookings that began before that range but are still running are included too.
func (r *ScheduleRepository) FindSchedulesNear(ctx context.Context, window domain.TimeWindow, radiusDays int) ([]domain.ExistingSchedule, error) {
	if radiusDays < 0 {
		radiusDays = 0
	}
	radius := time.Duration(radiusDays) * 24 * time.Hour
	from := window.Start.Add(-radius)
	to := window.End().Add(radius)

	query := `
		SELECT id, subject_name, service_type, priority, resource_id, start_unix, duration_minutes
		FROM schedules
		WHERE start_unix < ? AND start_unix + duration_minutes * 60 > ?
		ORDER BY start_unix, id
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.q(query), to.Unix(), from.Unix())
	if err != nil {
		return nil, fmt.Errorf("query schedules near %s: %w", window, err)
	}
	defer rows.Close()

	var out []domain.ExistingSchedule
	for rows.Next() {
		var (
			s         domain.ExistingSchedule
			priority  string
			startUnix int64
		)
		if err := rows.Scan(&s.ID, &s.SubjectName, &s.ServiceType, &priority, &s.ResourceID, &startUnix, &s.Window.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		s.Priority = domain.Priority(priority)
		s.Window.Start = time.Unix(startUnix, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert stores a booking, replacing any row with the same ID.
func (r *ScheduleRepository) Upsert(ctx context.Context, s domain.ExistingSchedule, now time.Time) error {
	query := `
		INSERT INTO schedules (id, subject_name, service_type, priority, resource_id, start_unix, duration_minutes, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			subject_name = excluded.subject_name,
			service_type = excluded.service_type,
			priority = excluded.priority,
			resource_id = excluded.resource_id,
			start_unix = excluded.start_unix,
			duration_minutes = excluded.duration_minutes,
			updated_unix = excluded.updated_unix
	`
	priority := s.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, r.q(query),
		s.ID,
		s.SubjectName,
		s.ServiceType,
		string(priority),
		s.ResourceID,
		s.Window.Start.Unix(),
		s.Window.DurationMinutes,
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert schedule %s: %w", s.ID, err)
	}
	return nil
}

// Commit moves the booking to the proposed window and archives the change in one transaction.
func (r *ScheduleRepository) Commit(ctx context.Context, c domain.Commit) error {
	return sharedApplication.WithUnitOfWork(ctx, r.uow, func(txCtx context.Context) error {
		schedule := domain.ExistingSchedule{
			ID:          c.Item.ID,
			SubjectName: c.Item.SubjectName,
			Window:      c.Item.ProposedWindow,
			ServiceType: c.Item.ServiceType,
			Priority:    c.Item.Priority,
			ResourceID:  c.Item.ResourceID,
		}
		if err := r.Upsert(txCtx, schedule, c.CommittedAt); err != nil {
			return err
		}

		caseID := ""
		if c.ApprovalCaseID != nil {
			caseID = c.ApprovalCaseID.String()
		}
		query := `
			INSERT INTO adjustment_archive (
				batch_id, item_id, subject_name, original_start_unix, original_minutes,
				committed_start_unix, committed_minutes, approval_case_id, committed_unix
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (batch_id, item_id) DO UPDATE SET
				committed_start_unix = excluded.committed_start_unix,
				committed_minutes = excluded.committed_minutes,
				approval_case_id = excluded.approval_case_id,
				committed_unix = excluded.committed_unix
		`
		exec := database.ExecutorFromContext(txCtx, r.conn)
		_, err := exec.Exec(txCtx, r.q(query),
			c.BatchID,
			c.Item.ID,
			c.Item.SubjectName,
			c.Item.OriginalWindow.Start.Unix(),
			c.Item.OriginalWindow.DurationMinutes,
			c.Item.ProposedWindow.Start.Unix(),
			c.Item.ProposedWindow.DurationMinutes,
			caseID,
			c.CommittedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("archive adjustment %s/%s: %w", c.BatchID, c.Item.ID, err)
		}
		return nil
	})
}

// ArchivedCount returns how many adjustments a batch has committed.
func (r *ScheduleRepository) ArchivedCount(ctx context.Context, batchID string) (int, error) {
	var n int
	exec := database.ExecutorFromContext(ctx, r.conn)
	if err := exec.QueryRow(ctx, r.q(`SELECT COUNT(*) FROM adjustment_archive WHERE batch_id = ?`), batchID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archive of batch %s: %w", batchID, err)
	}
	return n, nil
}
