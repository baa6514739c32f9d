package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

const caseColumns = `id, tier, impact_score, status, current_step, request, steps, history, version, created_unix, updated_unix`

// CaseRepository stores approval cases in SQL. Request, steps and history are JSON documents.
type CaseRepository struct {
	conn database.Connection
}

// NewCaseRepository creates a new case repository.
func NewCaseRepository(conn database.Connection) *CaseRepository {
	return &CaseRepository{conn: conn}
}

func (r *CaseRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// Save upserts a case. An update only applies when the stored version still matches the
// version the case was loaded with; otherwise ErrConcurrentModification is returned.
func (r *CaseRepository) Save(ctx context.Context, c *domain.ApprovalCase) error {
	s := c.Snapshot()
	request, err := json.Marshal(s.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	steps, err := json.Marshal(s.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	history, err := json.Marshal(s.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	query := `
		INSERT INTO approval_cases (
			id, request_key, batch_id, tier, impact_score, status, current_step,
			request, steps, history, version, created_unix, updated_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			current_step = excluded.current_step,
			steps = excluded.steps,
			history = excluded.history,
			version = excluded.version,
			updated_unix = excluded.updated_unix
		WHERE approval_cases.version = ?
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	res, err := exec.Exec(ctx, r.q(query),
		s.ID.String(),
		s.Request.Key(),
		s.Request.BatchID,
		string(s.Tier),
		s.ImpactScore,
		string(s.Status),
		s.CurrentStep,
		string(request),
		string(steps),
		string(history),
		s.Version,
		s.CreatedAt.Unix(),
		s.UpdatedAt.Unix(),
		c.StoredVersion(),
	)
	if err != nil {
		return fmt.Errorf("save approval case %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save approval case %s: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: case %s is no longer at version %d", domain.ErrConcurrentModification, s.ID, c.StoredVersion())
	}
	return nil
}

// FindByID loads a case or returns ErrCaseNotFound.
func (r *CaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ApprovalCase, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, r.q(`SELECT `+caseColumns+` FROM approval_cases WHERE id = ?`), id.String())
	c, err := scanCase(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrCaseNotFound
	}
	return c, err
}

// FindActiveByRequestKey returns the open case for a request or ErrCaseNotFound.
func (r *CaseRepository) FindActiveByRequestKey(ctx context.Context, key string) (*domain.ApprovalCase, error) {
	query := `
		SELECT ` + caseColumns + ` FROM approval_cases
		WHERE request_key = ? AND status IN (?, ?)
		ORDER BY created_unix DESC
		LIMIT 1
	`
	exec := database.ExecutorFromContext(ctx, r.conn)
	row := exec.QueryRow(ctx, r.q(query), key, string(domain.CaseStatusPending), string(domain.CaseStatusInProgress))
	c, err := scanCase(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrCaseNotFound
	}
	return c, err
}

// List returns cases newest first.
func (r *CaseRepository) List(ctx context.Context, filter domain.CaseFilter) ([]*domain.ApprovalCase, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, filter.BatchID)
	}

	query := `SELECT ` + caseColumns + ` FROM approval_cases`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_unix DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list approval cases: %w", err)
	}
	defer rows.Close()

	var cases []*domain.ApprovalCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func scanCase(row database.Row) (*domain.ApprovalCase, error) {
	var (
		id, tier, status         string
		request, steps, history  string
		impact                   float64
		current, version         int
		createdUnix, updatedUnix int64
	)
	if err := row.Scan(&id, &tier, &impact, &status, &current, &request, &steps, &history, &version, &createdUnix, &updatedUnix); err != nil {
		return nil, err
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse case id %q: %w", id, err)
	}
	s := domain.CaseSnapshot{
		ID:          parsedID,
		Tier:        permission.Tier(tier),
		ImpactScore: impact,
		Status:      domain.CaseStatus(status),
		CurrentStep: current,
		Version:     version,
		CreatedAt:   time.Unix(createdUnix, 0).UTC(),
		UpdatedAt:   time.Unix(updatedUnix, 0).UTC(),
	}
	if err := json.Unmarshal([]byte(request), &s.Request); err != nil {
		return nil, fmt.Errorf("decode request of case %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(steps), &s.Steps); err != nil {
		return nil, fmt.Errorf("decode steps of case %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(history), &s.History); err != nil {
		return nil, fmt.Errorf("decode history of case %s: %w", id, err)
	}
	return domain.RehydrateCase(s)
}
