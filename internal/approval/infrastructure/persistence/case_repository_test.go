package persistence

import (
	"context"
	"testing"
	"time"

	adjustment "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConn(t *testing.T) database.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))
	return conn
}

func newCase(t *testing.T, batchID, itemID string, at time.Time) *domain.ApprovalCase {
	t.Helper()
	req := permission.AdjustmentRequest{
		ItemID:         itemID,
		BatchID:        batchID,
		SubjectName:    "Ada",
		OriginalWindow: adjustment.MustTimeWindow(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 60),
		ProposedWindow: adjustment.MustTimeWindow(time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC), 60),
		Requester:      permission.Requester{ID: "nurse-1"},
		Priority:       adjustment.PriorityHigh,
	}
	c, err := domain.OpenCase(req, domain.BuildTemplate(permission.TierAdvanced, 50), at)
	require.NoError(t, err)
	return c
}

func TestCaseRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewCaseRepository(setupConn(t))
	opened := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	c := newCase(t, "b-1", "v-1", opened)
	require.NoError(t, repo.Save(ctx, c))

	found, err := repo.FindByID(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.ID(), found.ID())
	assert.Equal(t, domain.CaseStatusPending, found.Status())
	assert.Equal(t, permission.TierAdvanced, found.Tier())
	assert.Equal(t, adjustment.PriorityHigh, found.Request().Priority)
	assert.True(t, found.Request().ProposedWindow.Equal(c.Request().ProposedWindow))

	active, err := repo.FindActiveByRequestKey(ctx, "b-1/v-1")
	require.NoError(t, err)
	assert.Equal(t, c.ID(), active.ID())

	require.NoError(t, found.Submit(domain.Submission{StepIndex: -1, Role: domain.RoleSeniorRecorder, Actor: "sr"}, opened.Add(time.Hour)))
	require.NoError(t, repo.Save(ctx, found))

	rejected, err := repo.FindByID(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusRejected, rejected.Status())
	assert.Equal(t, domain.StepCancelled, rejected.Steps()[1].Status)
	assert.Len(t, rejected.History(), 3)

	_, err = repo.FindActiveByRequestKey(ctx, "b-1/v-1")
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestCaseRepository_StaleSaveIsRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewCaseRepository(setupConn(t))
	opened := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	c := newCase(t, "b-1", "v-1", opened)
	require.NoError(t, repo.Save(ctx, c))

	first, err := repo.FindByID(ctx, c.ID())
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, c.ID())
	require.NoError(t, err)

	require.NoError(t, first.Submit(domain.Submission{StepIndex: 0, Role: domain.RoleSeniorRecorder, Actor: "sr-1", Approve: true}, opened.Add(time.Hour)))
	require.NoError(t, second.Submit(domain.Submission{StepIndex: 0, Role: domain.RoleSeniorRecorder, Actor: "sr-2"}, opened.Add(2*time.Hour)))

	require.NoError(t, repo.Save(ctx, first))
	err = repo.Save(ctx, second)
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	stored, err := repo.FindByID(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.CaseStatusInProgress, stored.Status())
	assert.Equal(t, first.Version(), stored.Version())
	assert.Equal(t, "sr-1", stored.Steps()[0].DecidedBy)
}

func TestCaseRepository_NotFound(t *testing.T) {
	_, err := NewCaseRepository(setupConn(t)).FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestCaseRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewCaseRepository(setupConn(t))
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i, item := range []string{"v-1", "v-2", "v-3"} {
		require.NoError(t, repo.Save(ctx, newCase(t, "b-1", item, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Save(ctx, newCase(t, "b-2", "v-9", base)))

	all, err := repo.List(ctx, domain.CaseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	batch, err := repo.List(ctx, domain.CaseFilter{BatchID: "b-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "v-3", batch[0].Request().ItemID)

	approved, err := repo.List(ctx, domain.CaseFilter{Status: domain.CaseStatusApproved})
	require.NoError(t, err)
	assert.Empty(t, approved)
}
