package queries

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReportRepo struct {
	mock.Mock
}

func (m *mockReportRepo) Save(ctx context.Context, report *domain.BatchReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *mockReportRepo) FindByID(ctx context.Context, batchID string) (*domain.BatchReport, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchReport), args.Error(1)
}

type mockConflictRepo struct {
	mock.Mock
}

func (m *mockConflictRepo) SaveAll(ctx context.Context, batchID string, records []domain.ConflictRecord) error {
	return m.Called(ctx, batchID, records).Error(0)
}

func (m *mockConflictRepo) FindByBatch(ctx context.Context, batchID string) ([]domain.ConflictRecord, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConflictRecord), args.Error(1)
}

func TestGetBatchReportHandler_Handle(t *testing.T) {
	ctx := context.Background()
	report := &domain.BatchReport{BatchID: "b-1", Strategy: domain.StrategyAuto}
	records := []domain.ConflictRecord{{Decision: domain.ResolutionDecision{ItemID: "v-1", Action: domain.ActionSkip}}}

	t.Run("report only", func(t *testing.T) {
		reports := new(mockReportRepo)
		conflicts := new(mockConflictRepo)
		reports.On("FindByID", ctx, "b-1").Return(report, nil)

		view, err := NewGetBatchReportHandler(reports, conflicts).Handle(ctx, GetBatchReportQuery{BatchID: "b-1"})
		require.NoError(t, err)
		assert.Same(t, report, view.Report)
		assert.Nil(t, view.Records)
		conflicts.AssertNotCalled(t, "FindByBatch", mock.Anything, mock.Anything)
	})

	t.Run("with conflicts", func(t *testing.T) {
		reports := new(mockReportRepo)
		conflicts := new(mockConflictRepo)
		reports.On("FindByID", ctx, "b-1").Return(report, nil)
		conflicts.On("FindByBatch", ctx, "b-1").Return(records, nil)

		view, err := NewGetBatchReportHandler(reports, conflicts).Handle(ctx, GetBatchReportQuery{BatchID: "b-1", WithConflicts: true})
		require.NoError(t, err)
		assert.Equal(t, records, view.Records)
	})

	t.Run("not found", func(t *testing.T) {
		reports := new(mockReportRepo)
		reports.On("FindByID", ctx, "missing").Return(nil, domain.ErrReportNotFound)

		_, err := NewGetBatchReportHandler(reports, nil).Handle(ctx, GetBatchReportQuery{BatchID: "missing", WithConflicts: true})
		assert.ErrorIs(t, err, domain.ErrReportNotFound)
	})

	t.Run("conflict lookup fails", func(t *testing.T) {
		reports := new(mockReportRepo)
		conflicts := new(mockConflictRepo)
		reports.On("FindByID", ctx, "b-1").Return(report, nil)
		conflicts.On("FindByBatch", ctx, "b-1").Return(nil, errors.New("db closed"))

		_, err := NewGetBatchReportHandler(reports, conflicts).Handle(ctx, GetBatchReportQuery{BatchID: "b-1", WithConflicts: true})
		assert.ErrorContains(t, err, "db closed")
	})

	t.Run("batch id required", func(t *testing.T) {
		_, err := NewGetBatchReportHandler(new(mockReportRepo), nil).Handle(ctx, GetBatchReportQuery{})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
