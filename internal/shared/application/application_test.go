package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type txKey struct{}

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestWithUnitOfWork(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txKey{}, "tx")
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)

		var seen context.Context
		err := WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			seen = ctx
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, txCtx, seen)
		uow.AssertExpectations(t)
	})

	t.Run("rolls back and returns the function error", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txKey{}, "tx")
		fnErr := errors.New("commit adjustment failed")
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Rollback", txCtx).Return(errors.New("rollback failed"))

		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return fnErr })

		assert.Equal(t, fnErr, err)
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("begin failure skips the function", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, errors.New("no connection"))

		called := false
		err := WithUnitOfWork(ctx, uow, func(context.Context) error {
			called = true
			return nil
		})

		assert.Error(t, err)
		assert.False(t, called)
	})

	t.Run("nil unit of work runs inline", func(t *testing.T) {
		called := false
		err := WithUnitOfWork(context.Background(), nil, func(context.Context) error {
			called = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, called)
	})
}

type stampedEvent struct {
	domain.BaseEvent
}

type recordingGateway struct {
	events []domain.DomainEvent
}

func (g *recordingGateway) Notify(_ context.Context, event domain.DomainEvent) {
	g.events = append(g.events, event)
}

func TestApplyEventMetadataAndNotifyAll(t *testing.T) {
	ev := &stampedEvent{BaseEvent: domain.NewBaseEvent(uuid.New(), "Test", "test.done", time.Now())}
	events := []domain.DomainEvent{ev}

	ApplyEventMetadata(events, domain.EventMetadata{CorrelationID: "c-1", ActorID: "a-1"})
	assert.Equal(t, "c-1", ev.Metadata().CorrelationID)

	gw := &recordingGateway{}
	NotifyAll(context.Background(), gw, events)
	assert.Len(t, gw.events, 1)

	require.NotPanics(t, func() { NotifyAll(context.Background(), nil, events) })
}
