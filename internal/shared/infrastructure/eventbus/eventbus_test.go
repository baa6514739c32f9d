package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type caseOpened struct {
	domain.BaseEvent
	CaseID string `json:"case_id"`
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, []byte) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingPublisher) Close() error { return nil }

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"approval.case.opened", "approval.case.opened", true},
		{"approval.*.opened", "approval.case.opened", true},
		{"approval.#", "approval.case.step.decided", true},
		{"#", "adjustment.batch.completed", true},
		{"approval.*", "approval.case.opened", false},
		{"adjustment.#", "approval.case.opened", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"->"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, TopicMatches(tt.pattern, tt.key))
		})
	}
}

func TestGateway_DeliversThroughInProcessBus(t *testing.T) {
	bus := NewInProcessEventBus(nil)
	var got []Envelope
	bus.Subscribe("approval.#", func(_ context.Context, env Envelope) error {
		got = append(got, env)
		return nil
	})
	bus.Subscribe("approval.case.opened", func(context.Context, Envelope) error {
		return errors.New("handler failure is only logged")
	})

	id := uuid.New()
	gw := NewGateway(bus, time.Second, nil)
	gw.Notify(context.Background(), caseOpened{
		BaseEvent: domain.NewBaseEvent(id, "ApprovalCase", "approval.case.opened", time.Now()),
		CaseID:    id.String(),
	})

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].AggregateID)
	assert.Equal(t, "approval.case.opened", got[0].RoutingKey)
	assert.JSONEq(t, `{"case_id":"`+id.String()+`"}`, string(got[0].Payload))
}

func TestGateway_SwallowsPublishErrors(t *testing.T) {
	pub := &failingPublisher{}
	gw := NewGateway(pub, 0, nil)
	metrics := observability.NewInMemoryMetrics()
	gw.SetMetrics(metrics)

	require.NotPanics(t, func() {
		gw.Notify(context.Background(), caseOpened{
			BaseEvent: domain.NewBaseEvent(uuid.New(), "ApprovalCase", "approval.case.opened", time.Now()),
		})
	})
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricEventsPublished, observability.T("outcome", "dropped")))
}
