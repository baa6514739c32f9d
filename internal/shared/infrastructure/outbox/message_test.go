package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type caseOpened struct {
	domain.BaseEvent
	CaseID string `json:"case_id"`
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	t.Run("takes the event id from the envelope", func(t *testing.T) {
		event := &caseOpened{
			BaseEvent: domain.NewBaseEvent(uuid.New(), "ApprovalCase", "approval.case.opened", now),
			CaseID:    "c-1",
		}
		env, err := eventbus.NewEnvelope(event)
		require.NoError(t, err)
		body, err := json.Marshal(env)
		require.NoError(t, err)

		msg := NewMessage(env.RoutingKey, body, now)

		assert.Equal(t, event.EventID(), msg.EventID)
		assert.Equal(t, "approval.case.opened", msg.RoutingKey)
		assert.JSONEq(t, string(body), string(msg.Payload))
		assert.Equal(t, now, msg.CreatedAt)
		assert.Equal(t, int64(0), msg.ID)
		assert.False(t, msg.IsPublished())
		assert.False(t, msg.IsDead())
	})

	t.Run("payload without an event id gets a fresh one", func(t *testing.T) {
		a := NewMessage("x", []byte(`{"hello":"world"}`), now)
		b := NewMessage("x", []byte(`not json`), now)

		assert.NotEqual(t, uuid.Nil, a.EventID)
		assert.NotEqual(t, uuid.Nil, b.EventID)
		assert.NotEqual(t, a.EventID, b.EventID)
	})

	t.Run("copies the payload", func(t *testing.T) {
		body := []byte(`{"a":1}`)
		msg := NewMessage("x", body, now)
		body[1] = 'b'
		assert.Equal(t, `{"a":1}`, string(msg.Payload))
	})
}

func TestMessage_CanRetry(t *testing.T) {
	msg := &Message{RetryCount: 2}
	assert.True(t, msg.CanRetry(3))
	assert.False(t, msg.CanRetry(2))
}
