package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type publishedMessage struct {
	RoutingKey string
	Payload    string
}

type mockPublisher struct {
	mu          sync.Mutex
	published   []publishedMessage
	shouldFail  bool
	failForKeys map[string]bool
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{failForKeys: make(map[string]bool)}
}

func (p *mockPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shouldFail || p.failForKeys[routingKey] {
		return errors.New("publish failed")
	}
	p.published = append(p.published, publishedMessage{RoutingKey: routingKey, Payload: string(payload)})
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shouldFail = fail
}

func (p *mockPublisher) Published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.published...)
}

func setupRepo(t *testing.T) *outbox.SQLRepository {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))
	return outbox.NewSQLRepository(conn)
}

func newProcessor(repo outbox.Repository, pub *mockPublisher, cfg outbox.ProcessorConfig, c *clock) *outbox.Processor {
	p := outbox.NewProcessor(repo, pub, cfg, nil)
	p.SetClock(c.Now)
	return p
}

func TestPublisher_StoresOncePerEvent(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	pub := outbox.NewPublisher(repo)

	body := []byte(`{"event_id":"5b2f0c1e-8d4a-4a43-9a55-1f1c2f6d7e80","routing_key":"approval.case.opened"}`)
	require.NoError(t, pub.Publish(ctx, "approval.case.opened", body))
	require.NoError(t, pub.Publish(ctx, "approval.case.opened", body))
	require.NoError(t, pub.Close())

	pending, err := repo.Pending(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "5b2f0c1e-8d4a-4a43-9a55-1f1c2f6d7e80", pending[0].EventID.String())
	assert.Equal(t, "approval.case.opened", pending[0].RoutingKey)
	assert.JSONEq(t, string(body), string(pending[0].Payload))
}

func TestProcessor_RelaysInOrder(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	c := &clock{now: start}
	metrics := observability.NewInMemoryMetrics()

	for i, key := range []string{"a.one", "a.two", "a.three"} {
		msg := outbox.NewMessage(key, []byte(`{}`), start.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Save(ctx, msg))
	}

	pub := newMockPublisher()
	p := newProcessor(repo, pub, outbox.ProcessorConfig{BatchSize: 10, MaxRetries: 3}, c)
	p.SetMetrics(metrics)
	c.Advance(time.Minute)

	require.NoError(t, p.ProcessOnce(ctx))

	published := pub.Published()
	require.Len(t, published, 3)
	assert.Equal(t, "a.one", published[0].RoutingKey)
	assert.Equal(t, "a.three", published[2].RoutingKey)
	assert.Equal(t, int64(3), metrics.GetCounter(observability.MetricEventsPublished, observability.T("outcome", "relayed")))

	stats := p.GetStats()
	assert.Equal(t, uint64(3), stats.PublishedCount)
	assert.InDelta(t, 60, stats.LagSeconds, 0.001)

	pending, err := repo.Pending(ctx, c.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, p.ProcessOnce(ctx))
	assert.Len(t, pub.Published(), 3, "published messages are not sent again")
}

func TestProcessor_RetriesWithBackoffThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	c := &clock{now: start}
	require.NoError(t, repo.Save(ctx, outbox.NewMessage("approval.case.decided", []byte(`{}`), start)))

	pub := newMockPublisher()
	pub.setFail(true)
	p := newProcessor(repo, pub, outbox.ProcessorConfig{
		BatchSize:        10,
		MaxRetries:       3,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}, c)

	// First failure: retry in 1s.
	require.NoError(t, p.ProcessOnce(ctx))
	pending, err := repo.Pending(ctx, c.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "not due before the backoff elapses")

	c.Advance(time.Second)
	pending, err = repo.Pending(ctx, c.Now(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "publish failed", pending[0].LastError)

	// Second failure: retry in 2s.
	require.NoError(t, p.ProcessOnce(ctx))
	c.Advance(time.Second)
	pending, err = repo.Pending(ctx, c.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	c.Advance(time.Second)

	// Third failure reaches MaxRetries.
	require.NoError(t, p.ProcessOnce(ctx))
	c.Advance(time.Hour)
	pending, err = repo.Pending(ctx, c.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "dead messages are never retried")

	stats := p.GetStats()
	assert.Equal(t, uint64(2), stats.FailedCount)
	assert.Equal(t, uint64(1), stats.DeadCount)
	assert.Equal(t, "publish failed", stats.LastError)

	pub.setFail(false)
	require.NoError(t, p.ProcessOnce(ctx))
	assert.Empty(t, pub.Published())
}

func TestProcessor_OneFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	c := &clock{now: start}
	require.NoError(t, repo.Save(ctx, outbox.NewMessage("bad.key", []byte(`{}`), start)))
	require.NoError(t, repo.Save(ctx, outbox.NewMessage("good.key", []byte(`{}`), start)))

	pub := newMockPublisher()
	pub.failForKeys["bad.key"] = true
	p := newProcessor(repo, pub, outbox.ProcessorConfig{MaxRetries: 5}, c)

	require.NoError(t, p.ProcessOnce(ctx))
	published := pub.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "good.key", published[0].RoutingKey)
}

func TestProcessor_StartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := setupRepo(t)
	require.NoError(t, repo.Save(ctx, outbox.NewMessage("a.b", []byte(`{}`), time.Now())))

	pub := newMockPublisher()
	p := outbox.NewProcessor(repo, pub, outbox.ProcessorConfig{PollInterval: 10 * time.Millisecond, MaxRetries: 3}, nil)
	p.Start(ctx)
	p.Start(ctx)
	assert.True(t, p.IsRunning())

	assert.Eventually(t, func() bool { return len(pub.Published()) == 1 }, 2*time.Second, 10*time.Millisecond)

	p.Stop()
	assert.False(t, p.IsRunning())
	p.Stop()
}

func TestSQLRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	old := outbox.NewMessage("a.old", []byte(`{}`), start)
	unpublished := outbox.NewMessage("a.unpublished", []byte(`{}`), start)
	fresh := outbox.NewMessage("a.fresh", []byte(`{}`), start.Add(48*time.Hour))
	for _, msg := range []*outbox.Message{old, unpublished, fresh} {
		require.NoError(t, repo.Save(ctx, msg))
	}

	pending, err := repo.Pending(ctx, start.Add(72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	require.NoError(t, repo.MarkPublished(ctx, pending[0].ID, start))
	require.NoError(t, repo.MarkPublished(ctx, pending[2].ID, start.Add(48*time.Hour)))

	deleted, err := repo.DeleteOld(ctx, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	pending, err = repo.Pending(ctx, start.Add(72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a.unpublished", pending[0].RoutingKey)

	assert.ErrorIs(t, repo.MarkPublished(ctx, 9999, start), database.ErrNoRows)
}
