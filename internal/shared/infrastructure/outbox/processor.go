package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
)

// ProcessorConfig holds configuration for the outbox processor.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig returns sensible defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     time.Second,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

// maxBackoffShift keeps base<<n from overflowing.
const maxBackoffShift = 20

// Processor relays stored messages to the broker in creation order.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	metrics   observability.Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a new outbox processor. Zero config fields take the defaults.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.RetryBackoffBase <= 0 {
		config.RetryBackoffBase = defaults.RetryBackoffBase
	}
	if config.RetryBackoffMax <= 0 {
		config.RetryBackoffMax = defaults.RetryBackoffMax
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		metrics:   observability.NoopMetrics{},
		logger:    logger.With("component", "outbox"),
		now:       time.Now,
	}
}

// SetMetrics counts relayed and dead-lettered events on m.
func (p *Processor) SetMetrics(m observability.Metrics) {
	if m != nil {
		p.metrics = m
	}
}

// SetClock replaces the clock used for retry scheduling.
func (p *Processor) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Start relays on every poll tick until ctx ends or Stop is called. A second Start is a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)

	p.logger.Info("relay started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
}

// Stop cancels the loop and waits for the batch in flight.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("relay stopped")
}

// IsRunning reports whether the relay loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

func (p *Processor) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		p.mu.Lock()
		p.cancel, p.done = nil, nil
		p.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("relay batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	return p.processBatch(ctx)
}

func (p *Processor) processBatch(ctx context.Context) error {
	now := p.now()
	messages, err := p.repo.Pending(ctx, now, p.config.BatchSize)
	if err != nil {
		p.recordError(err, now)
		return err
	}
	p.recordProcessed(messages, now)

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.relay(ctx, msg)
	}
	return nil
}

// relay publishes one message and records the outcome. A failure never stops the batch.
func (p *Processor) relay(ctx context.Context, msg *Message) {
	log := p.logger.With("outbox_id", msg.ID, "event_id", msg.EventID, "routing_key", msg.RoutingKey)

	pubErr := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload)
	now := p.now()
	switch {
	case pubErr == nil:
		if err := p.repo.MarkPublished(ctx, msg.ID, now); err != nil {
			log.Error("event relayed but not marked; it will be sent again", "error", err)
			return
		}
		p.recordPublished()
		p.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("outcome", "relayed"))

	case p.exhausted(msg):
		log.Error("event dead-lettered", "attempts", msg.RetryCount+1, "error", pubErr)
		p.recordDead(pubErr, now)
		p.metrics.Counter(observability.MetricEventsPublished, 1, observability.T("outcome", "dead"))
		if err := p.repo.MarkDead(ctx, msg.ID, pubErr.Error(), now); err != nil {
			log.Error("failed to dead-letter event", "error", err)
		}

	default:
		retryAt := now.Add(p.backoff(msg.RetryCount + 1))
		log.Warn("event relay failed", "attempt", msg.RetryCount+1, "retry_at", retryAt, "error", pubErr)
		p.recordFailed(pubErr, now)
		if err := p.repo.MarkFailed(ctx, msg.ID, pubErr.Error(), retryAt); err != nil {
			log.Error("failed to schedule event retry", "error", err)
		}
	}
}

// exhausted reports whether the attempt in progress is the last one allowed.
func (p *Processor) exhausted(msg *Message) bool {
	return p.config.MaxRetries <= 0 || msg.RetryCount+1 >= p.config.MaxRetries
}

// backoff returns base<<(attempt-1), capped at RetryBackoffMax.
func (p *Processor) backoff(attempt int) time.Duration {
	shift := min(max(attempt-1, 0), maxBackoffShift)
	d := p.config.RetryBackoffBase << shift
	if d <= 0 || d > p.config.RetryBackoffMax {
		return p.config.RetryBackoffMax
	}
	return d
}

// Stats returns processor statistics.
type Stats struct {
	IsRunning       bool       `json:"running"`
	PublishedCount  uint64     `json:"published"`
	FailedCount     uint64     `json:"failed"`
	DeadCount       uint64     `json:"dead"`
	LagSeconds      float64    `json:"lag_seconds"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
	OldestMessageAt *time.Time `json:"oldest_message_at,omitempty"`
}

// GetStats returns current processor statistics.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	stats := p.stats
	stats.IsRunning = running
	return stats
}

func (p *Processor) updateStats(fn func(*Stats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	fn(&p.stats)
}

func (p *Processor) recordPublished() {
	p.updateStats(func(s *Stats) { s.PublishedCount++ })
}

func (p *Processor) recordFailed(err error, now time.Time) {
	p.updateStats(func(s *Stats) {
		s.FailedCount++
		s.LastError, s.LastErrorAt = err.Error(), &now
	})
}

func (p *Processor) recordDead(err error, now time.Time) {
	p.updateStats(func(s *Stats) {
		s.DeadCount++
		s.LastError, s.LastErrorAt = err.Error(), &now
	})
}

func (p *Processor) recordError(err error, now time.Time) {
	p.updateStats(func(s *Stats) { s.LastError, s.LastErrorAt = err.Error(), &now })
}

// recordProcessed tracks relay lag as the age of the oldest due message.
func (p *Processor) recordProcessed(messages []*Message, now time.Time) {
	var oldest *time.Time
	for _, msg := range messages {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	p.updateStats(func(s *Stats) {
		s.LastProcessedAt = &now
		s.OldestMessageAt = oldest
		s.LagSeconds = 0
		if oldest != nil {
			s.LagSeconds = now.Sub(*oldest).Seconds()
		}
	})
}
