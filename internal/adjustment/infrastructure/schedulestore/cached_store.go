package schedulestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/cache"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/google/uuid"
)

// generationKey holds the current cache generation. Every lookup key embeds it, so
// writing a new generation orphans all earlier entries at once, in every process
// sharing the cache.
const generationKey = "generation"

// ErrNoCommitter is returned by Commit when the store was built without a committer.
var ErrNoCommitter = errors.New("schedule store has no committer")

// CachedStore memoizes lookups for a short TTL. Cache failures fall through to the inner store.
// Commits made through it invalidate every cached lookup.
type CachedStore struct {
	inner     domain.ScheduleStore
	committer domain.AdjustmentCommitter
	cache     cache.Store
	ttl       time.Duration
	metrics   observability.Metrics
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	bypassUntil time.Time
}

// NewCachedStore wraps inner with a lookup cache.
func NewCachedStore(inner domain.ScheduleStore, c cache.Store, ttl time.Duration, metrics observability.Metrics, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &CachedStore{inner: inner, cache: c, ttl: ttl, metrics: metrics, logger: logger, now: time.Now}
}

// WithCommitter routes commits through the store so they invalidate the cache.
func (s *CachedStore) WithCommitter(committer domain.AdjustmentCommitter) *CachedStore {
	s.committer = committer
	return s
}

// LookupKey identifies a lookup by window and radius.
func LookupKey(window domain.TimeWindow, radiusDays int) string {
	return fmt.Sprintf("%d:%d:%d", window.Start.Unix(), window.DurationMinutes, radiusDays)
}

func (s *CachedStore) FindSchedulesNear(ctx context.Context, window domain.TimeWindow, radiusDays int) ([]domain.ExistingSchedule, error) {
	gen, ok := s.generation(ctx)
	if !ok {
		return s.inner.FindSchedulesNear(ctx, window, radiusDays)
	}
	key := gen + ":" + LookupKey(window, radiusDays)

	body, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cached []domain.ExistingSchedule
		if err := json.Unmarshal(body, &cached); err == nil {
			s.metrics.Counter(observability.MetricLookupCacheHits, 1)
			return cached, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key)
	case !errors.Is(err, cache.ErrMiss):
		s.logger.Warn("lookup cache read failed", "key", key, "error", err)
	}

	out, err := s.inner.FindSchedulesNear(ctx, window, radiusDays)
	if err != nil {
		return nil, err
	}
	if body, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, body, s.ttl); err != nil {
			s.logger.Warn("lookup cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

// Commit writes through to the committer and then invalidates the cache.
func (s *CachedStore) Commit(ctx context.Context, c domain.Commit) error {
	if s.committer == nil {
		return ErrNoCommitter
	}
	if err := s.committer.Commit(ctx, c); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

// Invalidate starts a new cache generation. When the generation cannot be written,
// this process stops reading the cache for one TTL.
func (s *CachedStore) Invalidate(ctx context.Context) {
	if err := s.cache.Set(ctx, generationKey, []byte(uuid.NewString()), 0); err != nil {
		s.logger.Error("lookup cache not invalidated, bypassing it", "ttl", s.ttl, "error", err)
		s.mu.Lock()
		s.bypassUntil = s.now().Add(s.ttl)
		s.mu.Unlock()
	}
}

// generation returns the current generation, or false when the cache must not be used.
func (s *CachedStore) generation(ctx context.Context) (string, bool) {
	s.mu.Lock()
	bypass := s.now().Before(s.bypassUntil)
	s.mu.Unlock()
	if bypass {
		return "", false
	}

	body, err := s.cache.Get(ctx, generationKey)
	switch {
	case err == nil:
		return string(body), true
	case errors.Is(err, cache.ErrMiss):
		return "0", true
	default:
		s.logger.Warn("lookup cache generation unreadable", "error", err)
		return "", false
	}
}
