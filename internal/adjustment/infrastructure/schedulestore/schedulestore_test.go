package schedulestore

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/felixgeelhaar/carevisit/internal/adjustment/infrastructure/cache"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type countingStore struct {
	calls     atomic.Int32
	err       error
	schedules []domain.ExistingSchedule
}

func (s *countingStore) FindSchedulesNear(ctx context.Context, _ domain.TimeWindow, _ int) ([]domain.ExistingSchedule, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.schedules, s.err
}

func TestStaticStore(t *testing.T) {
	ctx := context.Background()
	store := NewStaticStore(
		domain.ExistingSchedule{ID: "late", Window: domain.MustTimeWindow(at(15, 0), 60)},
		domain.ExistingSchedule{ID: "early", Window: domain.MustTimeWindow(at(9, 0), 60)},
		domain.ExistingSchedule{ID: "tomorrow", Window: domain.MustTimeWindow(at(33, 0), 60)},
	)

	found, err := store.FindSchedulesNear(ctx, domain.MustTimeWindow(at(10, 0), 60), 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.FindSchedulesNear(ctx, domain.MustTimeWindow(at(10, 0), 60), 1)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "early", found[0].ID)
	assert.Equal(t, "late", found[1].ID)

	item := domain.AdjustmentItem{ID: "early", ProposedWindow: domain.MustTimeWindow(at(10, 30), 30)}
	require.NoError(t, store.Commit(ctx, domain.Commit{BatchID: "b-1", Item: item}))
	found, err = store.FindSchedulesNear(ctx, domain.MustTimeWindow(at(10, 0), 60), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "early", found[0].ID)
	assert.Len(t, store.Commits(), 1)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{schedules: []domain.ExistingSchedule{
		{ID: "s-1", SubjectName: "Ada", Window: domain.MustTimeWindow(at(9, 0), 60), Priority: domain.PriorityHigh},
	}}
	metrics := observability.NewInMemoryMetrics()
	store := NewCachedStore(inner, cache.NewMemoryStore(), time.Minute, metrics, nil)
	window := domain.MustTimeWindow(at(9, 30), 30)

	first, err := store.FindSchedulesNear(ctx, window, 1)
	require.NoError(t, err)
	second, err := store.FindSchedulesNear(ctx, window, 1)
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricLookupCacheHits))
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.True(t, second[0].Window.Start.Equal(at(9, 0)))

	_, err = store.FindSchedulesNear(ctx, window, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load(), "radius is part of the key")
}

func TestCachedStore_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{err: errors.New("timeout")}
	store := NewCachedStore(inner, cache.NewMemoryStore(), time.Minute, nil, nil)
	window := domain.MustTimeWindow(at(9, 30), 30)

	_, err := store.FindSchedulesNear(ctx, window, 1)
	require.Error(t, err)
	_, err = store.FindSchedulesNear(ctx, window, 1)
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedStore_CommitInvalidatesLookups(t *testing.T) {
	ctx := context.Background()
	source := NewStaticStore()
	store := NewCachedStore(source, cache.NewMemoryStore(), time.Minute, nil, nil).WithCommitter(source)
	window := domain.MustTimeWindow(at(10, 0), 60)

	found, err := store.FindSchedulesNear(ctx, window, 1)
	require.NoError(t, err)
	assert.Empty(t, found)

	item := domain.AdjustmentItem{ID: "x", SubjectName: "Ada", ProposedWindow: window}
	require.NoError(t, store.Commit(ctx, domain.Commit{BatchID: "b-1", Item: item}))

	found, err = store.FindSchedulesNear(ctx, window, 1)
	require.NoError(t, err)
	require.Len(t, found, 1, "a committed booking is visible to the next lookup")
	assert.Equal(t, "x", found[0].ID)
	assert.Len(t, source.Commits(), 1)
}

func TestCachedStore_SharedCacheSeesOtherProcessCommits(t *testing.T) {
	ctx := context.Background()
	source := NewStaticStore()
	shared := cache.NewMemoryStore()
	reader := NewCachedStore(source, shared, time.Minute, nil, nil)
	writer := NewCachedStore(source, shared, time.Minute, nil, nil).WithCommitter(source)
	window := domain.MustTimeWindow(at(10, 0), 60)

	_, err := reader.FindSchedulesNear(ctx, window, 0)
	require.NoError(t, err)
	require.NoError(t, writer.Commit(ctx, domain.Commit{Item: domain.AdjustmentItem{ID: "x", ProposedWindow: window}}))

	found, err := reader.FindSchedulesNear(ctx, window, 0)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

type brokenGenerationCache struct {
	*cache.MemoryStore
}

func (c brokenGenerationCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == generationKey {
		return errors.New("read-only replica")
	}
	return c.MemoryStore.Set(ctx, key, value, ttl)
}

func TestCachedStore_BypassesCacheWhenInvalidationFails(t *testing.T) {
	ctx := context.Background()
	source := NewStaticStore()
	clock := at(8, 0)
	now := func() time.Time { return clock }
	mem := cache.NewMemoryStore()
	mem.SetClock(now)
	store := NewCachedStore(source, brokenGenerationCache{mem}, time.Minute, nil, nil).WithCommitter(source)
	store.now = now
	window := domain.MustTimeWindow(at(10, 0), 60)

	_, err := store.FindSchedulesNear(ctx, window, 0)
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, domain.Commit{Item: domain.AdjustmentItem{ID: "x", ProposedWindow: window}}))

	found, err := store.FindSchedulesNear(ctx, window, 0)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	clock = clock.Add(2 * time.Minute)
	found, err = store.FindSchedulesNear(ctx, window, 0)
	require.NoError(t, err)
	assert.Len(t, found, 1, "stale entries expired with the bypass")
}

func TestCachedStore_CommitWithoutCommitter(t *testing.T) {
	store := NewCachedStore(NewStaticStore(), cache.NewMemoryStore(), time.Minute, nil, nil)
	err := store.Commit(context.Background(), domain.Commit{})
	assert.ErrorIs(t, err, ErrNoCommitter)
}

func TestResilientStore_BreakerOpens(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{err: errors.New("connection refused")}
	metrics := observability.NewInMemoryMetrics()
	store := NewResilientStore(inner, ResilienceConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Hour,
		HalfOpenRequests: 1,
	}, metrics, nil)
	window := domain.MustTimeWindow(at(9, 0), 60)

	assert.Equal(t, "closed", store.State())
	for range 2 {
		_, err := store.FindSchedulesNear(ctx, window, 1)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
	}

	_, err := store.FindSchedulesNear(ctx, window, 1)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, "open", store.State())
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricBreakerTransitions, observability.T("state", "open")))
}

func TestResilientStore_Passthrough(t *testing.T) {
	inner := &countingStore{schedules: []domain.ExistingSchedule{{ID: "s-1"}}}
	store := NewResilientStore(inner, ResilienceConfig{RatePerSecond: 1000, Burst: 10, CallTimeout: time.Second}, nil, nil)

	found, err := store.FindSchedulesNear(context.Background(), domain.MustTimeWindow(at(9, 0), 60), 1)
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Equal(t, "disabled", store.State())
}

func TestResilientStore_LimiterHonoursContext(t *testing.T) {
	inner := &countingStore{}
	store := NewResilientStore(inner, ResilienceConfig{RatePerSecond: 0.001, Burst: 1}, nil, nil)
	window := domain.MustTimeWindow(at(9, 0), 60)

	_, err := store.FindSchedulesNear(context.Background(), window, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = store.FindSchedulesNear(ctx, window, 1)
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func visitCalendar(start, end time.Time, props map[string]string) *ical.Calendar {
	event := ical.NewEvent()
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, end)
	for name, value := range props {
		setX(event.Component, name, value)
	}
	cal := ical.NewCalendar()
	cal.Children = append(cal.Children, event.Component)
	return cal
}

func TestParseScheduleObject(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		_, ok := parseScheduleObject(nil)
		assert.False(t, ok)
		_, ok = parseScheduleObject(&caldav.CalendarObject{})
		assert.False(t, ok)
	})

	t.Run("visit event", func(t *testing.T) {
		cal := visitCalendar(at(9, 0), at(10, 30), map[string]string{
			ical.PropUID:     "visit-42",
			ical.PropSummary: "Grace Hopper",
			PropXService:     "wound_care",
			PropXPriority:    "URGENT",
			PropXResource:    "nurse-7",
		})
		s, ok := parseScheduleObject(&caldav.CalendarObject{Path: "/cal/visit-42.ics", Data: cal})
		require.True(t, ok)
		assert.Equal(t, "visit-42", s.ID)
		assert.Equal(t, "Grace Hopper", s.SubjectName)
		assert.Equal(t, 90, s.Window.DurationMinutes)
		assert.True(t, s.Window.Start.Equal(at(9, 0)))
		assert.Equal(t, "wound_care", s.ServiceType)
		assert.Equal(t, domain.PriorityUrgent, s.Priority)
		assert.Equal(t, "nurse-7", s.ResourceID)
	})

	t.Run("foreign event falls back to path and medium priority", func(t *testing.T) {
		cal := visitCalendar(at(9, 0), at(9, 20), map[string]string{PropXPriority: "whenever"})
		s, ok := parseScheduleObject(&caldav.CalendarObject{Path: "/cal/x.ics", Data: cal})
		require.True(t, ok)
		assert.Equal(t, "/cal/x.ics", s.ID)
		assert.Equal(t, domain.PriorityMedium, s.Priority)
	})

	t.Run("zero length", func(t *testing.T) {
		cal := visitCalendar(at(9, 0), at(9, 0), nil)
		_, ok := parseScheduleObject(&caldav.CalendarObject{Path: "/cal/y.ics", Data: cal})
		assert.False(t, ok)
	})
}

func TestToICalendar(t *testing.T) {
	item := domain.AdjustmentItem{
		ID:             "visit-1",
		SubjectName:    "Ada",
		OriginalWindow: domain.MustTimeWindow(at(9, 0), 60),
		ProposedWindow: domain.MustTimeWindow(at(11, 0), 45),
		Priority:       domain.PriorityHigh,
		ServiceType:    "nursing",
	}
	cal := toICalendar(domain.Commit{BatchID: "b-1", Item: item, CommittedAt: at(8, 0)})
	require.Len(t, cal.Children, 1)

	s, ok := parseScheduleObject(&caldav.CalendarObject{Path: "/cal/visit-1.ics", Data: cal})
	require.True(t, ok)
	assert.Equal(t, "visit-1", s.ID)
	assert.True(t, s.Window.Equal(item.ProposedWindow))
	assert.Equal(t, domain.PriorityHigh, s.Priority)
	assert.Equal(t, "nursing", s.ServiceType)
	assert.Empty(t, s.ResourceID)
	assert.Equal(t, "1", cal.Children[0].Props.Get(PropXCareVisit).Value)
}

func TestCalDAVStore_Auth(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *CalDAVStore)
		want  string
	}{
		{
			name:  "basic auth",
			setup: func(s *CalDAVStore) {},
			want:  "Basic " + base64.StdEncoding.EncodeToString([]byte("agency:secret")),
		},
		{
			name: "bearer token",
			setup: func(s *CalDAVStore) {
				s.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc", TokenType: "Bearer"}))
			},
			want: "Bearer abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got.Store(r.Header.Get("Authorization"))
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			store := NewCalDAVStore(srv.URL, "agency", "secret", nil).WithCalendarPath("/calendars/visits/")
			tt.setup(store)

			_, err := store.FindSchedulesNear(context.Background(), domain.MustTimeWindow(at(10, 0), 60), 0)
			require.Error(t, err)
			assert.Equal(t, tt.want, got.Load())
		})
	}
}
