package schedulestore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

// StaticStore serves a fixed set of bookings held in memory. Commits update it in place.
type StaticStore struct {
	mu        sync.RWMutex
	schedules map[string]domain.ExistingSchedule
	commits   []domain.Commit
}

// NewStaticStore creates a store holding schedules.
func NewStaticStore(schedules ...domain.ExistingSchedule) *StaticStore {
	s := &StaticStore{schedules: make(map[string]domain.ExistingSchedule, len(schedules))}
	for _, sc := range schedules {
		s.schedules[sc.ID] = sc
	}
	return s
}

// FindSchedulesNear returns every booking that intersects the widened window.
func (s *StaticStore) FindSchedulesNear(_ context.Context, window domain.TimeWindow, radiusDays int) ([]domain.ExistingSchedule, error) {
	if radiusDays < 0 {
		radiusDays = 0
	}
	radius := time.Duration(radiusDays) * 24 * time.Hour
	from, to := window.Start.Add(-radius), window.End().Add(radius)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ExistingSchedule
	for _, sc := range s.schedules {
		if sc.Window.Start.Before(to) && sc.Window.End().After(from) {
			out = append(out, sc)
		}
	}
	sortSchedules(out)
	return out, nil
}

// Commit replaces the booking for the item with its proposed window.
func (s *StaticStore) Commit(_ context.Context, c domain.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedules[c.Item.ID] = domain.ExistingSchedule{
		ID:          c.Item.ID,
		SubjectName: c.Item.SubjectName,
		Window:      c.Item.ProposedWindow,
		ServiceType: c.Item.ServiceType,
		Priority:    c.Item.Priority,
		ResourceID:  c.Item.ResourceID,
	}
	s.commits = append(s.commits, c)
	return nil
}

// Commits returns the commits received so far.
func (s *StaticStore) Commits() []domain.Commit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Commit(nil), s.commits...)
}

func sortSchedules(out []domain.ExistingSchedule) {
	slices.SortFunc(out, func(a, b domain.ExistingSchedule) int {
		if c := a.Window.Start.Compare(b.Window.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
