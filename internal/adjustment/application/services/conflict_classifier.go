package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"golang.org/x/sync/errgroup"
)

// Classification phases reported to a ProgressFunc.
const (
	PhaseInternal = "internal"
	PhaseExternal = "external"
)

// Progress is a snapshot of classification work.
type Progress struct {
	Phase string
	Done  int
	Total int
}

// ProgressFunc receives progress updates. Calls are serialized but may come from worker goroutines.
type ProgressFunc func(Progress)

// ClassifierConfig configures the conflict classifier.
type ClassifierConfig struct {
	Buffer              time.Duration
	RadiusDays          int
	MaxConcurrentChecks int
	BatchSize           int
}

// DefaultClassifierConfig returns the default configuration.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Buffer:              15 * time.Minute,
		RadiusDays:          1,
		MaxConcurrentChecks: 4,
		BatchSize:           50,
	}
}

// Classification is the result of one classifier run.
type Classification struct {
	// Conflicts sorted by score desc, proposed start asc, ID asc.
	Conflicts []*domain.Conflict
	// Occupied holds every booked schedule seen during the external pass, deduplicated by ID.
	Occupied       []domain.ExistingSchedule
	LookupFailures []*domain.LookupError
	Comparisons    int
}

// ConflictClassifier finds internal and external conflicts for a batch and scores them.
type ConflictClassifier struct {
	store  domain.ScheduleStore
	scorer *SeverityScorer
	config ClassifierConfig
	logger *slog.Logger
}

// NewConflictClassifier creates a classifier. A nil store disables the external pass.
func NewConflictClassifier(
	store domain.ScheduleStore,
	scorer *SeverityScorer,
	config ClassifierConfig,
	logger *slog.Logger,
) *ConflictClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = NewSeverityScorer(DefaultSeverityWeights())
	}
	if config.MaxConcurrentChecks <= 0 {
		config.MaxConcurrentChecks = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultClassifierConfig().BatchSize
	}
	return &ConflictClassifier{
		store:  store,
		scorer: scorer,
		config: config,
		logger: logger,
	}
}

// Config returns the classifier configuration.
func (c *ConflictClassifier) Config() ClassifierConfig {
	return c.config
}

// Classify runs the internal and external passes. Lookup failures are recorded, never returned;
// the only error is context cancellation.
func (c *ConflictClassifier) Classify(
	ctx context.Context,
	items []domain.AdjustmentItem,
	progress ProgressFunc,
) (*Classification, error) {
	report := newProgressReporter(progress, c.config.BatchSize)

	result := &Classification{}
	result.Conflicts, result.Comparisons = c.internalPass(items, report)

	external, occupied, failures, err := c.externalPass(ctx, items, report)
	if err != nil {
		return nil, err
	}
	result.Conflicts = append(result.Conflicts, external...)
	result.Occupied = occupied
	result.LookupFailures = failures

	for _, conflict := range result.Conflicts {
		conflict.ApplyScore(c.scorer.Score(conflict))
	}
	SortConflicts(result.Conflicts)

	c.logger.Debug("batch classified",
		"items", len(items),
		"conflicts", len(result.Conflicts),
		"lookup_failures", len(failures),
	)
	return result, nil
}

func (c *ConflictClassifier) internalPass(items []domain.AdjustmentItem, report *progressReporter) ([]*domain.Conflict, int) {
	n := len(items)
	total := n * (n - 1) / 2
	var conflicts []*domain.Conflict

	done := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ov := domain.DetectOverlap(items[i].ProposedWindow, items[j].ProposedWindow, c.config.Buffer)
			if ov.Overlaps {
				subject, counterpart := mover(items[i], items[j])
				if subject.ID != items[i].ID {
					// Recompute so the overlap kind reads from the subject's side.
					ov = domain.DetectOverlap(subject.ProposedWindow, counterpart.ProposedWindow, c.config.Buffer)
				}
				conflicts = append(conflicts, domain.NewInternalConflict(subject, counterpart, ov))
			}
			done++
			report.tick(PhaseInternal, done, total)
		}
	}
	report.finish(PhaseInternal, done, total)
	return conflicts, done
}

// mover picks the item that should move: lower priority, then later start, then larger ID.
func mover(a, b domain.AdjustmentItem) (subject, counterpart domain.AdjustmentItem) {
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		if ra < rb {
			return a, b
		}
		return b, a
	}
	if !a.ProposedWindow.Start.Equal(b.ProposedWindow.Start) {
		if a.ProposedWindow.Start.After(b.ProposedWindow.Start) {
			return a, b
		}
		return b, a
	}
	if a.ID > b.ID {
		return a, b
	}
	return b, a
}

type lookupSlot struct {
	schedules []domain.ExistingSchedule
	err       error
}

func (c *ConflictClassifier) externalPass(
	ctx context.Context,
	items []domain.AdjustmentItem,
	report *progressReporter,
) ([]*domain.Conflict, []domain.ExistingSchedule, []*domain.LookupError, error) {
	if c.store == nil || len(items) == 0 {
		return nil, nil, nil, nil
	}

	slots := make([]lookupSlot, len(items))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxConcurrentChecks)
	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			schedules, err := c.store.FindSchedulesNear(gctx, items[i].ProposedWindow, c.config.RadiusDays)
			slots[i] = lookupSlot{schedules: schedules, err: err}

			mu.Lock()
			done++
			report.tick(PhaseExternal, done, len(items))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}
	report.finish(PhaseExternal, len(items), len(items))

	batchIDs := make(map[string]struct{}, len(items))
	for _, item := range items {
		batchIDs[item.ID] = struct{}{}
	}

	var (
		conflicts []*domain.Conflict
		occupied  []domain.ExistingSchedule
		failures  []*domain.LookupError
		seen      = make(map[string]struct{})
	)
	for i, slot := range slots {
		item := items[i]
		if slot.err != nil {
			c.logger.Warn("schedule lookup failed, assuming no external conflicts",
				"item_id", item.ID,
				"error", slot.err,
			)
			failures = append(failures, &domain.LookupError{ItemID: item.ID, Err: slot.err})
			continue
		}
		for _, schedule := range slot.schedules {
			// An item's own booking, or the booking of another batch item, is not external.
			if _, ok := batchIDs[schedule.ID]; ok {
				continue
			}
			if _, ok := seen[schedule.ID]; !ok {
				seen[schedule.ID] = struct{}{}
				occupied = append(occupied, schedule)
			}
			ov := domain.DetectOverlap(item.ProposedWindow, schedule.Window, c.config.Buffer)
			if ov.Overlaps {
				conflicts = append(conflicts, domain.NewExternalConflict(item, schedule, ov))
			}
		}
	}
	return conflicts, occupied, failures, nil
}

// SortConflicts orders conflicts by score desc, proposed start asc, then ID asc.
func SortConflicts(conflicts []*domain.Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.SeverityScore != b.SeverityScore {
			return a.SeverityScore > b.SeverityScore
		}
		as, bs := a.Subject.ProposedWindow.Start, b.Subject.ProposedWindow.Start
		if !as.Equal(bs) {
			return as.Before(bs)
		}
		return a.ID.String() < b.ID.String()
	})
}

type progressReporter struct {
	fn    ProgressFunc
	every int
}

func newProgressReporter(fn ProgressFunc, every int) *progressReporter {
	return &progressReporter{fn: fn, every: every}
}

func (r *progressReporter) tick(phase string, done, total int) {
	if r.fn == nil || done%r.every != 0 || done == total {
		return
	}
	r.fn(Progress{Phase: phase, Done: done, Total: total})
}

func (r *progressReporter) finish(phase string, done, total int) {
	if r.fn == nil {
		return
	}
	r.fn(Progress{Phase: phase, Done: done, Total: total})
}
