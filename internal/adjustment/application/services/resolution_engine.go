package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/google/uuid"
)

// Search directions for the auto strategy.
const (
	DirectionLater   = "later"
	DirectionEarlier = "earlier"
)

// ResolverConfig configures the resolution strategy engine.
type ResolverConfig struct {
	Step          time.Duration
	MaxAttempts   int
	Direction     string
	Buffer        time.Duration
	WorkdayStart  time.Duration
	WorkdayEnd    time.Duration
	AllowWeekend  bool
	MaxDaysDelay  int
	LowConfidence float64
	// Location decides the workday and weekend; nil uses each window's own location.
	Location *time.Location
}

// DefaultResolverConfig returns the default configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Step:          30 * time.Minute,
		MaxAttempts:   10,
		Direction:     DirectionLater,
		Buffer:        15 * time.Minute,
		WorkdayStart:  8 * time.Hour,
		WorkdayEnd:    18 * time.Hour,
		MaxDaysDelay:  3,
		LowConfidence: 40,
	}
}

// ResolveInput is everything one resolution run needs.
type ResolveInput struct {
	Items     []domain.AdjustmentItem
	Conflicts []*domain.Conflict
	Occupied  []domain.ExistingSchedule
	Strategy  domain.Strategy
	Choices   map[uuid.UUID]domain.ManualChoice
}

// Resolution holds one decision per conflict and the working copy of the items.
type Resolution struct {
	Decisions []domain.ResolutionDecision
	Items     []domain.AdjustmentItem
}

// ResolutionEngine decides how each conflict of a batch is closed.
type ResolutionEngine struct {
	config ResolverConfig
	logger *slog.Logger
}

// NewResolutionEngine creates a resolution engine.
func NewResolutionEngine(config ResolverConfig, logger *slog.Logger) *ResolutionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultResolverConfig()
	if config.Step <= 0 {
		config.Step = defaults.Step
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Direction != DirectionEarlier {
		config.Direction = DirectionLater
	}
	if config.WorkdayEnd <= config.WorkdayStart {
		config.WorkdayStart, config.WorkdayEnd = defaults.WorkdayStart, defaults.WorkdayEnd
	}
	return &ResolutionEngine{config: config, logger: logger}
}

// Resolve produces exactly one decision per conflict, in conflict order.
// Input items are never modified; moves are applied to the returned working copy.
func (e *ResolutionEngine) Resolve(ctx context.Context, in ResolveInput) (*Resolution, error) {
	strategy, err := domain.ParseStrategy(string(in.Strategy))
	if err != nil {
		return nil, err
	}

	ws := newWorkingSet(in.Items, in.Occupied)
	decisions := make([]domain.ResolutionDecision, 0, len(in.Conflicts))

	for _, c := range in.Conflicts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var d domain.ResolutionDecision
		switch strategy {
		case domain.StrategyAuto:
			d = e.resolveAuto(ws, c)
		case domain.StrategyManual:
			d = e.resolveManual(ws, c, in.Choices)
		case domain.StrategySkip:
			d = decision(c, domain.ActionSkip, 100, "skip strategy keeps the proposed window")
		default:
			d = e.resolveSmart(ws, c)
		}
		decisions = append(decisions, d)

		e.logger.Debug("conflict resolved",
			"conflict_id", c.ID,
			"item_id", c.Subject.ID,
			"strategy", strategy,
			"action", d.Action,
			"failed", d.Failed,
			"escalated", d.Escalated,
		)
	}

	return &Resolution{Decisions: decisions, Items: ws.items}, nil
}

func decision(c *domain.Conflict, action domain.Action, confidence float64, rationale string) domain.ResolutionDecision {
	return domain.ResolutionDecision{
		ConflictID: c.ID,
		ItemID:     c.Subject.ID,
		Action:     action,
		Confidence: confidence,
		Rationale:  rationale,
	}
}

func (e *ResolutionEngine) resolveAuto(ws *workingSet, c *domain.Conflict) domain.ResolutionDecision {
	idx, ok := ws.index[c.Subject.ID]
	if !ok {
		d := decision(c, domain.ActionReschedule, 0, "subject is not part of the batch")
		d.Failed, d.Escalated = true, true
		return d
	}

	if !ws.stillConflicts(c, e.config.Buffer) {
		current := ws.items[idx].ProposedWindow
		d := decision(c, domain.ActionReschedule, 100, "already cleared by an earlier move")
		d.TargetWindow = &current
		return d
	}

	candidate, attempts, found := e.search(ws, idx)
	if !found {
		d := decision(c, domain.ActionReschedule, 0,
			fmt.Errorf("%w after %d attempts", domain.ErrResolutionExhausted, attempts).Error())
		d.Attempts = attempts
		d.Failed, d.Escalated = true, true
		return d
	}

	ws.items[idx].ProposedWindow = candidate
	d := decision(c, domain.ActionReschedule, e.searchConfidence(attempts),
		fmt.Sprintf("moved to %s after %d attempts", candidate, attempts))
	d.TargetWindow = &candidate
	d.Attempts = attempts
	return d
}

// search walks the subject away from its current window, one walker per direction, preferred
// direction first. A candidate blocked by other visits jumps to the nearest edge that clears all
// of them plus the buffer; a candidate rejected only by the calendar moves one Step.
// It returns the attempt index of the winning candidate, or MaxAttempts when none is found.
func (e *ResolutionEngine) search(ws *workingSet, idx int) (domain.TimeWindow, int, bool) {
	base := ws.items[idx].ProposedWindow
	directions := [2]time.Duration{1, -1}
	if e.config.Direction == DirectionEarlier {
		directions = [2]time.Duration{-1, 1}
	}
	walkers := [2]domain.TimeWindow{base, base}

	for k := 1; k <= e.config.MaxAttempts; k++ {
		for i, dir := range directions {
			candidate := e.advance(ws, idx, walkers[i], dir)
			walkers[i] = candidate
			if e.acceptable(ws, idx, candidate) {
				return candidate, k, true
			}
		}
	}
	return domain.TimeWindow{}, e.config.MaxAttempts, false
}

// advance returns the next candidate after w in direction dir.
func (e *ResolutionEngine) advance(ws *workingSet, idx int, w domain.TimeWindow, dir time.Duration) domain.TimeWindow {
	blockers := ws.blockers(idx, w, e.config.Buffer)
	if len(blockers) == 0 {
		return w.Shift(dir * e.config.Step)
	}

	next := w.Start
	for _, b := range blockers {
		if dir > 0 {
			if edge := b.End().Add(e.config.Buffer); edge.After(next) {
				next = edge
			}
			continue
		}
		if edge := b.Start.Add(-e.config.Buffer - w.Duration()); edge.Before(next) {
			next = edge
		}
	}
	return w.Shift(next.Sub(w.Start))
}

func (e *ResolutionEngine) searchConfidence(attempts int) float64 {
	return 100 - float64(attempts-1)*90/float64(e.config.MaxAttempts)
}

func (e *ResolutionEngine) acceptable(ws *workingSet, idx int, candidate domain.TimeWindow) bool {
	return e.withinCalendar(ws.items[idx].OriginalWindow, candidate) && ws.free(idx, candidate, e.config.Buffer)
}

func (e *ResolutionEngine) withinCalendar(original, candidate domain.TimeWindow) bool {
	start := candidate.Start
	if e.config.Location != nil {
		start = start.In(e.config.Location)
	}
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	if start.Before(midnight.Add(e.config.WorkdayStart)) || candidate.End().After(midnight.Add(e.config.WorkdayEnd)) {
		return false
	}
	if !e.config.AllowWeekend {
		if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if e.config.MaxDaysDelay > 0 {
		limit := time.Duration(e.config.MaxDaysDelay) * 24 * time.Hour
		if delta := candidate.Start.Sub(original.Start).Abs(); delta > limit {
			return false
		}
	}
	return true
}

func (e *ResolutionEngine) resolveManual(
	ws *workingSet,
	c *domain.Conflict,
	choices map[uuid.UUID]domain.ManualChoice,
) domain.ResolutionDecision {
	choice, ok := choices[c.ID]
	if !ok {
		d := decision(c, domain.ActionNegotiate, 0, "no manual choice supplied")
		d.Escalated = true
		return d
	}
	idx, inBatch := ws.index[c.Subject.ID]

	switch choice.Action {
	case domain.ActionReschedule:
		return e.resolveAuto(ws, c)

	case domain.ActionRescheduleManual:
		if choice.Target == nil {
			return failedManual(c, "reschedule_manual requires a target window")
		}
		if err := choice.Target.Validate(); err != nil {
			return failedManual(c, err.Error())
		}
		if !inBatch {
			return failedManual(c, "subject is not part of the batch")
		}
		if !ws.free(idx, *choice.Target, e.config.Buffer) {
			return failedManual(c, fmt.Sprintf("target %s overlaps another visit", *choice.Target))
		}
		target := *choice.Target
		ws.items[idx].ProposedWindow = target
		d := decision(c, domain.ActionRescheduleManual, 100, "coordinator chose "+target.String())
		d.TargetWindow = &target
		return d

	case domain.ActionForce:
		var target domain.TimeWindow
		switch {
		case choice.Target != nil:
			target = *choice.Target
		case inBatch:
			target = ws.items[idx].ProposedWindow
		default:
			target = c.Subject.ProposedWindow
		}
		if inBatch {
			ws.items[idx].ProposedWindow = target
		}
		d := decision(c, domain.ActionForce, 100, "forced without overlap validation")
		d.TargetWindow = &target
		d.Risk = true
		return d

	case domain.ActionSkip, domain.ActionCancel, domain.ActionNegotiate:
		return decision(c, choice.Action, 100, "coordinator chose "+string(choice.Action))

	default:
		return failedManual(c, fmt.Sprintf("unknown action %q", choice.Action))
	}
}

func failedManual(c *domain.Conflict, rationale string) domain.ResolutionDecision {
	d := decision(c, domain.ActionRescheduleManual, 0, rationale)
	d.Failed, d.Escalated = true, true
	return d
}

func (e *ResolutionEngine) resolveSmart(ws *workingSet, c *domain.Conflict) domain.ResolutionDecision {
	rule := matchSmartRule(c)

	switch rule.action {
	case domain.SmartSkip:
		d := decision(c, domain.ActionSkip, rule.confidence, rule.rationale)
		d.SmartAction = domain.SmartSkip
		return d

	case domain.SmartNegotiate:
		d := decision(c, domain.ActionNegotiate, rule.confidence, rule.rationale)
		d.SmartAction = domain.SmartNegotiate
		return d

	case domain.SmartAutoReschedule:
		idx, ok := ws.index[c.Subject.ID]
		if ok && !ws.stillConflicts(c, e.config.Buffer) {
			current := ws.items[idx].ProposedWindow
			d := decision(c, domain.ActionReschedule, rule.confidence, "already cleared by an earlier move")
			d.TargetWindow = &current
			d.SmartAction = domain.SmartAutoReschedule
			return d
		}
		if !ok {
			return manualReview(c, nil, 0, rule.confidence, "subject is not part of the batch")
		}

		candidate, attempts, found := e.search(ws, idx)
		if !found {
			return manualReview(c, nil, attempts, rule.confidence/2,
				fmt.Sprintf("%s: %v", rule.rationale, domain.ErrResolutionExhausted))
		}
		combined := rule.confidence * e.searchConfidence(attempts) / 100
		if combined < e.config.LowConfidence {
			return manualReview(c, &candidate, attempts, combined,
				fmt.Sprintf("%s: confidence %.0f too low to apply %s", rule.rationale, combined, candidate))
		}

		ws.items[idx].ProposedWindow = candidate
		d := decision(c, domain.ActionReschedule, combined, fmt.Sprintf("%s: moved to %s", rule.rationale, candidate))
		d.TargetWindow = &candidate
		d.Attempts = attempts
		d.SmartAction = domain.SmartAutoReschedule
		return d

	default:
		return manualReview(c, nil, 0, rule.confidence, rule.rationale)
	}
}

// manualReview escalates to a coordinator. A candidate, when known, is attached as a suggestion only.
func manualReview(c *domain.Conflict, suggestion *domain.TimeWindow, attempts int, confidence float64, rationale string) domain.ResolutionDecision {
	d := decision(c, domain.ActionRescheduleManual, confidence, rationale)
	d.TargetWindow = suggestion
	d.Attempts = attempts
	d.Escalated = true
	d.SmartAction = domain.SmartManualReview
	return d
}

// workingSet is the engine's private copy of the batch plus the booked schedules around it.
type workingSet struct {
	items    []domain.AdjustmentItem
	index    map[string]int
	occupied []domain.ExistingSchedule
}

func newWorkingSet(items []domain.AdjustmentItem, occupied []domain.ExistingSchedule) *workingSet {
	ws := &workingSet{
		items:    make([]domain.AdjustmentItem, len(items)),
		index:    make(map[string]int, len(items)),
		occupied: occupied,
	}
	copy(ws.items, items)
	for i, item := range ws.items {
		ws.index[item.ID] = i
	}
	return ws
}

func (ws *workingSet) stillConflicts(c *domain.Conflict, buffer time.Duration) bool {
	idx, ok := ws.index[c.Subject.ID]
	if !ok {
		return true
	}
	subject := ws.items[idx].ProposedWindow

	counterpart := c.CounterpartWindow()
	if c.CounterpartItem != nil {
		if j, ok := ws.index[c.CounterpartItem.ID]; ok {
			counterpart = ws.items[j].ProposedWindow
		}
	}
	return domain.Overlaps(subject, counterpart, buffer)
}

// free reports whether w clears every other batch item and every booked schedule.
func (ws *workingSet) free(idx int, w domain.TimeWindow, buffer time.Duration) bool {
	return len(ws.blockers(idx, w, buffer)) == 0
}

// blockers returns the windows of other batch items and booked schedules that collide with w.
func (ws *workingSet) blockers(idx int, w domain.TimeWindow, buffer time.Duration) []domain.TimeWindow {
	var out []domain.TimeWindow
	for j, other := range ws.items {
		if j != idx && domain.Overlaps(w, other.ProposedWindow, buffer) {
			out = append(out, other.ProposedWindow)
		}
	}
	self := ws.items[idx].ID
	for _, s := range ws.occupied {
		if s.ID != self && domain.Overlaps(w, s.Window, buffer) {
			out = append(out, s.Window)
		}
	}
	return out
}
