package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/permission/domain"
)

// EvaluatorConfig configures the permission evaluator.
type EvaluatorConfig struct {
	// EmergencyNoticeHours is the notice below which a request is an emergency.
	EmergencyNoticeHours float64
	// ApprovalImpactThreshold is the impact score above which approval is always required.
	ApprovalImpactThreshold float64
	// Location decides calendar days, weekends and clock ranges; nil uses the window's location.
	Location *time.Location
	// PatientTypeWeights and ServiceTypeWeights feed the impact score. Unknown keys weigh 0.4.
	PatientTypeWeights map[string]float64
	ServiceTypeWeights map[string]float64
}

// DefaultEvaluatorConfig returns the default configuration.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		EmergencyNoticeHours:    2,
		ApprovalImpactThreshold: 70,
		PatientTypeWeights: map[string]float64{
			"critical":   1.0,
			"palliative": 0.9,
			"elderly":    0.7,
			"chronic":    0.6,
			"standard":   0.3,
		},
		ServiceTypeWeights: map[string]float64{
			"medication":     1.0,
			"wound_care":     0.9,
			"infusion":       0.9,
			"nursing":        0.7,
			"rehabilitation": 0.5,
			"personal_care":  0.4,
			"housekeeping":   0.2,
		},
	}
}

const unknownTypeWeight = 0.4

// Impact factor weights.
const (
	impactMagnitude = 0.30
	impactNotice    = 0.25
	impactPatient   = 0.20
	impactService   = 0.15
	impactFrequency = 0.10
)

// PermissionEvaluator decides the tier of a request and validates it against that tier.
// DetermineTier and Validate never read a clock; the reference time is always a parameter.
type PermissionEvaluator struct {
	profiles domain.ProfileProvider
	usage    domain.UsageCounter
	holidays domain.HolidayCalendar
	config   EvaluatorConfig
	logger   *slog.Logger
}

// NewPermissionEvaluator creates an evaluator. A nil usage counter counts zero, a nil calendar has no holidays.
func NewPermissionEvaluator(
	profiles domain.ProfileProvider,
	usage domain.UsageCounter,
	holidays domain.HolidayCalendar,
	config EvaluatorConfig,
	logger *slog.Logger,
) *PermissionEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if holidays == nil {
		holidays = domain.NoHolidays{}
	}
	defaults := DefaultEvaluatorConfig()
	if config.EmergencyNoticeHours <= 0 {
		config.EmergencyNoticeHours = defaults.EmergencyNoticeHours
	}
	if config.ApprovalImpactThreshold <= 0 {
		config.ApprovalImpactThreshold = defaults.ApprovalImpactThreshold
	}
	if config.PatientTypeWeights == nil {
		config.PatientTypeWeights = defaults.PatientTypeWeights
	}
	if config.ServiceTypeWeights == nil {
		config.ServiceTypeWeights = defaults.ServiceTypeWeights
	}
	return &PermissionEvaluator{
		profiles: profiles,
		usage:    usage,
		holidays: holidays,
		config:   config,
		logger:   logger,
	}
}

func (e *PermissionEvaluator) location(req domain.AdjustmentRequest) *time.Location {
	if e.config.Location != nil {
		return e.config.Location
	}
	return req.ProposedWindow.Start.Location()
}

// DetermineTier picks the least privileged tier that fits the request.
// Admin is only chosen for admin requesters.
func (e *PermissionEvaluator) DetermineTier(req domain.AdjustmentRequest, now time.Time) (domain.Tier, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if strings.EqualFold(req.Requester.Role, domain.RoleAdmin) {
		return domain.TierAdmin, nil
	}

	loc := e.location(req)
	if req.IsEmergency || req.NoticeHours(now) < e.config.EmergencyNoticeHours || req.CrossDays(loc) > 0 {
		return domain.TierEmergency, nil
	}

	normal, err := e.profiles.Profile(domain.TierNormal)
	if err != nil {
		return "", fmt.Errorf("load normal profile: %w", err)
	}
	if !insideAny(normal.AllowedTimeRanges, req, loc) || exceeds(req.MagnitudeHours(), normal.MaxAdjustHours) {
		return domain.TierAdvanced, nil
	}
	return domain.TierNormal, nil
}

// Validate runs every check of the tier's profile against the request.
// A malformed request returns a ValidationError and no result.
func (e *PermissionEvaluator) Validate(
	req domain.AdjustmentRequest,
	tier domain.Tier,
	usageCount int,
	now time.Time,
) (domain.ValidationResult, error) {
	if err := req.Validate(); err != nil {
		return domain.ValidationResult{}, err
	}
	if _, err := domain.ParseTier(string(tier)); err != nil {
		return domain.ValidationResult{}, err
	}
	profile, err := e.profiles.Profile(tier)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("load %s profile: %w", tier, err)
	}

	loc := e.location(req)
	result := domain.ValidationResult{ResolvedTier: tier}
	override := profile.EmergencyOverride && req.IsEmergency
	fail := func(check, format string, args ...any) {
		v := domain.Violation{Check: check, Message: fmt.Sprintf(format, args...)}
		if override {
			result.Warnings = append(result.Warnings, v)
			result.RequiredApproval = true
			return
		}
		result.Errors = append(result.Errors, v)
	}

	magnitude := req.MagnitudeHours()
	shift := req.Shift().Hours()
	notice := req.NoticeHours(now)

	// 1. magnitude, then the independent directional caps
	if exceeds(magnitude, profile.MaxAdjustHours) {
		fail(domain.CheckMagnitude, "adjustment of %s exceeds the %s cap of %s", hours(magnitude), tier, hours(profile.MaxAdjustHours))
	}
	if shift > 0 && exceeds(shift, profile.MaxDelayHours) {
		fail(domain.CheckDelay, "delay of %s exceeds the %s delay cap of %s", hours(shift), tier, hours(profile.MaxDelayHours))
	}
	if shift < 0 && exceeds(-shift, profile.MaxAdvanceHours) {
		fail(domain.CheckAdvance, "advance of %s exceeds the %s advance cap of %s", hours(-shift), tier, hours(profile.MaxAdvanceHours))
	}

	// 2. notice
	if notice < profile.MinNoticeHours {
		fail(domain.CheckNotice, "notice of %s is below the required %s", hours(notice), hours(profile.MinNoticeHours))
	}

	// 3. allowed ranges
	if len(profile.AllowedTimeRanges) > 0 && !insideAny(profile.AllowedTimeRanges, req, loc) {
		fail(domain.CheckAllowedHours, "proposed window %s is outside the allowed hours %s",
			req.ProposedWindow, joinRanges(profile.AllowedTimeRanges))
	}

	// 4. restricted ranges
	restricted := []struct {
		name  string
		r     domain.ClockRange
		apply bool
	}{
		{"night", profile.RestrictedHours.Night, true},
		{"lunch", profile.RestrictedHours.Lunch, true},
		{"emergency", profile.RestrictedHours.Emergency, !req.IsEmergency},
	}
	for _, rh := range restricted {
		if rh.apply && rh.r.Intersects(req.ProposedWindow, loc) {
			fail(domain.CheckRestrictedHours, "proposed window %s falls into %s hours %s", req.ProposedWindow, rh.name, rh.r)
		}
	}

	// 5. cross days
	if days := req.CrossDays(loc); days > profile.MaxCrossDays {
		fail(domain.CheckCrossDays, "adjustment crosses %d days, the %s limit is %d", days, tier, profile.MaxCrossDays)
	}

	// 6. weekend and holiday
	proposed := req.ProposedWindow.Start.In(loc)
	if wd := proposed.Weekday(); (wd == time.Saturday || wd == time.Sunday) && !profile.AllowWeekend {
		fail(domain.CheckWeekend, "%s tier does not allow weekend visits", tier)
	}
	if !profile.AllowHoliday && e.holidays.IsHoliday(proposed) {
		fail(domain.CheckHoliday, "%s is a holiday", proposed.Format("2006-01-02"))
	}

	// 7. conditional restrictions
	if restrictions := profile.Restrictions(req); len(restrictions) > 0 {
		maxAdjust, minNotice := 0.0, 0.0
		for _, r := range restrictions {
			if r.MaxAdjustHours > 0 && (maxAdjust == 0 || r.MaxAdjustHours < maxAdjust) {
				maxAdjust = r.MaxAdjustHours
			}
			minNotice = math.Max(minNotice, r.MinNoticeHours)
			if r.RequireApproval {
				result.RequiredApproval = true
			}
		}
		if exceeds(magnitude, maxAdjust) {
			fail(domain.CheckConditional, "adjustment of %s exceeds the conditional cap of %s", hours(magnitude), hours(maxAdjust))
		}
		if notice < minNotice {
			fail(domain.CheckConditional, "notice of %s is below the conditional minimum of %s", hours(notice), hours(minNotice))
		}
	}

	// 8. daily usage
	if profile.MaxAdjustTimesPerDay > 0 && usageCount >= profile.MaxAdjustTimesPerDay {
		fail(domain.CheckDailyLimit, "daily limit of %d adjustments reached", profile.MaxAdjustTimesPerDay)
	}

	result.ImpactScore = e.impactScore(req, usageCount, notice, magnitude)
	if result.ImpactScore > e.config.ApprovalImpactThreshold || profile.RequireApproval {
		result.RequiredApproval = true
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}

// Evaluate determines the tier, looks up today's usage for the requester and validates.
func (e *PermissionEvaluator) Evaluate(ctx context.Context, req domain.AdjustmentRequest, now time.Time) (domain.ValidationResult, error) {
	tier, err := e.DetermineTier(req, now)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	count := 0
	if e.usage != nil {
		count, err = e.usage.DailyCount(ctx, req.Requester.ID, now.In(e.location(req)))
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("read daily usage for %s: %w", req.Requester.ID, err)
		}
	}

	result, err := e.Validate(req, tier, count, now)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	e.logger.Debug("adjustment evaluated",
		"item_id", req.ItemID,
		"tier", tier,
		"valid", result.Valid,
		"required_approval", result.RequiredApproval,
		"impact_score", result.ImpactScore,
	)
	return result, nil
}

// RecordUsage counts one committed adjustment for the requester.
func (e *PermissionEvaluator) RecordUsage(ctx context.Context, req domain.AdjustmentRequest, now time.Time) error {
	if e.usage == nil {
		return nil
	}
	if _, err := e.usage.Increment(ctx, req.Requester.ID, now.In(e.location(req))); err != nil {
		return fmt.Errorf("increment daily usage for %s: %w", req.Requester.ID, err)
	}
	return nil
}

func (e *PermissionEvaluator) impactScore(req domain.AdjustmentRequest, usageCount int, notice, magnitude float64) float64 {
	shortfall := (24 - math.Max(notice, 0)) / 24
	score := impactMagnitude*clamp01(magnitude/24) +
		impactNotice*clamp01(shortfall) +
		impactPatient*weightOf(e.config.PatientTypeWeights, req.PatientType) +
		impactService*weightOf(e.config.ServiceTypeWeights, req.ServiceType) +
		impactFrequency*clamp01(float64(usageCount)/5)
	return math.Min(100, math.Round(score*10000)/100)
}

func weightOf(table map[string]float64, key string) float64 {
	if w, ok := table[strings.ToLower(key)]; ok {
		return clamp01(w)
	}
	return unknownTypeWeight
}

func insideAny(ranges []domain.ClockRange, req domain.AdjustmentRequest, loc *time.Location) bool {
	for _, r := range ranges {
		if r.Contains(req.ProposedWindow, loc) {
			return true
		}
	}
	return false
}

// exceeds treats a non-positive limit as unlimited.
func exceeds(value, limit float64) bool {
	return limit > 0 && value > limit
}

func hours(h float64) string {
	return fmt.Sprintf("%gh", math.Round(h*100)/100)
}

func joinRanges(ranges []domain.ClockRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
