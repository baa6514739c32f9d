package services

import (
	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

type smartRule struct {
	severity   domain.Severity     // empty matches any
	kind       domain.ConflictKind // empty matches any
	priorities []domain.Priority   // empty matches any
	action     domain.SmartAction
	confidence float64
	rationale  string
}

// smartRules is evaluated top to bottom; the first match wins.
var smartRules = []smartRule{
	{
		severity:   domain.SeverityCritical,
		priorities: []domain.Priority{domain.PriorityUrgent},
		action:     domain.SmartManualReview,
		confidence: 85,
		rationale:  "critical conflict on an urgent visit needs a coordinator",
	},
	{
		severity:   domain.SeverityCritical,
		kind:       domain.ConflictExternal,
		action:     domain.SmartNegotiate,
		confidence: 70,
		rationale:  "critical clash with a booked visit, negotiate with its owner",
	},
	{
		severity:   domain.SeverityCritical,
		kind:       domain.ConflictInternal,
		action:     domain.SmartAutoReschedule,
		confidence: 75,
		rationale:  "critical clash inside the batch, move the lower priority visit",
	},
	{
		severity:   domain.SeverityHigh,
		priorities: []domain.Priority{domain.PriorityUrgent, domain.PriorityHigh},
		action:     domain.SmartAutoReschedule,
		confidence: 80,
		rationale:  "high severity on an important visit, reschedule promptly",
	},
	{
		severity:   domain.SeverityHigh,
		kind:       domain.ConflictExternal,
		action:     domain.SmartAutoReschedule,
		confidence: 70,
		rationale:  "high severity clash with a booked visit",
	},
	{
		severity:   domain.SeverityHigh,
		action:     domain.SmartAutoReschedule,
		confidence: 75,
		rationale:  "high severity clash inside the batch",
	},
	{
		severity:   domain.SeverityMedium,
		action:     domain.SmartAutoReschedule,
		confidence: 85,
		rationale:  "moderate overlap, a nearby slot is enough",
	},
	{
		severity:   domain.SeverityLow,
		priorities: []domain.Priority{domain.PriorityLow},
		action:     domain.SmartSkip,
		confidence: 90,
		rationale:  "minor overlap on a low priority visit",
	},
	{
		severity:   domain.SeverityLow,
		action:     domain.SmartAutoReschedule,
		confidence: 90,
		rationale:  "minor overlap, a nearby slot is enough",
	},
}

var fallbackSmartRule = smartRule{
	action:     domain.SmartManualReview,
	confidence: 50,
	rationale:  "no rule matched",
}

func (r smartRule) matches(c *domain.Conflict) bool {
	if r.severity != "" && r.severity != c.Severity {
		return false
	}
	if r.kind != "" && r.kind != c.Kind {
		return false
	}
	if len(r.priorities) == 0 {
		return true
	}
	for _, p := range r.priorities {
		if p == c.Subject.Priority {
			return true
		}
	}
	return false
}

func matchSmartRule(c *domain.Conflict) smartRule {
	for _, r := range smartRules {
		if r.matches(c) {
			return r
		}
	}
	return fallbackSmartRule
}
