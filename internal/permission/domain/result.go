package domain

// Check names reported in violations.
const (
	CheckMagnitude       = "magnitude"
	CheckDelay           = "delay"
	CheckAdvance         = "advance"
	CheckNotice          = "notice"
	CheckAllowedHours    = "allowed_hours"
	CheckRestrictedHours = "restricted_hours"
	CheckCrossDays       = "cross_days"
	CheckWeekend         = "weekend"
	CheckHoliday         = "holiday"
	CheckConditional     = "conditional"
	CheckDailyLimit      = "daily_limit"
)

// Violation is one failed check.
type Violation struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a request against a tier.
type ValidationResult struct {
	Valid            bool        `json:"valid"`
	Errors           []Violation `json:"errors,omitempty"`
	Warnings         []Violation `json:"warnings,omitempty"`
	RequiredApproval bool        `json:"required_approval"`
	ResolvedTier     Tier        `json:"resolved_tier"`
	ImpactScore      float64     `json:"impact_score"`
}

// Err returns a PermissionDeniedError when the result is not valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &PermissionDeniedError{Tier: r.ResolvedTier, Violations: r.Errors}
}
