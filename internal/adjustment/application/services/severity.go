package services

import (
	"math"
	"strings"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

// FactorFunc scores one aspect of a conflict. Results are clamped to [0,1] by the scorer.
type FactorFunc func(c *domain.Conflict) float64

// SeverityWeights weights the four severity factors. They do not need to sum to 1.
type SeverityWeights struct {
	Overlap  float64 `yaml:"overlap"`
	Priority float64 `yaml:"priority"`
	Service  float64 `yaml:"service"`
	Resource float64 `yaml:"resource"`
}

// DefaultSeverityWeights returns {0.4, 0.3, 0.2, 0.1}.
func DefaultSeverityWeights() SeverityWeights {
	return SeverityWeights{Overlap: 0.4, Priority: 0.3, Service: 0.2, Resource: 0.1}
}

func (w SeverityWeights) total() float64 {
	return positive(w.Overlap) + positive(w.Priority) + positive(w.Service) + positive(w.Resource)
}

// DefaultServiceCriticality rates how disruptive moving a service is. Unknown services score 0.5.
var DefaultServiceCriticality = map[string]float64{
	"medication":     1.0,
	"wound_care":     0.9,
	"infusion":       0.9,
	"nursing":        0.8,
	"rehabilitation": 0.6,
	"physiotherapy":  0.6,
	"personal_care":  0.4,
	"housekeeping":   0.2,
	"companionship":  0.1,
}

// ServiceTableFactor scores the subject's service type from a lookup table.
func ServiceTableFactor(table map[string]float64, fallback float64) FactorFunc {
	return func(c *domain.Conflict) float64 {
		if v, ok := table[strings.ToLower(c.Subject.ServiceType)]; ok {
			return v
		}
		return fallback
	}
}

// SharedResourceFactor is 1 for the same subject, 0.75 for the same resource, 0.5 for the same
// service type and 0 otherwise.
func SharedResourceFactor(c *domain.Conflict) float64 {
	subject, resource, service := counterpartAttributes(c)
	switch {
	case subject != "" && strings.EqualFold(subject, c.Subject.SubjectName):
		return 1
	case resource != "" && resource == c.Subject.ResourceID:
		return 0.75
	case service != "" && strings.EqualFold(service, c.Subject.ServiceType):
		return 0.5
	default:
		return 0
	}
}

func counterpartAttributes(c *domain.Conflict) (subject, resource, service string) {
	switch {
	case c.CounterpartItem != nil:
		return c.CounterpartItem.SubjectName, c.CounterpartItem.ResourceID, c.CounterpartItem.ServiceType
	case c.CounterpartSchedule != nil:
		return c.CounterpartSchedule.SubjectName, c.CounterpartSchedule.ResourceID, c.CounterpartSchedule.ServiceType
	}
	return "", "", ""
}

// SeverityScorer turns a conflict into a 0–100 score.
type SeverityScorer struct {
	weights            SeverityWeights
	serviceCriticality FactorFunc
	resourceIndicator  FactorFunc
}

// ScorerOption customizes a SeverityScorer.
type ScorerOption func(*SeverityScorer)

// WithServiceCriticality replaces the service criticality factor.
func WithServiceCriticality(f FactorFunc) ScorerOption {
	return func(s *SeverityScorer) {
		if f != nil {
			s.serviceCriticality = f
		}
	}
}

// WithResourceIndicator replaces the resource conflict factor.
func WithResourceIndicator(f FactorFunc) ScorerOption {
	return func(s *SeverityScorer) {
		if f != nil {
			s.resourceIndicator = f
		}
	}
}

// NewSeverityScorer creates a scorer. Zero weights fall back to the defaults.
func NewSeverityScorer(weights SeverityWeights, opts ...ScorerOption) *SeverityScorer {
	if weights.total() == 0 {
		weights = DefaultSeverityWeights()
	}
	s := &SeverityScorer{
		weights:            weights,
		serviceCriticality: ServiceTableFactor(DefaultServiceCriticality, 0.5),
		resourceIndicator:  SharedResourceFactor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes 100·Σwᵢfᵢ/Σwᵢ.
func (s *SeverityScorer) Score(c *domain.Conflict) float64 {
	w := s.weights
	sum := positive(w.Overlap)*clamp01(overlapRatio(c)) +
		positive(w.Priority)*clamp01(priorityFactor(c)) +
		positive(w.Service)*clamp01(s.serviceCriticality(c)) +
		positive(w.Resource)*clamp01(s.resourceIndicator(c))

	score := 100 * sum / w.total()
	if score > 100 {
		return 100
	}
	return score
}

func overlapRatio(c *domain.Conflict) float64 {
	d := c.Subject.ProposedWindow.DurationMinutes
	if d <= 0 {
		return 1
	}
	return float64(c.OverlapMinutes) / float64(d)
}

func priorityFactor(c *domain.Conflict) float64 {
	p := c.Subject.Priority.Score()
	if c.Kind == domain.ConflictInternal {
		if other := c.CounterpartPriority().Score(); other > p {
			return other
		}
	}
	return p
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func positive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
