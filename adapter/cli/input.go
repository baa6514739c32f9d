package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	adjustmentServices "github.com/felixgeelhaar/carevisit/internal/adjustment/application/services"
	adjustmentDomain "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	permissionDomain "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ParseTime accepts RFC 3339 or a wall-clock "YYYY-MM-DD HH:MM" interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339 or YYYY-MM-DD HH:MM", s)
}

// WindowInput is a visit slot as written in batch files and tool input.
type WindowInput struct {
	Start           string `json:"start" yaml:"start"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
}

// ToDomain parses the start. Duration problems are left to domain validation.
func (w WindowInput) ToDomain(loc *time.Location) (adjustmentDomain.TimeWindow, error) {
	start, err := ParseTime(w.Start, loc)
	if err != nil {
		return adjustmentDomain.TimeWindow{}, err
	}
	return adjustmentDomain.TimeWindow{Start: start, DurationMinutes: w.DurationMinutes}, nil
}

// ItemInput is one proposed reschedule.
type ItemInput struct {
	ID          string      `json:"id" yaml:"id"`
	SubjectName string      `json:"subject_name" yaml:"subject_name"`
	Original    WindowInput `json:"original" yaml:"original"`
	Proposed    WindowInput `json:"proposed" yaml:"proposed"`
	Priority    string      `json:"priority,omitempty" yaml:"priority"`
	ServiceType string      `json:"service_type,omitempty" yaml:"service_type"`
	PatientType string      `json:"patient_type,omitempty" yaml:"patient_type"`
	ResourceID  string      `json:"resource_id,omitempty" yaml:"resource_id"`
	IsEmergency bool        `json:"is_emergency,omitempty" yaml:"is_emergency"`
}

// ToDomain converts the item. An unparseable time is reported with the item id.
func (i ItemInput) ToDomain(loc *time.Location) (adjustmentDomain.AdjustmentItem, error) {
	original, err := i.Original.ToDomain(loc)
	if err != nil {
		return adjustmentDomain.AdjustmentItem{}, fmt.Errorf("item %s original: %w", i.ID, err)
	}
	proposed, err := i.Proposed.ToDomain(loc)
	if err != nil {
		return adjustmentDomain.AdjustmentItem{}, fmt.Errorf("item %s proposed: %w", i.ID, err)
	}
	return adjustmentDomain.AdjustmentItem{
		ID:             i.ID,
		SubjectName:    i.SubjectName,
		OriginalWindow: original,
		ProposedWindow: proposed,
		Priority:       adjustmentDomain.Priority(strings.ToLower(i.Priority)),
		ServiceType:    i.ServiceType,
		PatientType:    i.PatientType,
		ResourceID:     i.ResourceID,
		IsEmergency:    i.IsEmergency,
	}, nil
}

// ChoiceInput is a coordinator's action for one conflict under the manual strategy.
type ChoiceInput struct {
	Action string       `json:"action" yaml:"action"`
	Target *WindowInput `json:"target,omitempty" yaml:"target"`
}

// BatchInput is the content of a batch file.
type BatchInput struct {
	BatchID    string                     `json:"batch_id,omitempty" yaml:"batch_id"`
	Strategy   string                     `json:"strategy,omitempty" yaml:"strategy"`
	Requester  permissionDomain.Requester `json:"requester" yaml:"requester"`
	ReasonCode string                     `json:"reason_code,omitempty" yaml:"reason_code"`
	Weather    string                     `json:"weather,omitempty" yaml:"weather"`
	Items      []ItemInput                `json:"items" yaml:"items"`
	Choices    map[string]ChoiceInput     `json:"choices,omitempty" yaml:"choices"`
}

// DecodeBatch reads a batch document. JSON is accepted as the YAML subset it is.
func DecodeBatch(r io.Reader) (BatchInput, error) {
	var in BatchInput
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return in, errors.New("batch document is empty")
		}
		return in, fmt.Errorf("decode batch: %w", err)
	}
	return in, nil
}

// ToCommand converts the input into a batch command. Choices are keyed by conflict id.
func (b BatchInput) ToCommand(loc *time.Location) (adjustmentServices.RunBatchCommand, error) {
	cmd := adjustmentServices.RunBatchCommand{
		BatchID:    b.BatchID,
		Strategy:   adjustmentDomain.Strategy(b.Strategy),
		Requester:  b.Requester,
		ReasonCode: b.ReasonCode,
		Weather:    b.Weather,
		Items:      make([]adjustmentDomain.AdjustmentItem, 0, len(b.Items)),
	}
	for _, in := range b.Items {
		item, err := in.ToDomain(loc)
		if err != nil {
			return cmd, err
		}
		cmd.Items = append(cmd.Items, item)
	}

	if len(b.Choices) > 0 {
		cmd.Choices = make(map[uuid.UUID]adjustmentDomain.ManualChoice, len(b.Choices))
		for key, in := range b.Choices {
			id, err := uuid.Parse(key)
			if err != nil {
				return cmd, fmt.Errorf("choice %q: invalid conflict id: %w", key, err)
			}
			action, err := adjustmentDomain.ParseAction(in.Action)
			if err != nil {
				return cmd, fmt.Errorf("choice %s: %w", key, err)
			}
			choice := adjustmentDomain.ManualChoice{Action: action}
			if in.Target != nil {
				target, err := in.Target.ToDomain(loc)
				if err != nil {
					return cmd, fmt.Errorf("choice %s target: %w", key, err)
				}
				choice.Target = &target
			}
			cmd.Choices[id] = choice
		}
	}
	return cmd, nil
}

// RequestInput is a single adjustment submitted for a permission check.
type RequestInput struct {
	ItemInput `yaml:",inline"`

	Requester  permissionDomain.Requester `json:"requester" yaml:"requester"`
	ReasonCode string                     `json:"reason_code,omitempty" yaml:"reason_code"`
	Weather    string                     `json:"weather,omitempty" yaml:"weather"`
}

// ToRequest converts the input into a permission request.
func (r RequestInput) ToRequest(loc *time.Location) (permissionDomain.AdjustmentRequest, error) {
	item, err := r.ItemInput.ToDomain(loc)
	if err != nil {
		return permissionDomain.AdjustmentRequest{}, err
	}
	return permissionDomain.NewRequestFromItem("", item, r.Requester, r.ReasonCode, r.Weather), nil
}

// VisitInput is one booked visit in an import document.
type VisitInput struct {
	ID              string `json:"id" yaml:"id"`
	SubjectName     string `json:"subject_name" yaml:"subject_name"`
	Start           string `json:"start" yaml:"start"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
	ServiceType     string `json:"service_type,omitempty" yaml:"service_type"`
	Priority        string `json:"priority,omitempty" yaml:"priority"`
	ResourceID      string `json:"resource_id,omitempty" yaml:"resource_id"`
}

// ToDomain validates the visit and converts it into a booked schedule.
func (v VisitInput) ToDomain(loc *time.Location) (adjustmentDomain.ExistingSchedule, error) {
	if v.ID == "" {
		return adjustmentDomain.ExistingSchedule{}, errors.New("schedule id is required")
	}
	start, err := ParseTime(v.Start, loc)
	if err != nil {
		return adjustmentDomain.ExistingSchedule{}, fmt.Errorf("schedule %s: %w", v.ID, err)
	}
	window, err := adjustmentDomain.NewTimeWindow(start, v.DurationMinutes)
	if err != nil {
		return adjustmentDomain.ExistingSchedule{}, fmt.Errorf("schedule %s: %w", v.ID, err)
	}
	priority, err := adjustmentDomain.ParsePriority(v.Priority)
	if err != nil {
		return adjustmentDomain.ExistingSchedule{}, fmt.Errorf("schedule %s: %w", v.ID, err)
	}
	return adjustmentDomain.ExistingSchedule{
		ID:          v.ID,
		SubjectName: v.SubjectName,
		Window:      window,
		ServiceType: v.ServiceType,
		Priority:    priority,
		ResourceID:  v.ResourceID,
	}, nil
}

// ImportSchedules validates every visit and stores them in order. Nothing is
// stored when any visit is invalid.
func ImportSchedules(ctx context.Context, app *App, visits []VisitInput) (int, error) {
	schedules := make([]adjustmentDomain.ExistingSchedule, 0, len(visits))
	for _, in := range visits {
		s, err := in.ToDomain(app.Location)
		if err != nil {
			return 0, err
		}
		schedules = append(schedules, s)
	}

	now := app.Now()
	for i, s := range schedules {
		if err := app.Schedules.Upsert(ctx, s, now); err != nil {
			return i, fmt.Errorf("failed to store schedule %s: %w", s.ID, err)
		}
	}
	return len(schedules), nil
}

// DayWindow covers the calendar day of t in loc.
func DayWindow(t time.Time, loc *time.Location) adjustmentDomain.TimeWindow {
	day := t.In(loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return adjustmentDomain.TimeWindow{Start: start, DurationMinutes: int(end.Sub(start).Minutes())}
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
