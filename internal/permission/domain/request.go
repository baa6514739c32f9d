package domain

import (
	"strings"
	"time"

	adjustment "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

// Requester identifies who asks for an adjustment.
type Requester struct {
	ID   string `json:"id" yaml:"id"`
	Role string `json:"role" yaml:"role"`
}

// AdjustmentRequest is a single reschedule submitted for permission checks.
type AdjustmentRequest struct {
	ItemID         string                `json:"item_id"`
	BatchID        string                `json:"batch_id,omitempty"`
	SubjectName    string                `json:"subject_name"`
	OriginalWindow adjustment.TimeWindow `json:"original_window"`
	ProposedWindow adjustment.TimeWindow `json:"proposed_window"`
	Requester      Requester             `json:"requester"`
	ReasonCode     string                `json:"reason_code,omitempty"`
	IsEmergency    bool                  `json:"is_emergency"`
	PatientType    string                `json:"patient_type,omitempty"`
	ServiceType    string                `json:"service_type,omitempty"`
	Weather        string                `json:"weather,omitempty"`
	Priority       adjustment.Priority   `json:"priority,omitempty"`
	ResourceID     string                `json:"resource_id,omitempty"`
}

// NewRequestFromItem builds a request for a batch item.
func NewRequestFromItem(batchID string, item adjustment.AdjustmentItem, requester Requester, reason, weather string) AdjustmentRequest {
	return AdjustmentRequest{
		ItemID:         item.ID,
		BatchID:        batchID,
		SubjectName:    item.SubjectName,
		OriginalWindow: item.OriginalWindow,
		ProposedWindow: item.ProposedWindow,
		Requester:      requester,
		ReasonCode:     reason,
		IsEmergency:    item.IsEmergency,
		PatientType:    item.PatientType,
		ServiceType:    item.ServiceType,
		Weather:        weather,
		Priority:       item.Priority,
		ResourceID:     item.ResourceID,
	}
}

// Item rebuilds the batch item the request was made for, at its proposed window.
func (r AdjustmentRequest) Item() adjustment.AdjustmentItem {
	return adjustment.AdjustmentItem{
		ID:             r.ItemID,
		SubjectName:    r.SubjectName,
		OriginalWindow: r.OriginalWindow,
		ProposedWindow: r.ProposedWindow,
		Priority:       r.Priority,
		ServiceType:    r.ServiceType,
		PatientType:    r.PatientType,
		ResourceID:     r.ResourceID,
		IsEmergency:    r.IsEmergency,
	}
}

// Validate rejects malformed requests.
func (r AdjustmentRequest) Validate() error {
	if strings.TrimSpace(r.ItemID) == "" {
		return adjustment.NewValidationError("item_id", "item id is required")
	}
	if strings.TrimSpace(r.Requester.ID) == "" {
		return adjustment.NewValidationError("requester", "requester id is required")
	}
	if err := r.OriginalWindow.Validate(); err != nil {
		return err
	}
	return r.ProposedWindow.Validate()
}

// Shift is the signed move of the start: positive when the visit moves later.
func (r AdjustmentRequest) Shift() time.Duration {
	return r.ProposedWindow.Start.Sub(r.OriginalWindow.Start)
}

// MagnitudeHours is the absolute size of the move in hours.
func (r AdjustmentRequest) MagnitudeHours() float64 {
	return r.Shift().Abs().Hours()
}

// NoticeHours is the time from now to the original start. It is negative once the visit has started.
func (r AdjustmentRequest) NoticeHours(now time.Time) float64 {
	return r.OriginalWindow.Start.Sub(now).Hours()
}

// CrossDays counts calendar days between the original and the proposed date in loc.
func (r AdjustmentRequest) CrossDays(loc *time.Location) int {
	o := r.OriginalWindow.Start.In(loc)
	p := r.ProposedWindow.Start.In(loc)
	od := time.Date(o.Year(), o.Month(), o.Day(), 0, 0, 0, 0, time.UTC)
	pd := time.Date(p.Year(), p.Month(), p.Day(), 0, 0, 0, 0, time.UTC)
	days := int(pd.Sub(od).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// Key identifies the request for the one-active-case rule.
func (r AdjustmentRequest) Key() string {
	if r.BatchID == "" {
		return r.ItemID
	}
	return r.BatchID + "/" + r.ItemID
}
