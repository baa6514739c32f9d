package domain

import (
	permission "github.com/felixgeelhaar/carevisit/internal/permission/domain"
)

// Role is an approver role.
type Role string

const (
	RoleSeniorRecorder  Role = "senior_recorder"
	RoleSupervisor      Role = "supervisor"
	RoleDepartmentHead  Role = "department_head"
	RoleMedicalDirector Role = "medical_director"
	RoleSystem          Role = "system"
)

// SystemActor is the approver recorded for auto-approved steps.
const SystemActor = "system"

// Impact thresholds used by BuildTemplate.
const (
	AutoApproveMaxImpact = 40.0
	EscalationImpact     = 70.0
)

// StepTemplate describes one step before a case exists.
type StepTemplate struct {
	Role          Role    `json:"role"`
	AutoApprove   bool    `json:"auto_approve"`
	Urgent        bool    `json:"urgent"`
	DeadlineHours float64 `json:"deadline_hours"`
}

// Template is the ordered list of steps for a case.
type Template struct {
	Tier        permission.Tier `json:"tier"`
	ImpactScore float64         `json:"impact_score"`
	Steps       []StepTemplate  `json:"steps"`
}

// AutoApproved reports whether every step resolves without a human.
func (t Template) AutoApproved() bool {
	for _, s := range t.Steps {
		if !s.AutoApprove {
			return false
		}
	}
	return len(t.Steps) > 0
}

// BuildTemplate derives the approval steps from tier and impact. Higher impact adds stricter steps.
func BuildTemplate(tier permission.Tier, impact float64) Template {
	t := Template{Tier: tier, ImpactScore: impact}
	high := impact > EscalationImpact

	switch tier {
	case permission.TierAdvanced:
		t.Steps = []StepTemplate{
			{Role: RoleSeniorRecorder, DeadlineHours: 24},
			{Role: RoleSupervisor, DeadlineHours: 24},
		}
		if high {
			t.Steps = append(t.Steps, StepTemplate{Role: RoleDepartmentHead, DeadlineHours: 48})
		}
	case permission.TierEmergency:
		t.Steps = []StepTemplate{{Role: RoleSupervisor, Urgent: true, DeadlineHours: 2}}
		if high {
			t.Steps = append(t.Steps, StepTemplate{Role: RoleMedicalDirector, Urgent: true, DeadlineHours: 4})
		}
	case permission.TierAdmin:
		t.Steps = []StepTemplate{{Role: RoleSystem, AutoApprove: true}}
		if high {
			t.Steps = append(t.Steps, StepTemplate{Role: RoleMedicalDirector, DeadlineHours: 24})
		}
	default:
		t.Steps = []StepTemplate{{Role: RoleSeniorRecorder, AutoApprove: impact <= AutoApproveMaxImpact, DeadlineHours: 24}}
		if high {
			t.Steps = append(t.Steps, StepTemplate{Role: RoleSupervisor, DeadlineHours: 24})
		}
	}
	return t
}
