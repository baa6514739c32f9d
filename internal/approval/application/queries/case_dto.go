package queries

import (
	"time"

	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	"github.com/google/uuid"
)

// StepDTO is a data transfer object for approval steps.
type StepDTO struct {
	Index     int        `json:"index"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	Auto      bool       `json:"auto_approve"`
	Urgent    bool       `json:"urgent"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Overdue   bool       `json:"overdue"`
	DecidedBy string     `json:"decided_by,omitempty"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	Comments  string     `json:"comments,omitempty"`
}

// CaseDTO is a data transfer object for approval cases.
type CaseDTO struct {
	ID          uuid.UUID             `json:"id"`
	RequestKey  string                `json:"request_key"`
	ItemID      string                `json:"item_id"`
	BatchID     string                `json:"batch_id,omitempty"`
	Subject     string                `json:"subject"`
	Tier        string                `json:"tier"`
	ImpactScore float64               `json:"impact_score"`
	Status      string                `json:"status"`
	CurrentStep int                   `json:"current_step"`
	Steps       []StepDTO             `json:"steps"`
	History     []domain.HistoryEntry `json:"history,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ToCaseDTO converts a case. Deadlines are soft; Overdue is only reported.
func ToCaseDTO(c *domain.ApprovalCase, now time.Time, withHistory bool) CaseDTO {
	req := c.Request()
	dto := CaseDTO{
		ID:          c.ID(),
		RequestKey:  c.RequestKey(),
		ItemID:      req.ItemID,
		BatchID:     req.BatchID,
		Subject:     req.SubjectName,
		Tier:        string(c.Tier()),
		ImpactScore: c.ImpactScore(),
		Status:      string(c.Status()),
		CurrentStep: c.CurrentStepIndex(),
		CreatedAt:   c.CreatedAt(),
		UpdatedAt:   c.UpdatedAt(),
	}
	for i, s := range c.Steps() {
		step := StepDTO{
			Index:     i,
			Role:      string(s.Role),
			Status:    string(s.Status),
			Auto:      s.AutoApprove,
			Urgent:    s.Urgent,
			StartedAt: s.StartedAt,
			DecidedBy: s.DecidedBy,
			DecidedAt: s.DecidedAt,
			Comments:  s.Comments,
		}
		if deadline, ok := s.Deadline(); ok {
			step.Deadline = &deadline
			step.Overdue = s.Status == domain.StepPending && now.After(deadline)
		}
		dto.Steps = append(dto.Steps, step)
	}
	if withHistory {
		dto.History = c.History()
	}
	return dto
}
