package domain

import (
	"context"
)

// ScheduleStore finds booked visits near a window. Results are snapshots.
type ScheduleStore interface {
	FindSchedulesNear(ctx context.Context, window TimeWindow, radiusDays int) ([]ExistingSchedule, error)
}

// ConflictRepository persists conflicts together with their decisions.
type ConflictRepository interface {
	SaveAll(ctx context.Context, batchID string, records []ConflictRecord) error
	FindByBatch(ctx context.Context, batchID string) ([]ConflictRecord, error)
}

// BatchReportRepository stores finished batch reports.
type BatchReportRepository interface {
	Save(ctx context.Context, report *BatchReport) error
	FindByID(ctx context.Context, batchID string) (*BatchReport, error)
}

// AdjustmentCommitter materializes one adjustment. Implementations must be atomic per call.
type AdjustmentCommitter interface {
	Commit(ctx context.Context, commit Commit) error
}
