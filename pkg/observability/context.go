package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	correlationIDCtxKey contextKey = iota
	batchIDCtxKey
	requesterIDCtxKey
)

// Attribute keys used in logs and metrics.
const (
	CorrelationIDKey = "correlation_id"
	BatchIDKey       = "batch_id"
	RequesterIDKey   = "requester_id"
	OperationKey     = "operation"
	DurationKey      = "duration_ms"
)

// contextAttrs lists the context values copied onto every log record, in output order.
var contextAttrs = []struct {
	key  contextKey
	attr string
}{
	{correlationIDCtxKey, CorrelationIDKey},
	{batchIDCtxKey, BatchIDKey},
	{requesterIDCtxKey, RequesterIDKey},
}

// WithCorrelationID adds a correlation ID to the context.
// If id is empty, a new UUID is generated.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.New().String()
	}
	return context.WithValue(ctx, correlationIDCtxKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDCtxKey)
}

// WithBatchID tags the context with the batch being processed.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, batchIDCtxKey, batchID)
}

// BatchIDFromContext extracts the batch ID from context.
func BatchIDFromContext(ctx context.Context) string {
	return stringValue(ctx, batchIDCtxKey)
}

// WithRequesterID tags the context with the staff member who submitted the work.
func WithRequesterID(ctx context.Context, requesterID string) context.Context {
	return context.WithValue(ctx, requesterIDCtxKey, requesterID)
}

// RequesterIDFromContext extracts the requester ID from context.
func RequesterIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requesterIDCtxKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
