package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/database"
)

// Repository defines the interface for outbox persistence.
type Repository interface {
	// Save stores a new message. Saving an event id twice is a no-op.
	Save(ctx context.Context, msg *Message) error

	// Pending returns messages that are neither published nor dead and are due at now, oldest first.
	Pending(ctx context.Context, now time.Time, limit int) ([]*Message, error)

	// MarkPublished marks a message as successfully published.
	MarkPublished(ctx context.Context, id int64, at time.Time) error

	// MarkFailed records a publish failure and when to try again.
	MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error

	// MarkDead marks a message as dead-lettered.
	MarkDead(ctx context.Context, id int64, reason string, at time.Time) error

	// DeleteOld removes published messages created before the cutoff.
	DeleteOld(ctx context.Context, before time.Time) (int64, error)
}

const messageColumns = `id, event_id, routing_key, payload, created_ms, published_ms, next_retry_ms, retry_count, last_error, dead_ms`

// SQLRepository stores messages in the outbox_messages table of either backend.
// Times are Unix milliseconds; zero means unset.
type SQLRepository struct {
	conn database.Connection
}

// NewSQLRepository creates a repository bound to conn.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn}
}

func (r *SQLRepository) q(query string) string {
	return database.Rebind(r.conn.Driver(), query)
}

// Save joins the transaction carried by ctx when there is one.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	_, err := exec.Exec(ctx, r.q(`
		INSERT INTO outbox_messages (event_id, routing_key, payload, created_ms, published_ms, next_retry_ms, retry_count, last_error, dead_ms)
		VALUES (?, ?, ?, ?, 0, 0, 0, '', 0)
		ON CONFLICT (event_id) DO NOTHING`),
		msg.EventID.String(),
		msg.RoutingKey,
		string(msg.Payload),
		msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save outbox message %s: %w", msg.EventID, err)
	}
	return nil
}

func (r *SQLRepository) Pending(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	exec := database.ExecutorFromContext(ctx, r.conn)
	rows, err := exec.Query(ctx, r.q(`SELECT `+messageColumns+` FROM outbox_messages
		WHERE published_ms = 0 AND dead_ms = 0 AND next_retry_ms <= ?
		ORDER BY id
		LIMIT ?`), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("load pending outbox messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (r *SQLRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	return r.update(ctx, `UPDATE outbox_messages SET published_ms = ? WHERE id = ?`, at.UnixMilli(), id)
}

func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	return r.update(ctx, `UPDATE outbox_messages
		SET retry_count = retry_count + 1, last_error = ?, next_retry_ms = ?
		WHERE id = ?`, reason, nextRetryAt.UnixMilli(), id)
}

func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string, at time.Time) error {
	return r.update(ctx, `UPDATE outbox_messages
		SET retry_count = retry_count + 1, last_error = ?, dead_ms = ?
		WHERE id = ?`, reason, at.UnixMilli(), id)
}

func (r *SQLRepository) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	res, err := exec.Exec(ctx, r.q(`DELETE FROM outbox_messages WHERE published_ms > 0 AND created_ms < ?`), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete old outbox messages: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLRepository) update(ctx context.Context, query string, args ...any) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	res, err := exec.Exec(ctx, r.q(query), args...)
	if err != nil {
		return fmt.Errorf("update outbox message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update outbox message: %w", database.ErrNoRows)
	}
	return nil
}

func scanMessage(row database.Row) (*Message, error) {
	var msg Message
	var eventID, payload string
	var createdMs, publishedMs, retryMs, deadMs int64
	if err := row.Scan(&msg.ID, &eventID, &msg.RoutingKey, &payload, &createdMs, &publishedMs, &retryMs, &msg.RetryCount, &msg.LastError, &deadMs); err != nil {
		return nil, fmt.Errorf("scan outbox message: %w", err)
	}
	if err := msg.EventID.UnmarshalText([]byte(eventID)); err != nil {
		return nil, fmt.Errorf("scan outbox message %d: %w", msg.ID, err)
	}
	msg.Payload = []byte(payload)
	msg.CreatedAt = time.UnixMilli(createdMs).UTC()
	msg.PublishedAt = optionalTime(publishedMs)
	msg.NextRetryAt = optionalTime(retryMs)
	msg.DeadLetteredAt = optionalTime(deadMs)
	return &msg, nil
}

func optionalTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
