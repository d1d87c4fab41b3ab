package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lold2424/LessURL-Service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClickRepository is the append-only click event store
type ClickRepository struct {
	db *pgxpool.Pool
}

// NewClickRepository creates a new click event store
func NewClickRepository(db *pgxpool.Pool) *ClickRepository {
	return &ClickRepository{db: db}
}

// Record appends one click event and bumps the link's derived click counter
// in the same statement. A redelivered event (same ID) is a no-op. Unknown
// short IDs fail with ErrNotFound.
func (r *ClickRepository) Record(ctx context.Context, e *model.ClickEvent) error {
	ctx, span := tracer.Start(ctx, "db.insert",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.sql.table", "click_events"),
			attribute.String("short_id", e.ShortID),
		),
	)
	defer span.End()

	query := `
		WITH inserted AS (
			INSERT INTO click_events (id, short_id, occurred_at, referer, ip_hash, user_agent, country, device_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
			RETURNING short_id
		)
		UPDATE links SET click_count = click_count + 1
		WHERE short_id = (SELECT short_id FROM inserted)`

	_, err := r.db.Exec(ctx, query,
		e.ID,
		e.ShortID,
		e.Timestamp.UTC(),
		e.Referer,
		orDefault(e.IPHash, "unknown"),
		e.UserAgent,
		orDefault(e.Country, "unknown"),
		orDefault(e.DeviceType, model.DevicePC),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrNotFound
		}
		span.RecordError(err)
		return err
	}
	return nil
}

// Query returns the events of one link inside the window, oldest first.
// Unknown short IDs fail with ErrNotFound; a known link without clicks
// yields an empty slice.
func (r *ClickRepository) Query(ctx context.Context, shortID string, w model.Window) ([]model.ClickEvent, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "click_events"),
			attribute.String("short_id", shortID),
		),
	)
	defer span.End()

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE short_id = $1)`, shortID).Scan(&exists); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	query := `
		SELECT id, short_id, occurred_at, referer, ip_hash, user_agent, country, device_type
		FROM click_events
		WHERE short_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at < $3)
		ORDER BY occurred_at`

	rows, err := r.db.Query(ctx, query, shortID, optionalTime(w.Since), optionalTime(w.Until))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	events := []model.ClickEvent{}
	for rows.Next() {
		var e model.ClickEvent
		if err := rows.Scan(
			&e.ID,
			&e.ShortID,
			&e.Timestamp,
			&e.Referer,
			&e.IPHash,
			&e.UserAgent,
			&e.Country,
			&e.DeviceType,
		); err != nil {
			span.RecordError(err)
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", len(events)))
	return events, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
