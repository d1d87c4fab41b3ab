package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StoredInsight is the last externally generated insight of a link
type StoredInsight struct {
	Text       string
	AnalyzedAt time.Time
}

// InsightRepository persists generated insights on the link row and keeps
// an append-only history of every generation.
type InsightRepository struct {
	db *pgxpool.Pool
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(db *pgxpool.Pool) *InsightRepository {
	return &InsightRepository{db: db}
}

// Latest returns the stored insight of a link, or nil when none was saved yet
func (r *InsightRepository) Latest(ctx context.Context, shortID string) (*StoredInsight, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "links"),
			attribute.String("short_id", shortID),
		),
	)
	defer span.End()

	var text *string
	var analyzedAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT ai_insight, last_analyzed FROM links WHERE short_id = $1`, shortID,
	).Scan(&text, &analyzedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	if text == nil || analyzedAt == nil {
		return nil, nil
	}
	return &StoredInsight{Text: *text, AnalyzedAt: analyzedAt.UTC()}, nil
}

// Save stores the insight on the link and appends it to the history table
func (r *InsightRepository) Save(ctx context.Context, shortID, text, modelInfo string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "db.transaction",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.sql.table", "insight_history"),
			attribute.String("short_id", shortID),
		),
	)
	defer span.End()

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE links SET ai_insight = $2, last_analyzed = $3 WHERE short_id = $1`,
			shortID, text, at.UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO insight_history (short_id, generated_at, insight_text, model_info)
			 VALUES ($1, $2, $3, $4)`,
			shortID, at.UTC(), text, modelInfo)
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return err
}
