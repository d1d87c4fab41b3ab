package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lold2424/LessURL-Service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LinkRepositoryInterface is the read/write contract shared by the
// database repository and its caching decorator.
type LinkRepositoryInterface interface {
	GetByID(ctx context.Context, shortID string) (*model.ShortLink, error)
	Create(ctx context.Context, link *model.ShortLink) error
	ListPublic(ctx context.Context, limit int) ([]model.ShortLink, error)
}

// LinkRepository handles database operations for short links
type LinkRepository struct {
	db *pgxpool.Pool
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(db *pgxpool.Pool) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create inserts a new link. A duplicate short ID is reported as ErrIDConflict
// so the caller can retry with a fresh ID.
func (r *LinkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	ctx, span := tracer.Start(ctx, "db.insert",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "INSERT"),
			attribute.String("db.sql.table", "links"),
			attribute.String("short_id", link.ShortID),
		),
	)
	defer span.End()

	query := `
		INSERT INTO links (short_id, original_url, title, visibility, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		link.ShortID,
		link.OriginalURL,
		link.Title,
		string(link.Visibility),
		link.CreatedAt,
	).Scan(&link.CreatedAt)

	if err != nil {
		span.RecordError(err)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrIDConflict
		}
		return err
	}
	return nil
}

// GetByID retrieves a link by its short ID
func (r *LinkRepository) GetByID(ctx context.Context, shortID string) (*model.ShortLink, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "links"),
			attribute.String("short_id", shortID),
		),
	)
	defer span.End()

	query := `
		SELECT short_id, original_url, COALESCE(title, ''), visibility, created_at, click_count
		FROM links
		WHERE short_id = $1`

	link, err := scanLink(r.db.QueryRow(ctx, query, shortID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, err
	}
	return link, nil
}

// ListPublic returns the newest public links, at most limit of them
func (r *LinkRepository) ListPublic(ctx context.Context, limit int) ([]model.ShortLink, error) {
	ctx, span := tracer.Start(ctx, "db.select",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "SELECT"),
			attribute.String("db.sql.table", "links"),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	query := `
		SELECT short_id, original_url, COALESCE(title, ''), visibility, created_at, click_count
		FROM links
		WHERE visibility = 'PUBLIC'
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	links := make([]model.ShortLink, 0, limit)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		links = append(links, *link)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return links, nil
}

func scanLink(row pgx.Row) (*model.ShortLink, error) {
	var link model.ShortLink
	var visibility string
	if err := row.Scan(
		&link.ShortID,
		&link.OriginalURL,
		&link.Title,
		&visibility,
		&link.CreatedAt,
		&link.ClickCount,
	); err != nil {
		return nil, err
	}
	link.Visibility = model.Visibility(visibility)
	link.CreatedAt = link.CreatedAt.UTC()
	return &link, nil
}

var _ LinkRepositoryInterface = (*LinkRepository)(nil)
