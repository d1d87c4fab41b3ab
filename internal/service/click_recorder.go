package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ClickStore is the append-only click event store
type ClickStore interface {
	Record(ctx context.Context, e *model.ClickEvent) error
	Query(ctx context.Context, shortID string, w model.Window) ([]model.ClickEvent, error)
}

// SnapshotStore caches computed stats responses per short ID. Get also
// returns the link's generation; Set refuses a snapshot whose generation was
// moved on by Invalidate in the meantime.
type SnapshotStore interface {
	Get(ctx context.Context, shortID string) (*model.StatsResponse, int64, bool)
	Set(ctx context.Context, shortID string, resp *model.StatsResponse, gen int64) error
	Invalidate(ctx context.Context, shortID string) error
}

// ClickRecorder appends click events and invalidates the link's cached
// snapshot. The API uses it when the broker is unavailable; the analytics
// worker uses it for every queued event.
type ClickRecorder struct {
	clicks    ClickStore
	snapshots SnapshotStore
	logger    *slog.Logger
	recorded  metric.Int64Counter
}

// NewClickRecorder creates a recorder. snapshots may be nil.
func NewClickRecorder(clicks ClickStore, snapshots SnapshotStore, logger *slog.Logger) *ClickRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	recorded, _ := otel.Meter("github.com/lold2424/LessURL-Service/internal/service").Int64Counter(
		"clicks_recorded_total",
		metric.WithDescription("Click events appended to the store"),
	)
	return &ClickRecorder{clicks: clicks, snapshots: snapshots, logger: logger, recorded: recorded}
}

// Record appends e. Unknown links fail with ErrNotFound, storage failures
// with ErrInternal.
func (r *ClickRecorder) Record(ctx context.Context, e *model.ClickEvent) error {
	if err := r.clicks.Record(ctx, e); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: record click: %v", ErrInternal, err)
	}
	if r.recorded != nil {
		r.recorded.Add(ctx, 1)
	}

	if r.snapshots != nil {
		if err := r.snapshots.Invalidate(ctx, e.ShortID); err != nil {
			r.logger.WarnContext(ctx, "failed to invalidate stats snapshot",
				slog.String("short_id", e.ShortID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
