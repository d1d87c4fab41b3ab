package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lold2424/LessURL-Service/internal/analytics"
	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/repository"
	"golang.org/x/sync/errgroup"
)

// StatsServiceInterface defines the contract of the stats endpoint
type StatsServiceInterface interface {
	GetStats(ctx context.Context, shortID string) (*model.StatsResponse, error)
}

// LinkReader loads a single link
type LinkReader interface {
	GetByID(ctx context.Context, shortID string) (*model.ShortLink, error)
}

// InsightStore keeps the last external insight per link and its history
type InsightStore interface {
	Latest(ctx context.Context, shortID string) (*repository.StoredInsight, error)
	Save(ctx context.Context, shortID, text, modelInfo string, at time.Time) error
}

// InsightProvider produces an insight that is always usable
type InsightProvider interface {
	Insight(ctx context.Context, snap model.StatsSnapshot) analytics.Insight
}

// StatsOptions holds the tunables of StatsService
type StatsOptions struct {
	Aggregation     analytics.Options
	InsightCacheFor time.Duration
	InsightModel    string
}

// StatsService computes the statistics payload of one link
type StatsService struct {
	links     LinkReader
	clicks    ClickStore
	insights  InsightStore
	generator InsightProvider
	snapshots SnapshotStore
	monitor   MonitorRecorder
	opts      StatsOptions
	logger    *slog.Logger
	now       func() time.Time
}

// NewStatsService creates a stats service. insights, snapshots and monitor may be nil.
func NewStatsService(
	links LinkReader,
	clicks ClickStore,
	insights InsightStore,
	generator InsightProvider,
	snapshots SnapshotStore,
	monitor MonitorRecorder,
	opts StatsOptions,
	logger *slog.Logger,
) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{
		links:     links,
		clicks:    clicks,
		insights:  insights,
		generator: generator,
		snapshots: snapshots,
		monitor:   monitor,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// GetStats returns {clicks, stats} for shortID. Unknown IDs fail with
// ErrNotFound; an unreachable store fails with ErrInternal. The insight
// never causes a failure.
func (s *StatsService) GetStats(ctx context.Context, shortID string) (*model.StatsResponse, error) {
	var gen int64
	if s.snapshots != nil {
		cached, g, ok := s.snapshots.Get(ctx, shortID)
		if ok {
			s.recordView(ctx, shortID)
			return cached, nil
		}
		gen = g
	}

	var (
		link   *model.ShortLink
		events []model.ClickEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		link, err = s.links.GetByID(gctx, shortID)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = s.clicks.Query(gctx, shortID, model.Window{})
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load stats: %v", ErrInternal, err)
	}

	now := s.now()
	snap := analytics.Aggregate(events, now, s.opts.Aggregation)
	snap.OriginalURL = link.OriginalURL
	snap.Title = link.Title
	snap.AIInsight = s.insight(ctx, shortID, snap, now)

	resp := &model.StatsResponse{Clicks: snap.TotalClicks, Stats: snap}
	if s.snapshots != nil {
		// a click recorded while computing makes resp stale; it is still
		// returned but not cached
		err := s.snapshots.Set(ctx, shortID, resp, gen)
		switch {
		case errors.Is(err, repository.ErrStaleSnapshot):
			s.logger.DebugContext(ctx, "stats snapshot not cached, clicks arrived meanwhile",
				slog.String("short_id", shortID))
		case err != nil:
			s.logger.WarnContext(ctx, "failed to cache stats snapshot",
				slog.String("short_id", shortID),
				slog.String("error", err.Error()))
		}
	}
	s.recordView(ctx, shortID)
	return resp, nil
}

// insight reuses a recent external insight, otherwise generates a new one
// and persists it when it came from the external generator.
func (s *StatsService) insight(ctx context.Context, shortID string, snap model.StatsSnapshot, now time.Time) string {
	if s.insights != nil && s.opts.InsightCacheFor > 0 {
		stored, err := s.insights.Latest(ctx, shortID)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load stored insight",
				slog.String("short_id", shortID),
				slog.String("error", err.Error()))
		} else if stored != nil && now.Sub(stored.AnalyzedAt) < s.opts.InsightCacheFor {
			return stored.Text
		}
	}

	in := s.generator.Insight(ctx, snap)
	if in.Source == analytics.SourceExternal && s.insights != nil {
		if err := s.insights.Save(ctx, shortID, in.Text, s.opts.InsightModel, now); err != nil {
			s.logger.WarnContext(ctx, "failed to save insight",
				slog.String("short_id", shortID),
				slog.String("error", err.Error()))
		}
	}
	return in.Text
}

func (s *StatsService) recordView(ctx context.Context, shortID string) {
	if s.monitor == nil {
		return
	}
	if err := s.monitor.Record(ctx, model.MetricStatsView, model.StatsViewData{ShortID: shortID}); err != nil {
		s.logger.WarnContext(ctx, "failed to record stats view",
			slog.String("short_id", shortID),
			slog.String("error", err.Error()))
	}
}

var _ StatsServiceInterface = (*StatsService)(nil)
