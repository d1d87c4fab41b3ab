package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
)

const (
	monitorLookback   = 24 * time.Hour
	maliciousListSize = 10
)

// MonitorServiceInterface defines the contract of the admin dashboard
type MonitorServiceInterface interface {
	AdminMetrics(ctx context.Context) (*model.AdminMetrics, error)
	RecordSlowRequest(ctx context.Context, data model.PerformanceData)
}

// MonitorStore reads and writes monitor events
type MonitorStore interface {
	Record(ctx context.Context, metric model.MetricType, data any) error
	Since(ctx context.Context, metric model.MetricType, since time.Time) ([]model.MonitorEvent, error)
}

// MonitorService summarizes operational events for administrators
type MonitorService struct {
	store  MonitorStore
	logger *slog.Logger
	now    func() time.Time
}

// NewMonitorService creates a monitor service
func NewMonitorService(store MonitorStore, logger *slog.Logger) *MonitorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorService{store: store, logger: logger, now: time.Now}
}

// AdminMetrics summarizes the last 24 hours: stats page views, the newest
// malicious URL detections, and the slowest fifth of recorded slow requests.
func (s *MonitorService) AdminMetrics(ctx context.Context) (*model.AdminMetrics, error) {
	since := s.now().Add(-monitorLookback)

	malicious, err := s.store.Since(ctx, model.MetricMaliciousURL, since)
	if err != nil {
		return nil, fmt.Errorf("%w: load malicious events: %v", ErrInternal, err)
	}
	perf, err := s.store.Since(ctx, model.MetricPerformance, since)
	if err != nil {
		return nil, fmt.Errorf("%w: load performance events: %v", ErrInternal, err)
	}
	views, err := s.store.Since(ctx, model.MetricStatsView, since)
	if err != nil {
		return nil, fmt.Errorf("%w: load stats views: %v", ErrInternal, err)
	}

	out := &model.AdminMetrics{
		StatsViewCount: len(views),
		MaliciousCount: len(malicious),
		MaliciousList:  []model.MaliciousEntry{},
		SlowRequests:   []model.SlowRequest{},
	}

	for _, e := range malicious {
		if len(out.MaliciousList) == maliciousListSize {
			break
		}
		var d model.MaliciousURLData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			continue
		}
		out.MaliciousList = append(out.MaliciousList, model.MaliciousEntry{
			Reason:    d.Reason,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			URL:       d.URL,
		})
	}

	slow := make([]model.SlowRequest, 0, len(perf))
	for _, e := range perf {
		var d model.PerformanceData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			continue
		}
		slow = append(slow, model.SlowRequest{
			Path:      d.Path,
			URL:       d.URL,
			Duration:  d.Duration,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	out.SlowRequests = SlowestFifth(slow)

	return out, nil
}

// SlowestFifth returns the slowest max(1, n/5) requests, slowest first.
// An empty input yields an empty slice.
func SlowestFifth(reqs []model.SlowRequest) []model.SlowRequest {
	if len(reqs) == 0 {
		return []model.SlowRequest{}
	}
	sorted := make([]model.SlowRequest, len(reqs))
	copy(sorted, reqs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Duration > sorted[j].Duration
	})
	return sorted[:max(1, len(sorted)/5)]
}

// RecordSlowRequest stores a PERFORMANCE event; failures are only logged
func (s *MonitorService) RecordSlowRequest(ctx context.Context, data model.PerformanceData) {
	if err := s.store.Record(ctx, model.MetricPerformance, data); err != nil {
		s.logger.WarnContext(ctx, "failed to record slow request",
			slog.String("path", data.Path),
			slog.String("error", err.Error()))
	}
}

var _ MonitorServiceInterface = (*MonitorService)(nil)
