package service

import (
	"context"
	"time"

	"github.com/lold2424/LessURL-Service/internal/analytics"
	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/repository"
	"github.com/lold2424/LessURL-Service/internal/safety"
	"github.com/stretchr/testify/mock"
)

// MockLinkRepository mocks repository.LinkRepositoryInterface
type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) GetByID(ctx context.Context, shortID string) (*model.ShortLink, error) {
	args := m.Called(ctx, shortID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ShortLink), args.Error(1)
}

func (m *MockLinkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	return m.Called(ctx, link).Error(0)
}

func (m *MockLinkRepository) ListPublic(ctx context.Context, limit int) ([]model.ShortLink, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ShortLink), args.Error(1)
}

// MockClickStore mocks ClickStore
type MockClickStore struct {
	mock.Mock
}

func (m *MockClickStore) Record(ctx context.Context, e *model.ClickEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockClickStore) Query(ctx context.Context, shortID string, w model.Window) ([]model.ClickEvent, error) {
	args := m.Called(ctx, shortID, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ClickEvent), args.Error(1)
}

// MockSnapshotStore mocks SnapshotStore
type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Get(ctx context.Context, shortID string) (*model.StatsResponse, int64, bool) {
	args := m.Called(ctx, shortID)
	gen := args.Get(1).(int64)
	if args.Get(0) == nil {
		return nil, gen, args.Bool(2)
	}
	return args.Get(0).(*model.StatsResponse), gen, args.Bool(2)
}

func (m *MockSnapshotStore) Set(ctx context.Context, shortID string, resp *model.StatsResponse, gen int64) error {
	return m.Called(ctx, shortID, resp, gen).Error(0)
}

func (m *MockSnapshotStore) Invalidate(ctx context.Context, shortID string) error {
	return m.Called(ctx, shortID).Error(0)
}

// MockPublisher mocks ClickPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e *model.ClickEvent) error {
	return m.Called(ctx, e).Error(0)
}

// MockScreener mocks URLScreener
type MockScreener struct {
	mock.Mock
}

func (m *MockScreener) Screen(ctx context.Context, url string) safety.Verdict {
	return m.Called(ctx, url).Get(0).(safety.Verdict)
}

// MockMonitor mocks MonitorRecorder and MonitorStore
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) Record(ctx context.Context, metric model.MetricType, data any) error {
	return m.Called(ctx, metric, data).Error(0)
}

func (m *MockMonitor) Since(ctx context.Context, metric model.MetricType, since time.Time) ([]model.MonitorEvent, error) {
	args := m.Called(ctx, metric, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MonitorEvent), args.Error(1)
}

// MockInsightStore mocks InsightStore
type MockInsightStore struct {
	mock.Mock
}

func (m *MockInsightStore) Latest(ctx context.Context, shortID string) (*repository.StoredInsight, error) {
	args := m.Called(ctx, shortID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.StoredInsight), args.Error(1)
}

func (m *MockInsightStore) Save(ctx context.Context, shortID, text, modelInfo string, at time.Time) error {
	return m.Called(ctx, shortID, text, modelInfo, at).Error(0)
}

// MockInsightProvider mocks InsightProvider
type MockInsightProvider struct {
	mock.Mock
}

func (m *MockInsightProvider) Insight(ctx context.Context, snap model.StatsSnapshot) analytics.Insight {
	return m.Called(ctx, snap).Get(0).(analytics.Insight)
}
