package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func monitorEvent(t *testing.T, metric model.MetricType, at time.Time, data any) model.MonitorEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return model.MonitorEvent{MetricType: metric, Timestamp: at, Data: raw}
}

func TestMonitorService_AdminMetrics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	t.Run("summarizes the last day", func(t *testing.T) {
		store := new(MockMonitor)

		var malicious []model.MonitorEvent
		for i := 0; i < 12; i++ {
			malicious = append(malicious, monitorEvent(t, model.MetricMaliciousURL, now.Add(-time.Duration(i)*time.Minute),
				model.MaliciousURLData{Reason: "PHISHING", URL: fmt.Sprintf("https://evil%d.test", i)}))
		}
		var perf []model.MonitorEvent
		for i, d := range []int64{600, 1500, 700, 900, 3000, 800, 650, 1200, 2000, 550} {
			perf = append(perf, monitorEvent(t, model.MetricPerformance, now.Add(-time.Duration(i)*time.Minute),
				model.PerformanceData{Path: "/stats/:shortId", URL: "/stats/x", Duration: d}))
		}
		views := []model.MonitorEvent{
			monitorEvent(t, model.MetricStatsView, now, model.StatsViewData{ShortID: "a"}),
			monitorEvent(t, model.MetricStatsView, now, model.StatsViewData{ShortID: "b"}),
		}

		store.On("Since", ctx, model.MetricMaliciousURL, since).Return(malicious, nil)
		store.On("Since", ctx, model.MetricPerformance, since).Return(perf, nil)
		store.On("Since", ctx, model.MetricStatsView, since).Return(views, nil)

		svc := NewMonitorService(store, nil)
		svc.now = func() time.Time { return now }

		out, err := svc.AdminMetrics(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, out.StatsViewCount)
		assert.Equal(t, 12, out.MaliciousCount)
		require.Len(t, out.MaliciousList, 10)
		assert.Equal(t, "https://evil0.test", out.MaliciousList[0].URL)
		assert.Equal(t, "2024-05-10T12:00:00Z", out.MaliciousList[0].Timestamp)

		require.Len(t, out.SlowRequests, 2)
		assert.Equal(t, int64(3000), out.SlowRequests[0].Duration)
		assert.Equal(t, int64(2000), out.SlowRequests[1].Duration)
	})

	t.Run("empty day", func(t *testing.T) {
		store := new(MockMonitor)
		store.On("Since", ctx, mock.Anything, since).Return([]model.MonitorEvent{}, nil)

		svc := NewMonitorService(store, nil)
		svc.now = func() time.Time { return now }

		out, err := svc.AdminMetrics(ctx)

		require.NoError(t, err)
		assert.Zero(t, out.StatsViewCount)
		assert.Zero(t, out.MaliciousCount)
		assert.NotNil(t, out.MaliciousList)
		assert.NotNil(t, out.SlowRequests)
		assert.Empty(t, out.SlowRequests)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		store := new(MockMonitor)
		store.On("Since", ctx, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		_, err := NewMonitorService(store, nil).AdminMetrics(ctx)
		assert.ErrorIs(t, err, ErrInternal)
	})
}

func TestSlowestFifth(t *testing.T) {
	reqs := func(durations ...int64) []model.SlowRequest {
		out := make([]model.SlowRequest, len(durations))
		for i, d := range durations {
			out[i] = model.SlowRequest{Duration: d}
		}
		return out
	}

	assert.Empty(t, SlowestFifth(nil))
	assert.Equal(t, reqs(900), SlowestFifth(reqs(900)))
	assert.Equal(t, reqs(900), SlowestFifth(reqs(500, 900, 600, 700)))
	assert.Equal(t, reqs(1000, 900), SlowestFifth(reqs(100, 200, 300, 400, 500, 600, 700, 800, 900, 1000)))
}

func TestMonitorService_RecordSlowRequest(t *testing.T) {
	ctx := context.Background()
	data := model.PerformanceData{Path: "/shorten", URL: "/shorten", Duration: 750}

	store := new(MockMonitor)
	store.On("Record", ctx, model.MetricPerformance, data).Return(errors.New("db down"))

	NewMonitorService(store, nil).RecordSlowRequest(ctx, data)
	store.AssertExpectations(t)
}
