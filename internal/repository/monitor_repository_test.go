package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorRepository(t *testing.T) {
	repo := NewMonitorRepository(testDB.Pool)
	ctx := context.Background()
	testDB.Cleanup(ctx)

	require.NoError(t, repo.Record(ctx, model.MetricMaliciousURL, model.MaliciousURLData{Reason: "PHISHING", URL: "https://evil.test/1"}))
	require.NoError(t, repo.Record(ctx, model.MetricMaliciousURL, model.MaliciousURLData{Reason: "MALWARE", URL: "https://evil.test/2"}))
	require.NoError(t, repo.Record(ctx, model.MetricPerformance, model.PerformanceData{Path: "/shorten", URL: "/shorten", Duration: 900}))

	// an event from two days ago falls outside the lookback
	_, err := testDB.Pool.Exec(ctx,
		`INSERT INTO monitor_events (metric_type, occurred_at, data) VALUES ($1, $2, '{}'::jsonb)`,
		string(model.MetricMaliciousURL), time.Now().Add(-48*time.Hour))
	require.NoError(t, err)

	t.Run("filters by type and time, newest first", func(t *testing.T) {
		events, err := repo.Since(ctx, model.MetricMaliciousURL, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, events, 2)

		var newest model.MaliciousURLData
		require.NoError(t, json.Unmarshal(events[0].Data, &newest))
		assert.Equal(t, "MALWARE", newest.Reason)
		assert.Equal(t, "https://evil.test/2", newest.URL)
		assert.False(t, events[0].Timestamp.Before(events[1].Timestamp))
	})

	t.Run("performance payload round-trips", func(t *testing.T) {
		events, err := repo.Since(ctx, model.MetricPerformance, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, events, 1)

		var data model.PerformanceData
		require.NoError(t, json.Unmarshal(events[0].Data, &data))
		assert.Equal(t, int64(900), data.Duration)
	})

	t.Run("no events is empty slice", func(t *testing.T) {
		events, err := repo.Since(ctx, model.MetricStatsView, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})
}
