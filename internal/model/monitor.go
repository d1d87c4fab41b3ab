package model

import (
	"encoding/json"
	"time"
)

// MetricType classifies service monitor events
type MetricType string

const (
	MetricMaliciousURL MetricType = "MALICIOUS_URL"
	MetricPerformance  MetricType = "PERFORMANCE"
	MetricStatsView    MetricType = "STATS_VIEW"
)

// MonitorEvent is an operational record kept for the admin dashboard
type MonitorEvent struct {
	MetricType MetricType      `json:"metricType"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

// MaliciousURLData is the payload of a MALICIOUS_URL event
type MaliciousURLData struct {
	Reason string `json:"reason"`
	URL    string `json:"url"`
}

// PerformanceData is the payload of a PERFORMANCE event. Duration is in milliseconds.
type PerformanceData struct {
	Path     string `json:"path"`
	URL      string `json:"url"`
	Duration int64  `json:"duration"`
}

// StatsViewData is the payload of a STATS_VIEW event
type StatsViewData struct {
	ShortID string `json:"shortId"`
}

// MaliciousEntry is one row of the admin malicious URL list
type MaliciousEntry struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}

// SlowRequest is one row of the admin slow request list
type SlowRequest struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	Duration  int64  `json:"duration"`
	Timestamp string `json:"timestamp"`
}

// AdminMetrics is the body of GET /admin/metrics
type AdminMetrics struct {
	StatsViewCount int              `json:"statsViewCount"`
	MaliciousCount int              `json:"maliciousCount"`
	MaliciousList  []MaliciousEntry `json:"maliciousList"`
	SlowRequests   []SlowRequest    `json:"slowRequests"`
}
