package model

// StatsSnapshot is the read-only rollup returned by the stats endpoint.
// ClicksByHour always carries all 24 hours; ClicksByDay is sparse.
type StatsSnapshot struct {
	TotalClicks     int64            `json:"totalClicks"`
	ClicksByHour    map[int]int64    `json:"clicksByHour"`
	ClicksByDay     map[string]int64 `json:"clicksByDay"`
	ClicksByReferer map[string]int64 `json:"clicksByReferer"`
	PeakHour        *int             `json:"peakHour"`
	TopReferer      *string          `json:"topReferer"`
	CountryStats    map[string]int64 `json:"countryStats"`
	DeviceStats     map[string]int64 `json:"deviceStats"`
	AIInsight       string           `json:"aiInsight"`
	Period          string           `json:"period"`
	OriginalURL     string           `json:"originalUrl,omitempty"`
	Title           string           `json:"title,omitempty"`
}

// StatsResponse is the body of GET /stats/{shortId}
type StatsResponse struct {
	Clicks int64         `json:"clicks"`
	Stats  StatsSnapshot `json:"stats"`
}
