// Package analytics turns raw click events into per-link rollups and
// describes those rollups in a short sentence.
package analytics

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
)

const (
	// DefaultDailyWindow is the number of calendar days, today included,
	// covered by the daily histogram.
	DefaultDailyWindow = 7

	refererUnknown = "unknown"
	countryUnknown = "unknown"
	dayLayout      = "2006-01-02"
)

// Options configures bucketing. The zero value buckets in UTC over a
// seven day daily window.
type Options struct {
	Location    *time.Location
	DailyWindow int
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) dailyWindow() int {
	if o.DailyWindow <= 0 {
		return DefaultDailyWindow
	}
	return o.DailyWindow
}

// Period returns the label of the daily aggregation window, e.g. "7d"
func (o Options) Period() string {
	return periodLabel(o.dailyWindow())
}

// Aggregate computes the rollup of one link's full event history.
//
// Hour, referer, country and device buckets use every event. The daily
// histogram only counts events whose calendar date lies in the trailing
// window ending at now's date, and omits days without clicks. The result
// depends only on (events, now, opts); AIInsight is left empty.
func Aggregate(events []model.ClickEvent, now time.Time, opts Options) model.StatsSnapshot {
	loc := opts.location()
	days := opts.dailyWindow()

	today := dateOf(now.In(loc))
	firstDay := today.AddDate(0, 0, -(days - 1))

	snap := model.StatsSnapshot{
		TotalClicks:     int64(len(events)),
		ClicksByHour:    make(map[int]int64, 24),
		ClicksByDay:     make(map[string]int64),
		ClicksByReferer: make(map[string]int64),
		CountryStats:    make(map[string]int64),
		DeviceStats:     make(map[string]int64),
		Period:          periodLabel(days),
	}
	for h := 0; h < 24; h++ {
		snap.ClicksByHour[h] = 0
	}

	for _, e := range events {
		local := e.Timestamp.In(loc)
		snap.ClicksByHour[local.Hour()]++

		day := dateOf(local)
		if !day.Before(firstDay) && !day.After(today) {
			snap.ClicksByDay[day.Format(dayLayout)]++
		}

		snap.ClicksByReferer[RefererBucket(e.Referer)]++
		snap.CountryStats[bucketOr(e.Country, countryUnknown)]++
		snap.DeviceStats[bucketOr(e.DeviceType, model.DevicePC)]++
	}

	snap.PeakHour = peakHour(snap.ClicksByHour)
	snap.TopReferer = topKey(snap.ClicksByReferer)
	return snap
}

// RefererBucket normalizes a raw Referer header into its bucket: the
// lowercased host for URLs and bare host names, "direct" for empty
// referers, and "unknown" for anything without a recognizable host.
func RefererBucket(referer string) string {
	ref := strings.TrimSpace(referer)
	if ref == "" || strings.EqualFold(ref, model.RefererDirect) {
		return model.RefererDirect
	}

	u, err := url.Parse(ref)
	if err == nil && u.Host == "" && !strings.Contains(ref, "://") {
		u, err = url.Parse("//" + ref)
	}
	if err != nil || u.Hostname() == "" || strings.ContainsAny(u.Hostname(), " \t") {
		return refererUnknown
	}
	return strings.ToLower(u.Hostname())
}

// peakHour picks the busiest hour, the smallest hour winning ties.
// It is nil when no hour has a click.
func peakHour(byHour map[int]int64) *int {
	best, bestCount := -1, int64(0)
	for h := 0; h < 24; h++ {
		if c := byHour[h]; c > bestCount {
			best, bestCount = h, c
		}
	}
	if best < 0 {
		return nil
	}
	return &best
}

// topKey picks the key with the highest count, the lexicographically
// smallest key winning ties. It is nil for an empty map.
func topKey(counts map[string]int64) *string {
	keys := make([]string, 0, len(counts))
	for k, c := range counts {
		if c > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return &best
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func bucketOr(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func periodLabel(days int) string {
	return strconv.Itoa(days) + "d"
}
