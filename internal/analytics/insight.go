package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrUpstreamTimeout is returned by the fallback path when the primary
// generator did not answer in time. It never leaves this package as a
// request failure.
var ErrUpstreamTimeout = errors.New("insight generation timed out")

// Generator produces a short sentence describing a snapshot
type Generator interface {
	Generate(ctx context.Context, snap model.StatsSnapshot) (string, error)
}

// Source tells where an insight's text came from
type Source string

const (
	SourceTemplate Source = "template"
	SourceExternal Source = "external"
)

// Insight is a generated sentence plus its origin
type Insight struct {
	Text   string
	Source Source
}

// TemplateGenerator builds the insight from fixed sentences. It never
// fails and never returns empty text.
type TemplateGenerator struct {
	Location *time.Location
}

// Generate implements Generator
func (g TemplateGenerator) Generate(_ context.Context, snap model.StatsSnapshot) (string, error) {
	return g.Text(snap), nil
}

// Text returns the templated sentence for snap
func (g TemplateGenerator) Text(snap model.StatsSnapshot) string {
	if snap.TotalClicks == 0 || snap.PeakHour == nil {
		return "No clicks yet. Share the link to start collecting insights."
	}

	zone := "UTC"
	if g.Location != nil {
		zone = g.Location.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d %s so far, most of them around %02d:00 %s.",
		snap.TotalClicks, plural(snap.TotalClicks, "click", "clicks"), *snap.PeakHour, zone)
	if snap.TopReferer != nil && *snap.TopReferer != model.RefererDirect {
		fmt.Fprintf(&b, " %s is the top traffic source.", *snap.TopReferer)
	}
	return b.String()
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// TextGenerator is the slice of the Gemini client used for insights
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, jsonOutput bool) (string, error)
	Model() string
}

// ExternalGenerator asks a text-generation service to phrase the snapshot
type ExternalGenerator struct {
	client TextGenerator
}

// NewExternalGenerator creates a generator backed by client
func NewExternalGenerator(client TextGenerator) *ExternalGenerator {
	return &ExternalGenerator{client: client}
}

// Model returns the upstream model name, stored with the insight history
func (g *ExternalGenerator) Model() string {
	return g.client.Model()
}

// Generate implements Generator
func (g *ExternalGenerator) Generate(ctx context.Context, snap model.StatsSnapshot) (string, error) {
	return g.client.GenerateText(ctx, Prompt(snap), false)
}

// Prompt renders the aggregated numbers into the request sent upstream
func Prompt(snap model.StatsSnapshot) string {
	peak := "none"
	if snap.PeakHour != nil {
		peak = fmt.Sprintf("%02d:00", *snap.PeakHour)
	}
	top := "none"
	if snap.TopReferer != nil {
		top = *snap.TopReferer
	}

	var b strings.Builder
	b.WriteString("You are a marketing analyst. In one polite sentence, describe the audience ")
	b.WriteString("of this short link and give one marketing insight.\n")
	b.WriteString("Data:\n")
	fmt.Fprintf(&b, "- Total clicks: %d\n", snap.TotalClicks)
	fmt.Fprintf(&b, "- Clicks by referer: %s\n", formatCounts(snap.ClicksByReferer))
	fmt.Fprintf(&b, "- Top countries: %s\n", formatCounts(snap.CountryStats))
	fmt.Fprintf(&b, "- Devices: %s\n", formatCounts(snap.DeviceStats))
	fmt.Fprintf(&b, "- Top referer: %s\n", top)
	fmt.Fprintf(&b, "- Peak hour: %s\n", peak)
	b.WriteString("If there is too little data, say that not enough data has been collected yet.")
	return b.String()
}

// formatCounts renders a count map in descending count order, keys
// ascending on ties, so prompts are stable for the same snapshot.
func formatCounts(counts map[string]int64) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

// FallbackGenerator runs a primary generator under a timeout and a circuit
// breaker and answers with the template whenever the primary cannot.
type FallbackGenerator struct {
	primary  Generator
	template TemplateGenerator
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
	counter  metric.Int64Counter
}

// NewFallbackGenerator wraps primary. A nil primary always uses the template.
func NewFallbackGenerator(primary Generator, template TemplateGenerator, timeout time.Duration, logger *slog.Logger) *FallbackGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	counter, _ := otel.Meter("github.com/lold2424/LessURL-Service/internal/analytics").Int64Counter(
		"insight_generated_total",
		metric.WithDescription("Insights produced, by source"),
	)
	return &FallbackGenerator{
		primary:  primary,
		template: template,
		timeout:  timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "insight-generator",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		logger:  logger,
		counter: counter,
	}
}

// Insight never fails: any primary error, timeout, open breaker or blank
// answer yields the templated sentence.
func (g *FallbackGenerator) Insight(ctx context.Context, snap model.StatsSnapshot) Insight {
	if g.primary != nil {
		text, err := g.callPrimary(ctx, snap)
		if err == nil {
			g.count(ctx, SourceExternal)
			return Insight{Text: text, Source: SourceExternal}
		}
		g.logger.WarnContext(ctx, "insight generation fell back to template",
			slog.String("error", err.Error()))
	}
	g.count(ctx, SourceTemplate)
	return Insight{Text: g.template.Text(snap), Source: SourceTemplate}
}

// Generate implements Generator
func (g *FallbackGenerator) Generate(ctx context.Context, snap model.StatsSnapshot) (string, error) {
	return g.Insight(ctx, snap).Text, nil
}

type primaryResult struct {
	text string
	err  error
}

// callPrimary gives up at the deadline even if the primary ignores ctx; a
// late answer is discarded.
func (g *FallbackGenerator) callPrimary(ctx context.Context, snap model.StatsSnapshot) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		done := make(chan primaryResult, 1)
		go func() {
			text, err := g.primary.Generate(ctx, snap)
			done <- primaryResult{text: text, err: err}
		}()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-done:
			if res.err != nil {
				return nil, res.err
			}
			text := strings.TrimSpace(res.text)
			if text == "" {
				return nil, errors.New("empty insight")
			}
			return text, nil
		}
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return "", err
	}
	return out.(string), nil
}

func (g *FallbackGenerator) count(ctx context.Context, source Source) {
	if g.counter != nil {
		g.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(source))))
	}
}

var (
	_ Generator = TemplateGenerator{}
	_ Generator = (*ExternalGenerator)(nil)
	_ Generator = (*FallbackGenerator)(nil)
)
