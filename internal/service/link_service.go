package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lold2424/LessURL-Service/internal/analytics"
	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/repository"
	"github.com/lold2424/LessURL-Service/internal/safety"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LinkServiceInterface defines the contract for link operations
type LinkServiceInterface interface {
	Shorten(ctx context.Context, req *model.ShortenRequest) (*model.ShortenResponse, error)
	ListPublic(ctx context.Context) ([]model.PublicLink, error)
	Resolve(ctx context.Context, shortID string, visit Visit) (string, error)
}

// URLScreener decides whether a URL may be shortened
type URLScreener interface {
	Screen(ctx context.Context, url string) safety.Verdict
}

// ClickPublisher hands click events to the analytics pipeline
type ClickPublisher interface {
	Publish(ctx context.Context, e *model.ClickEvent) error
}

// MonitorRecorder stores admin dashboard events
type MonitorRecorder interface {
	Record(ctx context.Context, metric model.MetricType, data any) error
}

// Visit describes the request that traversed a short link
type Visit struct {
	Referer   string
	IP        string
	UserAgent string
	Country   string
}

// LinkOptions holds the tunables of LinkService
type LinkOptions struct {
	BaseURL        string
	ShortIDLen     int
	ShortIDRetries int
	PublicListSize int
	MaxTitleLen    int
}

// LinkService handles shortening, listing and resolving links
type LinkService struct {
	links     repository.LinkRepositoryInterface
	publisher ClickPublisher
	recorder  *ClickRecorder
	screener  URLScreener
	monitor   MonitorRecorder
	ids       *ShortIDGenerator
	opts      LinkOptions
	logger    *slog.Logger
	now       func() time.Time

	shortened metric.Int64Counter
	malicious metric.Int64Counter
}

// NewLinkService creates a link service. publisher, screener and monitor may be nil.
func NewLinkService(
	links repository.LinkRepositoryInterface,
	publisher ClickPublisher,
	recorder *ClickRecorder,
	screener URLScreener,
	monitor MonitorRecorder,
	opts LinkOptions,
	logger *slog.Logger,
) *LinkService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ShortIDRetries <= 0 {
		opts.ShortIDRetries = 5
	}
	if opts.PublicListSize <= 0 {
		opts.PublicListSize = 10
	}
	if opts.MaxTitleLen <= 0 {
		opts.MaxTitleLen = 200
	}
	meter := otel.Meter("github.com/lold2424/LessURL-Service/internal/service")
	shortened, _ := meter.Int64Counter("urls_shortened_total", metric.WithDescription("Short links created"))
	malicious, _ := meter.Int64Counter("malicious_urls_total", metric.WithDescription("Shorten requests rejected by URL screening"))

	return &LinkService{
		links:     links,
		publisher: publisher,
		recorder:  recorder,
		screener:  screener,
		monitor:   monitor,
		ids:       NewShortIDGenerator(opts.ShortIDLen),
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		shortened: shortened,
		malicious: malicious,
	}
}

// Shorten validates and screens the URL, then stores it under a fresh short ID
func (s *LinkService) Shorten(ctx context.Context, req *model.ShortenRequest) (*model.ShortenResponse, error) {
	original, err := NormalizeURL(req.URL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if utf8.RuneCountInString(title) > s.opts.MaxTitleLen {
		return nil, fmt.Errorf("%w: title longer than %d characters", ErrValidation, s.opts.MaxTitleLen)
	}

	visibility := model.Visibility(strings.ToUpper(strings.TrimSpace(string(req.Visibility))))
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, fmt.Errorf("%w: visibility must be PUBLIC or PRIVATE", ErrValidation)
	}

	if s.screener != nil {
		if v := s.screener.Screen(ctx, original); v.Malicious {
			s.count(ctx, s.malicious, attribute.String("reason", v.Reason))
			s.recordMonitor(ctx, model.MetricMaliciousURL, model.MaliciousURLData{Reason: v.Reason, URL: original})
			return nil, ErrMaliciousURL
		}
	}

	for attempt := 0; attempt < s.opts.ShortIDRetries; attempt++ {
		link := &model.ShortLink{
			ShortID:     s.ids.Generate(),
			OriginalURL: original,
			Title:       title,
			Visibility:  visibility,
			CreatedAt:   s.now().UTC(),
		}
		err := s.links.Create(ctx, link)
		if errors.Is(err, repository.ErrIDConflict) {
			s.logger.WarnContext(ctx, "short id collision, retrying",
				slog.String("short_id", link.ShortID),
				slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: create link: %v", ErrInternal, err)
		}

		s.count(ctx, s.shortened, attribute.String("visibility", string(visibility)))
		return &model.ShortenResponse{
			ShortID:  link.ShortID,
			ShortURL: strings.TrimSuffix(s.opts.BaseURL, "/") + "/" + link.ShortID,
		}, nil
	}
	return nil, ErrShortIDGeneration
}

// ListPublic returns the newest public links for the dashboard
func (s *LinkService) ListPublic(ctx context.Context) ([]model.PublicLink, error) {
	links, err := s.links.ListPublic(ctx, s.opts.PublicListSize)
	if err != nil {
		return nil, fmt.Errorf("%w: list public links: %v", ErrInternal, err)
	}

	out := make([]model.PublicLink, 0, len(links))
	for _, l := range links {
		out = append(out, model.PublicLink{
			ShortID:     l.ShortID,
			OriginalURL: l.OriginalURL,
			CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
			ClickCount:  l.ClickCount,
			Title:       l.Title,
		})
	}
	return out, nil
}

// Resolve returns the original URL of shortID and records the visit.
// Recording failures are logged and never fail the redirect.
func (s *LinkService) Resolve(ctx context.Context, shortID string, visit Visit) (string, error) {
	link, err := s.links.GetByID(ctx, shortID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: get link: %v", ErrInternal, err)
	}

	event := &model.ClickEvent{
		ID:         uuid.New(),
		ShortID:    link.ShortID,
		Timestamp:  s.now().UTC(),
		Referer:    strings.TrimSpace(visit.Referer),
		IPHash:     analytics.HashIP(visit.IP),
		UserAgent:  visit.UserAgent,
		Country:    visit.Country,
		DeviceType: analytics.DeviceType(visit.UserAgent),
	}
	s.recordClick(ctx, event)

	return link.OriginalURL, nil
}

func (s *LinkService) recordClick(ctx context.Context, e *model.ClickEvent) {
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, e)
		if err == nil {
			return
		}
		s.logger.WarnContext(ctx, "click publish failed, recording directly",
			slog.String("short_id", e.ShortID),
			slog.String("error", err.Error()))
	}
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to record click",
			slog.String("short_id", e.ShortID),
			slog.String("error", err.Error()))
	}
}

func (s *LinkService) recordMonitor(ctx context.Context, metricType model.MetricType, data any) {
	if s.monitor == nil {
		return
	}
	if err := s.monitor.Record(ctx, metricType, data); err != nil {
		s.logger.WarnContext(ctx, "failed to record monitor event",
			slog.String("metric_type", string(metricType)),
			slog.String("error", err.Error()))
	}
}

func (s *LinkService) count(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

var _ LinkServiceInterface = (*LinkService)(nil)
