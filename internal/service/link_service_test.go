package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/repository"
	"github.com/lold2424/LessURL-Service/internal/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLinkOptions = LinkOptions{
	BaseURL:        "https://lessurl.test/",
	ShortIDLen:     8,
	ShortIDRetries: 3,
	PublicListSize: 10,
	MaxTitleLen:    20,
}

func TestLinkService_Shorten(t *testing.T) {
	ctx := context.Background()

	t.Run("creates private link by default", func(t *testing.T) {
		links := new(MockLinkRepository)
		links.On("Create", ctx, mock.MatchedBy(func(l *model.ShortLink) bool {
			return l.OriginalURL == "https://example.com/a" &&
				l.Visibility == model.VisibilityPrivate &&
				len(l.ShortID) == 8
		})).Return(nil)

		svc := NewLinkService(links, nil, nil, nil, nil, testLinkOptions, nil)
		resp, err := svc.Shorten(ctx, &model.ShortenRequest{URL: "example.com/a"})

		require.NoError(t, err)
		assert.Len(t, resp.ShortID, 8)
		assert.Equal(t, "https://lessurl.test/"+resp.ShortID, resp.ShortURL)
		links.AssertExpectations(t)
	})

	t.Run("accepts lowercase public visibility and title", func(t *testing.T) {
		links := new(MockLinkRepository)
		links.On("Create", ctx, mock.MatchedBy(func(l *model.ShortLink) bool {
			return l.Visibility == model.VisibilityPublic && l.Title == "My link"
		})).Return(nil)

		svc := NewLinkService(links, nil, nil, nil, nil, testLinkOptions, nil)
		_, err := svc.Shorten(ctx, &model.ShortenRequest{URL: "https://example.com", Title: " My link ", Visibility: "public"})

		require.NoError(t, err)
		links.AssertExpectations(t)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc := NewLinkService(new(MockLinkRepository), nil, nil, nil, nil, testLinkOptions, nil)

		_, err := svc.Shorten(ctx, &model.ShortenRequest{URL: "ftp://example.com"})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = svc.Shorten(ctx, &model.ShortenRequest{URL: "https://example.com", Visibility: "FRIENDS"})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = svc.Shorten(ctx, &model.ShortenRequest{URL: "https://example.com", Title: "this title is far too long"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects malicious url and records it", func(t *testing.T) {
		links := new(MockLinkRepository)
		screener := new(MockScreener)
		monitor := new(MockMonitor)
		screener.On("Screen", ctx, "https://evil.test").Return(safety.Verdict{Malicious: true, Reason: "PHISHING"})
		monitor.On("Record", ctx, model.MetricMaliciousURL, model.MaliciousURLData{Reason: "PHISHING", URL: "https://evil.test"}).Return(nil)

		svc := NewLinkService(links, nil, nil, screener, monitor, testLinkOptions, nil)
		_, err := svc.Shorten(ctx, &model.ShortenRequest{URL: "https://evil.test"})

		assert.ErrorIs(t, err, ErrMaliciousURL)
		links.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		monitor.AssertExpectations(t)
	})

	t.Run("retries on id conflict", func(t *testing.T) {
		links := new(MockLinkRepository)
		links.On("Create", ctx, mock.Anything).Return(repository.ErrIDConflict).Once()
		links.On("Create", ctx, mock.Anything).Return(nil).Once()

		svc := NewLinkService(links, nil, nil, nil, nil, testLinkOptions, nil)
		_, err := svc.Shorten(ctx, &model.ShortenRequest{URL: "https://example.com"})

		require.NoError(t, err)
		links.AssertNumberOfCalls(t, "Create", 2)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		links := new(MockLinkRepository)
		links.On("Create", ctx, mock.Anything).Return(repository.ErrIDConflict)

		svc := NewLinkService(links, nil, nil, nil, nil, testLinkOptions, nil)
		_, err := svc.Shorten(ctx, &model.ShortenRequest{URL: "https://example.com"})

		assert.ErrorIs(t, err, ErrShortIDGeneration)
		links.AssertNumberOfCalls(t, "Create", 3)
	})

	t.Run("storage failure is internal", func(t *testing.T) {
		links := new(MockLinkRepository)
		links.On("Create", ctx, mock.Anything).Return(errors.New("connection refused"))

		svc := NewLinkService(links, nil, nil, nil, nil, testLinkOptions, nil)
		_, err := svc.Shorten(ctx, &model.ShortenRequest{URL: "https://example.com"})

		assert.ErrorIs(t, err, ErrInternal)
	})
}

func TestLinkService_ListPublic(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	links := new(MockLinkRepository)
	links.On("ListPublic", ctx, 10).Return([]model.ShortLink{
		{ShortID: "aaaa1111", OriginalURL: "https://a.com", Title: "A", CreatedAt: created, ClickCount: 3, Visibility: model.VisibilityPublic},
	}, nil)

	svc := NewLinkService(links, nil, nil, nil, nil, testLinkOptions, nil)
	out, err := svc.ListPublic(ctx)

	require.NoError(t, err)
	assert.Equal(t, []model.PublicLink{
		{ShortID: "aaaa1111", OriginalURL: "https://a.com", CreatedAt: "2024-05-10T09:00:00Z", ClickCount: 3, Title: "A"},
	}, out)
}

func TestLinkService_Resolve(t *testing.T) {
	ctx := context.Background()
	link := &model.ShortLink{ShortID: "abc12345", OriginalURL: "https://example.com/target"}
	visit := Visit{
		Referer:   "https://twitter.com/post",
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148",
		Country:   "KR",
	}

	t.Run("publishes click and returns original url", func(t *testing.T) {
		links := new(MockLinkRepository)
		publisher := new(MockPublisher)
		links.On("GetByID", ctx, "abc12345").Return(link, nil)
		publisher.On("Publish", ctx, mock.MatchedBy(func(e *model.ClickEvent) bool {
			return e.ShortID == "abc12345" &&
				e.Referer == visit.Referer &&
				e.DeviceType == model.DeviceMobile &&
				e.Country == "KR" &&
				len(e.IPHash) == 16 &&
				e.IPHash != visit.IP
		})).Return(nil)

		svc := NewLinkService(links, publisher, nil, nil, nil, testLinkOptions, nil)
		url, err := svc.Resolve(ctx, "abc12345", visit)

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/target", url)
		publisher.AssertExpectations(t)
	})

	t.Run("records synchronously when publish fails", func(t *testing.T) {
		links := new(MockLinkRepository)
		publisher := new(MockPublisher)
		clicks := new(MockClickStore)
		links.On("GetByID", ctx, "abc12345").Return(link, nil)
		publisher.On("Publish", ctx, mock.Anything).Return(errors.New("broker down"))
		clicks.On("Record", ctx, mock.Anything).Return(nil)

		recorder := NewClickRecorder(clicks, nil, nil)
		svc := NewLinkService(links, publisher, recorder, nil, nil, testLinkOptions, nil)
		url, err := svc.Resolve(ctx, "abc12345", visit)

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/target", url)
		clicks.AssertNumberOfCalls(t, "Record", 1)
	})

	t.Run("recording failure does not fail redirect", func(t *testing.T) {
		links := new(MockLinkRepository)
		clicks := new(MockClickStore)
		links.On("GetByID", ctx, "abc12345").Return(link, nil)
		clicks.On("Record", ctx, mock.Anything).Return(errors.New("db down"))

		svc := NewLinkService(links, nil, NewClickRecorder(clicks, nil, nil), nil, nil, testLinkOptions, nil)
		url, err := svc.Resolve(ctx, "abc12345", visit)

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/target", url)
	})

	t.Run("unknown id is not found and records nothing", func(t *testing.T) {
		links := new(MockLinkRepository)
		publisher := new(MockPublisher)
		links.On("GetByID", ctx, "missing1").Return(nil, repository.ErrNotFound)

		svc := NewLinkService(links, publisher, nil, nil, nil, testLinkOptions, nil)
		_, err := svc.Resolve(ctx, "missing1", visit)

		assert.ErrorIs(t, err, ErrNotFound)
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("lookup failure is internal", func(t *testing.T) {
		links := new(MockLinkRepository)
		links.On("GetByID", ctx, "abc12345").Return(nil, errors.New("timeout"))

		svc := NewLinkService(links, nil, nil, nil, nil, testLinkOptions, nil)
		_, err := svc.Resolve(ctx, "abc12345", visit)

		assert.ErrorIs(t, err, ErrInternal)
	})
}

func TestClickRecorder_Record(t *testing.T) {
	ctx := context.Background()
	event := &model.ClickEvent{ShortID: "abc12345", Timestamp: time.Now()}

	t.Run("records and invalidates snapshot", func(t *testing.T) {
		clicks := new(MockClickStore)
		snapshots := new(MockSnapshotStore)
		clicks.On("Record", ctx, event).Return(nil)
		snapshots.On("Invalidate", ctx, "abc12345").Return(nil)

		err := NewClickRecorder(clicks, snapshots, nil).Record(ctx, event)

		require.NoError(t, err)
		snapshots.AssertExpectations(t)
	})

	t.Run("invalidate failure is ignored", func(t *testing.T) {
		clicks := new(MockClickStore)
		snapshots := new(MockSnapshotStore)
		clicks.On("Record", ctx, event).Return(nil)
		snapshots.On("Invalidate", ctx, "abc12345").Return(errors.New("redis down"))

		assert.NoError(t, NewClickRecorder(clicks, snapshots, nil).Record(ctx, event))
	})

	t.Run("maps store errors", func(t *testing.T) {
		clicks := new(MockClickStore)
		clicks.On("Record", ctx, event).Return(repository.ErrNotFound).Once()
		clicks.On("Record", ctx, event).Return(errors.New("db down")).Once()
		rec := NewClickRecorder(clicks, nil, nil)

		assert.ErrorIs(t, rec.Record(ctx, event), ErrNotFound)
		assert.ErrorIs(t, rec.Record(ctx, event), ErrInternal)
	})
}
