package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickRepository_Record(t *testing.T) {
	repo := NewClickRepository(testDB.Pool)
	ctx := context.Background()

	t.Run("appends event and bumps counter", func(t *testing.T) {
		testDB.Cleanup(ctx)
		seedLink(t, "click001", model.VisibilityPublic, time.Now())

		for i := 0; i < 3; i++ {
			require.NoError(t, repo.Record(ctx, &model.ClickEvent{
				ID: uuid.New(), ShortID: "click001", Timestamp: time.Now(), Referer: "https://t.co/x",
			}))
		}

		link, err := NewLinkRepository(testDB.Pool).GetByID(ctx, "click001")
		require.NoError(t, err)
		assert.Equal(t, int64(3), link.ClickCount)
	})

	t.Run("concurrent appends lose nothing", func(t *testing.T) {
		testDB.Cleanup(ctx)
		seedLink(t, "click003", model.VisibilityPublic, time.Now())

		const n = 50
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.Record(ctx, &model.ClickEvent{ID: uuid.New(), ShortID: "click003", Timestamp: time.Now()})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		events, err := repo.Query(ctx, "click003", model.Window{})
		require.NoError(t, err)
		assert.Len(t, events, n)

		link, err := NewLinkRepository(testDB.Pool).GetByID(ctx, "click003")
		require.NoError(t, err)
		assert.Equal(t, int64(n), link.ClickCount)
	})

	t.Run("redelivered event is counted once", func(t *testing.T) {
		testDB.Cleanup(ctx)
		seedLink(t, "click002", model.VisibilityPublic, time.Now())

		e := &model.ClickEvent{ID: uuid.New(), ShortID: "click002", Timestamp: time.Now()}
		require.NoError(t, repo.Record(ctx, e))
		require.NoError(t, repo.Record(ctx, e))

		events, err := repo.Query(ctx, "click002", model.Window{})
		require.NoError(t, err)
		assert.Len(t, events, 1)

		link, err := NewLinkRepository(testDB.Pool).GetByID(ctx, "click002")
		require.NoError(t, err)
		assert.Equal(t, int64(1), link.ClickCount)
	})

	t.Run("unknown link is not found", func(t *testing.T) {
		testDB.Cleanup(ctx)

		err := repo.Record(ctx, &model.ClickEvent{ID: uuid.New(), ShortID: "missing1", Timestamp: time.Now()})
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := testDB.ClickEventCount(ctx, "missing1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("empty fields get defaults", func(t *testing.T) {
		testDB.Cleanup(ctx)
		seedLink(t, "click003", model.VisibilityPublic, time.Now())

		require.NoError(t, repo.Record(ctx, &model.ClickEvent{ID: uuid.New(), ShortID: "click003", Timestamp: time.Now()}))

		events, err := repo.Query(ctx, "click003", model.Window{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "unknown", events[0].Country)
		assert.Equal(t, "unknown", events[0].IPHash)
		assert.Equal(t, model.DevicePC, events[0].DeviceType)
		assert.Empty(t, events[0].Referer)
	})
}

func TestClickRepository_Query(t *testing.T) {
	repo := NewClickRepository(testDB.Pool)
	ctx := context.Background()
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	testDB.Cleanup(ctx)
	seedLink(t, "query001", model.VisibilityPublic, base.Add(-time.Hour))
	seedLink(t, "query002", model.VisibilityPublic, base.Add(-time.Hour))
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Record(ctx, &model.ClickEvent{
			ID: uuid.New(), ShortID: "query001", Timestamp: base.Add(time.Duration(i) * time.Hour),
			Country: "KR", DeviceType: model.DeviceMobile, IPHash: "0123456789abcdef",
		}))
	}

	t.Run("returns events oldest first", func(t *testing.T) {
		events, err := repo.Query(ctx, "query001", model.Window{})
		require.NoError(t, err)
		require.Len(t, events, 5)
		assert.Equal(t, base, events[0].Timestamp)
		for i := 1; i < len(events); i++ {
			assert.True(t, events[i].Timestamp.After(events[i-1].Timestamp))
		}
		assert.Equal(t, "KR", events[0].Country)
		assert.Equal(t, model.DeviceMobile, events[0].DeviceType)
	})

	t.Run("window bounds are since-inclusive until-exclusive", func(t *testing.T) {
		events, err := repo.Query(ctx, "query001", model.Window{
			Since: base.Add(time.Hour),
			Until: base.Add(3 * time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, base.Add(time.Hour), events[0].Timestamp)
		assert.Equal(t, base.Add(2*time.Hour), events[1].Timestamp)
	})

	t.Run("known link without clicks is empty", func(t *testing.T) {
		events, err := repo.Query(ctx, "query002", model.Window{})
		require.NoError(t, err)
		assert.NotNil(t, events)
		assert.Empty(t, events)
	})

	t.Run("unknown link is not found", func(t *testing.T) {
		_, err := repo.Query(ctx, "missing1", model.Window{})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
