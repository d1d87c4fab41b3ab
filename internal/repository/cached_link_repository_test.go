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

func TestCachedLinkRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), testCache.Client, time.Minute)

	t.Run("miss populates cache", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		seedLink(t, "cache001", model.VisibilityPublic, time.Now())

		link, err := repo.GetByID(ctx, "cache001")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/cache001", link.OriginalURL)

		raw, err := testCache.Client.Get(ctx, "link:cache001").Bytes()
		require.NoError(t, err)
		var cached model.ShortLink
		require.NoError(t, json.Unmarshal(raw, &cached))
		assert.Equal(t, "cache001", cached.ShortID)
	})

	t.Run("hit is served from cache", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)
		seedLink(t, "cache002", model.VisibilityPublic, time.Now())

		_, err := repo.GetByID(ctx, "cache002")
		require.NoError(t, err)

		// remove the row; the cached copy still answers
		_, err = testDB.Pool.Exec(ctx, "DELETE FROM links WHERE short_id = $1", "cache002")
		require.NoError(t, err)

		link, err := repo.GetByID(ctx, "cache002")
		require.NoError(t, err)
		assert.Equal(t, "cache002", link.ShortID)
	})

	t.Run("not found is negatively cached", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		_, err := repo.GetByID(ctx, "missing1")
		assert.ErrorIs(t, err, ErrNotFound)

		val, err := testCache.Client.Get(ctx, "link:missing1").Result()
		require.NoError(t, err)
		assert.Equal(t, notFoundSentinel, val)

		_, err = repo.GetByID(ctx, "missing1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create clears negative entry", func(t *testing.T) {
		testDB.Cleanup(ctx)
		testCache.Cleanup(ctx)

		_, err := repo.GetByID(ctx, "late0001")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, repo.Create(ctx, &model.ShortLink{
			ShortID: "late0001", OriginalURL: "https://example.com/late", Visibility: model.VisibilityPrivate, CreatedAt: time.Now(),
		}))

		link, err := repo.GetByID(ctx, "late0001")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/late", link.OriginalURL)
	})

	t.Run("works without cache", func(t *testing.T) {
		testDB.Cleanup(ctx)
		seedLink(t, "nocache1", model.VisibilityPrivate, time.Now())

		link, err := NewCachedLinkRepository(NewLinkRepository(testDB.Pool), nil, 0).GetByID(ctx, "nocache1")
		require.NoError(t, err)
		assert.Equal(t, "nocache1", link.ShortID)
	})
}
