package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const notFoundSentinel = "__NOT_FOUND__"

// CachedLinkRepository decorates a LinkRepositoryInterface with a Redis
// cache-aside layer. Redis errors degrade to database reads.
type CachedLinkRepository struct {
	db    LinkRepositoryInterface
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedLinkRepository creates a cached repository. A nil cache disables caching.
func NewCachedLinkRepository(db LinkRepositoryInterface, cache *redis.Client, ttl time.Duration) *CachedLinkRepository {
	return &CachedLinkRepository{db: db, cache: cache, ttl: ttl}
}

func linkCacheKey(shortID string) string {
	return fmt.Sprintf("link:%s", shortID)
}

// GetByID with cache-aside pattern and negative caching
func (r *CachedLinkRepository) GetByID(ctx context.Context, shortID string) (*model.ShortLink, error) {
	key := linkCacheKey(shortID)

	if r.cache != nil {
		if link, ok, err := r.fromCache(ctx, key); ok {
			return link, err
		}
	}

	// Collapse concurrent misses for the same key into one database query
	v, err, _ := r.group.Do(key, func() (any, error) {
		link, err := r.db.GetByID(ctx, shortID)
		if err != nil {
			if errors.Is(err, ErrNotFound) && r.cache != nil {
				r.cache.Set(ctx, key, notFoundSentinel, r.ttl)
			}
			return nil, err
		}
		r.store(ctx, link)
		return link, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ShortLink), nil
}

// Create writes through to the cache and clears any negative entry
func (r *CachedLinkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	if err := r.db.Create(ctx, link); err != nil {
		return err
	}
	r.store(ctx, link)
	return nil
}

// ListPublic always reads from the database so click counts stay fresh
func (r *CachedLinkRepository) ListPublic(ctx context.Context, limit int) ([]model.ShortLink, error) {
	return r.db.ListPublic(ctx, limit)
}

// fromCache reports ok=false on a miss or a Redis failure
func (r *CachedLinkRepository) fromCache(ctx context.Context, key string) (*model.ShortLink, bool, error) {
	_, span := tracer.Start(ctx, "cache.get",
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	cached, err := r.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			span.RecordError(err)
		}
		return nil, false, nil
	}
	if cached == notFoundSentinel {
		span.SetAttributes(attribute.Bool("cache.negative", true))
		return nil, true, ErrNotFound
	}

	var link model.ShortLink
	if err := json.Unmarshal([]byte(cached), &link); err != nil {
		span.RecordError(err)
		return nil, false, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return &link, true, nil
}

func (r *CachedLinkRepository) store(ctx context.Context, link *model.ShortLink) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	r.cache.Set(ctx, linkCacheKey(link.ShortID), data, r.ttl)
}

var _ LinkRepositoryInterface = (*CachedLinkRepository)(nil)
