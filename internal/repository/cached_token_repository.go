package repository

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type cachedTokenRepository struct {
	next  SubscriptionTokenRepository
	cache *gocache.Cache
}

// NewCachedTokenRepository memoizes successful resolutions. Token bindings never
// change once written, so only hits are cached; unknown tokens always reach next.
func NewCachedTokenRepository(next SubscriptionTokenRepository, ttl time.Duration) SubscriptionTokenRepository {
	if ttl <= 0 {
		return next
	}
	return &cachedTokenRepository{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (r *cachedTokenRepository) Resolve(ctx context.Context, token string) (string, bool, error) {
	if v, ok := r.cache.Get(token); ok {
		if id, ok := v.(string); ok {
			return id, true, nil
		}
	}
	id, found, err := r.next.Resolve(ctx, token)
	if err != nil || !found {
		return id, found, err
	}
	r.cache.SetDefault(token, id)
	return id, true, nil
}
