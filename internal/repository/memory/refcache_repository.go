package memory

import (
	"time"

	"ai-docassist-be/pkg/refcache"

	"github.com/patrickmn/go-cache"
)

// RefCacheRepository keeps live conversation caches between turns so
// consecutive turns skip the durable load. An idle conversation expires and
// reloads through the gateway on its next turn.
type RefCacheRepository struct {
	cache *cache.Cache
}

func NewRefCacheRepository() *RefCacheRepository {
	// Idle conversations expire after 1 hour; expired entries are purged
	// every 10 minutes.
	return NewRefCacheRepositoryWithTTL(1*time.Hour, 10*time.Minute)
}

func NewRefCacheRepositoryWithTTL(ttl, sweep time.Duration) *RefCacheRepository {
	return &RefCacheRepository{
		cache: cache.New(ttl, sweep),
	}
}

func (r *RefCacheRepository) Save(c *refcache.Cache) {
	r.cache.Set(c.ConversationID(), c, cache.DefaultExpiration)
}

func (r *RefCacheRepository) Get(conversationID string) (*refcache.Cache, bool) {
	if x, found := r.cache.Get(conversationID); found {
		return x.(*refcache.Cache), true
	}
	return nil, false
}

func (r *RefCacheRepository) Delete(conversationID string) {
	r.cache.Delete(conversationID)
}
