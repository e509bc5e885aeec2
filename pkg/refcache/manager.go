package refcache

import (
	"context"
	"log"

	"ai-docassist-be/pkg/refcache/bundle"
	"ai-docassist-be/pkg/refcache/gateway"
)

// Registry keeps live Cache instances between turns so consecutive turns of
// the same conversation skip the durable load. The memory repository
// implements it with a TTL cache.
type Registry interface {
	Get(conversationID string) (*Cache, bool)
	Save(c *Cache)
	Delete(conversationID string)
}

// Manager is the factory for per-conversation caches. Each conversation
// gets its own instance; there is no process-wide pool. Two turns for the
// same conversation racing each other end as last-write-wins on save; the
// caller keeps one open request per conversation.
type Manager struct {
	registry  Registry
	gateway   *gateway.Gateway
	bundleCfg bundle.Config
	logger    *log.Logger
}

func NewManager(registry Registry, gw *gateway.Gateway, bundleCfg bundle.Config, logger *log.Logger) *Manager {
	return &Manager{
		registry:  registry,
		gateway:   gw,
		bundleCfg: bundleCfg,
		logger:    logger,
	}
}

// LoadOrCreate returns the conversation's live cache, loading it from the
// gateway on a registry miss. Load never fails; a broken or missing record
// yields a fresh empty cache.
func (m *Manager) LoadOrCreate(ctx context.Context, conversationID string) *Cache {
	if c, ok := m.registry.Get(conversationID); ok {
		return c
	}

	messages, p := m.gateway.Load(ctx, conversationID)
	c := NewCache(conversationID, p, messages, m.bundleCfg, m.logger)
	m.registry.Save(c)
	return c
}

// Save keeps the live instance registered and persists its pool,
// best-effort.
func (m *Manager) Save(ctx context.Context, c *Cache) {
	m.registry.Save(c)
	m.gateway.Save(ctx, c.ConversationID(), c.Pool())
}

// Forget drops the conversation from the registry and the durable store,
// for conversation deletion.
func (m *Manager) Forget(ctx context.Context, conversationID string) {
	m.registry.Delete(conversationID)
	m.gateway.Delete(ctx, conversationID)
}
