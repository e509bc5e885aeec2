// Package gateway is the durability point for conversation reference
// pools. One JSON record per conversation lives in Redis; loading always
// succeeds (a failure degrades to an empty pool) and saving is best-effort
// because the in-memory pool stays authoritative for the running turn.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-docassist-be/pkg/refcache/pool"
	"ai-docassist-be/pkg/refcache/scoring"
	"ai-docassist-be/pkg/store"
)

const keyPrefix = "refcache:"

// record is the persisted shape. DocumentIDs carries the pool's insertion
// order; a legacy record has ids only and no pool payload.
type record struct {
	DocumentIDs  []string                           `json:"document_ids"`
	DocumentPool map[string]store.DocumentReference `json:"document_pool"`
	UpdatedAt    time.Time                          `json:"updated_at"`
}

// MetadataSource is the external document store: batch summary fetch,
// unknown ids omitted from the result.
type MetadataSource interface {
	FetchSummaries(ctx context.Context, documentIDs []string) ([]store.DocumentSummary, error)
}

// MessageSource supplies the conversation history kept outside this record.
type MessageSource interface {
	History(ctx context.Context, conversationID string) ([]store.Message, error)
}

// Gateway loads and saves one conversation's pool. A nil redis client is
// tolerated: every conversation then starts empty and saves are skipped.
type Gateway struct {
	rdb      *redis.Client
	metadata MetadataSource
	messages MessageSource
	poolCfg  pool.Config
	logger   *log.Logger
}

func NewGateway(rdb *redis.Client, metadata MetadataSource, messages MessageSource, poolCfg pool.Config, logger *log.Logger) *Gateway {
	return &Gateway{
		rdb:      rdb,
		metadata: metadata,
		messages: messages,
		poolCfg:  poolCfg,
		logger:   logger,
	}
}

// Load returns the conversation's history and reference pool. It never
// fails: a missing, malformed, or unreachable record yields an empty pool,
// and a history failure yields empty messages.
func (g *Gateway) Load(ctx context.Context, conversationID string) ([]store.Message, *pool.Pool) {
	return g.history(ctx, conversationID), g.loadPool(ctx, conversationID)
}

func (g *Gateway) history(ctx context.Context, conversationID string) []store.Message {
	if g.messages == nil {
		return nil
	}
	msgs, err := g.messages.History(ctx, conversationID)
	if err != nil {
		g.logf("[GATEWAY] History load failed for %s: %v, continuing with empty history", conversationID, err)
		return nil
	}
	return msgs
}

func (g *Gateway) loadPool(ctx context.Context, conversationID string) *pool.Pool {
	if g.rdb == nil {
		return pool.New(g.poolCfg, g.logger)
	}

	raw, err := g.rdb.Get(ctx, key(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return pool.New(g.poolCfg, g.logger)
	}
	if err != nil {
		g.logf("[GATEWAY] Load failed for %s: %v, starting with empty pool", conversationID, err)
		return pool.New(g.poolCfg, g.logger)
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		g.logf("[GATEWAY] Malformed record for %s: %v, starting with empty pool", conversationID, err)
		return pool.New(g.poolCfg, g.logger)
	}

	if len(rec.DocumentPool) == 0 && len(rec.DocumentIDs) > 0 {
		p := pool.Restore(g.poolCfg, g.reconstruct(ctx, rec.DocumentIDs), rec.DocumentIDs, g.logger)
		g.Save(ctx, conversationID, p)
		g.logf("[GATEWAY] Migrated legacy record for %s (%d ids)", conversationID, len(rec.DocumentIDs))
		return p
	}

	return pool.Restore(g.poolCfg, rec.DocumentPool, rec.DocumentIDs, g.logger)
}

// reconstruct rebuilds references for a legacy bare-id record. When the
// metadata fetch fails every id gets a placeholder reference; when it
// succeeds, ids the store no longer knows are dropped.
func (g *Gateway) reconstruct(ctx context.Context, ids []string) map[string]store.DocumentReference {
	if g.metadata == nil {
		return placeholders(ids)
	}
	summaries, err := g.metadata.FetchSummaries(ctx, ids)
	if err != nil {
		g.logf("[GATEWAY] Metadata fetch failed during migration: %v, using placeholder references", err)
		return placeholders(ids)
	}

	refs := make(map[string]store.DocumentReference, len(summaries))
	for _, s := range summaries {
		refs[s.DocumentID] = store.DocumentReference{
			DocumentID:     s.DocumentID,
			Label:          s.Label,
			Summary:        store.TruncateSummary(s.Summary),
			KeyConcepts:    store.CapList(s.KeyConcepts, store.MaxKeyConcepts),
			SemanticTags:   store.CapList(s.SemanticTags, store.MaxSemanticTags),
			RelevanceScore: scoring.InitialScore,
			AccessCount:    1,
		}
	}
	return refs
}

func placeholders(ids []string) map[string]store.DocumentReference {
	refs := make(map[string]store.DocumentReference, len(ids))
	for _, id := range ids {
		refs[id] = store.DocumentReference{
			DocumentID:     id,
			Label:          store.PlaceholderLabel(id),
			RelevanceScore: scoring.InitialScore,
			AccessCount:    1,
		}
	}
	return refs
}

// Save persists the pool as an idempotent upsert. Failures are logged and
// swallowed: the caller's in-memory pool remains authoritative, at the cost
// of losing this turn's update on restart.
func (g *Gateway) Save(ctx context.Context, conversationID string, p *pool.Pool) {
	if g.rdb == nil || p == nil {
		return
	}

	data, err := json.Marshal(record{
		DocumentIDs:  p.IDs(),
		DocumentPool: p.Export(),
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		g.logf("[GATEWAY] Marshal failed for %s: %v, skipping save", conversationID, err)
		return
	}

	if err := g.rdb.Set(ctx, key(conversationID), data, 0).Err(); err != nil {
		g.logf("[GATEWAY] Save failed for %s: %v, keeping in-memory state", conversationID, err)
	}
}

// Delete drops the conversation's record, best-effort.
func (g *Gateway) Delete(ctx context.Context, conversationID string) {
	if g.rdb == nil {
		return
	}
	if err := g.rdb.Del(ctx, key(conversationID)).Err(); err != nil {
		g.logf("[GATEWAY] Delete failed for %s: %v", conversationID, err)
	}
}

func (g *Gateway) logf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}

func key(conversationID string) string {
	return keyPrefix + conversationID
}
