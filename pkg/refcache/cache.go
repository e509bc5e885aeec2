// Package refcache ties the reference-cache components together: one Cache
// per conversation, created through the Manager, owning the document pool,
// the message window, and the snapshot recorded by the previous turn.
package refcache

import (
	"errors"
	"log"

	"ai-docassist-be/pkg/refcache/bundle"
	"ai-docassist-be/pkg/refcache/citation"
	"ai-docassist-be/pkg/refcache/pool"
	"ai-docassist-be/pkg/refcache/view"
	"ai-docassist-be/pkg/store"
)

// Cache is the per-conversation reference cache. It is not safe for
// concurrent use; callers serialize turns per conversation (one open
// request per conversation at a time).
type Cache struct {
	conversationID string
	pool           *pool.Pool
	messages       []store.Message
	lastSnapshot   store.ReferenceSnapshot
	builder        *bundle.Builder
	logger         *log.Logger
}

// NewCache wraps a loaded pool and history into a live cache instance.
// lastSnapshot starts empty: after a restart the previous turn's ordering
// is gone and ordinal resolution degrades to best-effort.
func NewCache(conversationID string, p *pool.Pool, messages []store.Message, bundleCfg bundle.Config, logger *log.Logger) *Cache {
	return &Cache{
		conversationID: conversationID,
		pool:           p,
		messages:       messages,
		builder:        bundle.NewBuilder(bundleCfg),
		logger:         logger,
	}
}

func (c *Cache) ConversationID() string {
	return c.conversationID
}

// Pool exposes the live pool, for persistence and inspection.
func (c *Cache) Pool() *pool.Pool {
	return c.pool
}

// Messages returns the conversation history held by this instance.
func (c *Cache) Messages() []store.Message {
	return c.messages
}

// LastSnapshot returns the ordering recorded by the previous turn.
func (c *Cache) LastSnapshot() store.ReferenceSnapshot {
	return c.lastSnapshot
}

// AppendMessage adds one history entry stamped with the current round.
func (c *Cache) AppendMessage(role, content string, usedDocumentIDs []string) {
	c.messages = append(c.messages, store.Message{
		Role:            role,
		Content:         content,
		Round:           c.pool.CurrentRound(),
		UsedDocumentIDs: usedDocumentIDs,
	})
}

// RecordSurfaced upserts every document surfaced this turn (search results
// or explicit mentions). Metadata is matched by id; ids without metadata
// enter with placeholder labels.
func (c *Cache) RecordSurfaced(documentIDs []string, metadata []store.DocumentSummary) {
	byID := make(map[string]store.DocumentSummary, len(metadata))
	for _, m := range metadata {
		byID[m.DocumentID] = m
	}
	for _, id := range documentIDs {
		c.pool.Upsert(id, byID[id])
	}
}

// FreezeSnapshot builds the numbered ordering handed to the generator for
// this turn. The previous turn's snapshot stays in place until RecordTurn
// commits this one, so mid-turn ordinal resolution still answers against
// what the user actually saw.
func (c *Cache) FreezeSnapshot() store.ReferenceSnapshot {
	return view.BuildSnapshot(c.pool.References(), c.pool.CurrentRound())
}

// Resolution is the outcome of an ordinal back-reference. BestEffort marks
// answers derived from the live pool because no prior snapshot existed or
// the ordinal ran past it.
type Resolution struct {
	DocumentID string
	BestEffort bool
}

// ResolveOrdinal maps "the Nth document" to a document id, preferring the
// snapshot recorded by the previous turn. When that fails it retries
// against the live pool ordering and flags the result as best-effort.
func (c *Cache) ResolveOrdinal(ordinal int) (Resolution, bool) {
	id, err := view.ResolveOrdinal(c.lastSnapshot, ordinal)
	if err == nil {
		return Resolution{DocumentID: id}, true
	}

	var notFound *view.OrdinalNotFoundError
	if !errors.As(err, &notFound) {
		return Resolution{}, false
	}

	live := c.FreezeSnapshot()
	id, err = view.ResolveOrdinal(live, ordinal)
	if err != nil {
		return Resolution{}, false
	}
	if c.logger != nil {
		c.logger.Printf("[SNAPSHOT] Ordinal %d resolved against live pool (best effort) for %s", ordinal, c.conversationID)
	}
	return Resolution{DocumentID: id, BestEffort: true}, true
}

// ResolveByText matches free text against pooled labels and summaries, the
// fallback when the user names a document instead of numbering it.
func (c *Cache) ResolveByText(text string) []string {
	return view.ResolveByLabel(c.pool.References(), text)
}

// ClassificationContext builds the classifier projection against the last
// recorded snapshot.
func (c *Cache) ClassificationContext() *bundle.ClassificationContext {
	return c.builder.Classification(c.lastSnapshot, c.pool.References(), c.messages)
}

// AnswerContext builds the generation projection for the snapshot frozen
// this turn.
func (c *Cache) AnswerContext(snap store.ReferenceSnapshot) *bundle.AnswerContext {
	return c.builder.AnswerGeneration(snap, c.pool.References(), c.messages)
}

// SearchContext builds the retrieval projection.
func (c *Cache) SearchContext() *bundle.RetrievalContext {
	return c.builder.SearchRetrieval(c.pool.References(), c.messages)
}

// ClarificationContext builds the clarification projection.
func (c *Cache) ClarificationContext() *bundle.ClarificationContext {
	return c.builder.Clarification(c.pool.References(), c.messages)
}

// TurnResult summarizes what recording a turn did to the text and the pool.
type TurnResult struct {
	Round              int
	Text               string
	CitedDocumentIDs   []string
	EvictedDocumentIDs []string
	CleanedDocumentIDs []string
}

// RecordTurn closes one conversation turn: the round advances, citation
// markers are enforced on the generated text and read back, scores move
// (citation boost, access boost, decay for the rest), the pool is trimmed
// and cleaned, and snap becomes the authority for the next turn's ordinal
// resolution. usedDocumentIDs lists the documents the answer actually drew
// on, as reported by the caller.
func (c *Cache) RecordTurn(snap store.ReferenceSnapshot, generatedText string, usedDocumentIDs []string) TurnResult {
	round := c.pool.CompleteRound()

	enforcer := citation.NewEnforcer(snap, c.logger)
	text := enforcer.Enforce(generatedText)
	cited := enforcer.Detect(text)

	citedSet := make(map[string]struct{}, len(cited))
	for _, id := range cited {
		citedSet[id] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(cited)+len(usedDocumentIDs))
	for _, id := range usedDocumentIDs {
		excluded[id] = struct{}{}
	}
	for _, id := range cited {
		excluded[id] = struct{}{}
	}

	c.pool.DecayUnused(excluded)
	for _, id := range cited {
		c.pool.BoostCitation(id)
	}
	boosted := make(map[string]struct{}, len(usedDocumentIDs))
	for _, id := range usedDocumentIDs {
		if _, ok := citedSet[id]; ok {
			continue
		}
		if _, ok := boosted[id]; ok {
			continue
		}
		boosted[id] = struct{}{}
		c.pool.BoostAccess(id)
	}

	evicted := c.pool.TrimToSize()
	cleaned := c.pool.CleanupLowRelevance()
	c.lastSnapshot = snap

	if c.logger != nil {
		c.logger.Printf("[PIPELINE] Turn %d recorded for %s: cited=%v evicted=%d cleaned=%d",
			round, c.conversationID, cited, len(evicted), len(cleaned))
	}

	return TurnResult{
		Round:              round,
		Text:               text,
		CitedDocumentIDs:   cited,
		EvictedDocumentIDs: evicted,
		CleanedDocumentIDs: cleaned,
	}
}
