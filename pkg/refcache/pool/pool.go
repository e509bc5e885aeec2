// Package pool implements the bounded per-conversation collection of
// document references. One Pool belongs to exactly one conversation; it is
// never shared. All operations are synchronous and in-memory; persistence
// and metadata I/O live in the gateway.
package pool

import (
	"log"
	"sort"

	"ai-docassist-be/pkg/refcache/scoring"
	"ai-docassist-be/pkg/store"
)

// Config carries the tunables for pool maintenance. Zero values are not
// meaningful; use DefaultConfig and override from app config.
type Config struct {
	MaxSize              int
	DecayRate            float64
	AccessBoost          float64
	CitationBoost        float64
	CleanupMinScore      float64
	CleanupMaxIdleRounds int
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		MaxSize:              40,
		DecayRate:            scoring.DefaultDecayRate,
		AccessBoost:          scoring.DefaultAccessBoost,
		CitationBoost:        scoring.DefaultCitationBoost,
		CleanupMinScore:      scoring.MinRelevanceFloor,
		CleanupMaxIdleRounds: 5,
	}
}

// Pool maps document_id -> DocumentReference for one conversation and
// tracks the conversation round counter.
//
// Invariants after every completed turn:
//   - len(pool) <= cfg.MaxSize
//   - every reference's LastAccessedRound <= CurrentRound()
//   - every score within [scoring.MinRelevanceFloor, scoring.MaxRelevanceScore]
type Pool struct {
	cfg    Config
	refs   map[string]*store.DocumentReference
	order  []string // insertion order, the final snapshot tie-break
	round  int      // completed turns; incremented once per turn
	logger *log.Logger
}

// New creates an empty pool at round 0.
func New(cfg Config, logger *log.Logger) *Pool {
	return &Pool{
		cfg:    cfg,
		refs:   make(map[string]*store.DocumentReference),
		order:  make([]string, 0),
		logger: logger,
	}
}

// Restore rebuilds a pool from persisted references. ids carries the
// original insertion order; references missing from ids are appended after
// them. The round counter resumes at the highest LastAccessedRound seen so
// nothing decays spuriously on the first turn after a restart.
func Restore(cfg Config, refs map[string]store.DocumentReference, ids []string, logger *log.Logger) *Pool {
	p := New(cfg, logger)
	for _, id := range ids {
		ref, ok := refs[id]
		if !ok {
			continue
		}
		p.adopt(id, ref)
	}
	for id, ref := range refs {
		if _, ok := p.refs[id]; ok {
			continue
		}
		p.adopt(id, ref)
	}
	for _, ref := range p.refs {
		if ref.LastAccessedRound > p.round {
			p.round = ref.LastAccessedRound
		}
	}
	return p
}

func (p *Pool) adopt(id string, ref store.DocumentReference) {
	ref.DocumentID = id
	sanitize(&ref)
	p.refs[id] = &ref
	p.order = append(p.order, id)
}

// sanitize repairs out-of-range persisted values instead of rejecting the
// record; a malformed reference must never abort a load.
func sanitize(ref *store.DocumentReference) {
	if ref.Label == "" {
		ref.Label = store.PlaceholderLabel(ref.DocumentID)
	}
	ref.Summary = store.TruncateSummary(ref.Summary)
	ref.KeyConcepts = store.CapList(ref.KeyConcepts, store.MaxKeyConcepts)
	ref.SemanticTags = store.CapList(ref.SemanticTags, store.MaxSemanticTags)
	if ref.RelevanceScore > scoring.MaxRelevanceScore {
		ref.RelevanceScore = scoring.MaxRelevanceScore
	}
	if ref.RelevanceScore < scoring.MinRelevanceFloor {
		ref.RelevanceScore = scoring.MinRelevanceFloor
	}
	if ref.AccessCount < 1 {
		ref.AccessCount = 1
	}
	if ref.LastAccessedRound < ref.FirstMentionedRound {
		ref.LastAccessedRound = ref.FirstMentionedRound
	}
}

// Len returns the number of cached references.
func (p *Pool) Len() int {
	return len(p.refs)
}

// CurrentRound returns the number of completed turns.
func (p *Pool) CurrentRound() int {
	return p.round
}

// CompleteRound advances the turn counter. Called once at the start of the
// recording phase, before decay runs.
func (p *Pool) CompleteRound() int {
	p.round++
	return p.round
}

// Get returns the live reference for a document id.
func (p *Pool) Get(documentID string) (*store.DocumentReference, bool) {
	ref, ok := p.refs[documentID]
	return ref, ok
}

// Contains reports whether the document is cached.
func (p *Pool) Contains(documentID string) bool {
	_, ok := p.refs[documentID]
	return ok
}

// IDs returns the document ids in insertion order.
func (p *Pool) IDs() []string {
	return append([]string(nil), p.order...)
}

// References returns the live references in insertion order. Callers must
// not reorder or remove entries; mutation through scoring is expected.
func (p *Pool) References() []*store.DocumentReference {
	out := make([]*store.DocumentReference, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.refs[id])
	}
	return out
}

// Export copies the pool content into the persisted record shape.
func (p *Pool) Export() map[string]store.DocumentReference {
	out := make(map[string]store.DocumentReference, len(p.refs))
	for id, ref := range p.refs {
		out[id] = *ref.Clone()
	}
	return out
}

// Upsert records that a document was surfaced this turn. A new document
// enters at full relevance; an existing one gets an access boost. Partial
// metadata is tolerated: a missing label falls back to the placeholder name
// and is upgraded later if real metadata arrives.
func (p *Pool) Upsert(documentID string, meta store.DocumentSummary) *store.DocumentReference {
	if documentID == "" {
		return nil
	}

	if ref, ok := p.refs[documentID]; ok {
		scoring.BoostAccess(ref, p.round, p.cfg.AccessBoost)
		p.refresh(ref, meta)
		return ref
	}

	label := meta.Label
	if label == "" {
		label = store.PlaceholderLabel(documentID)
		if p.logger != nil {
			p.logger.Printf("[POOL] Missing metadata for %s, using placeholder label", documentID)
		}
	}

	ref := &store.DocumentReference{
		DocumentID:          documentID,
		Label:               label,
		Summary:             store.TruncateSummary(meta.Summary),
		KeyConcepts:         store.CapList(meta.KeyConcepts, store.MaxKeyConcepts),
		SemanticTags:        store.CapList(meta.SemanticTags, store.MaxSemanticTags),
		FirstMentionedRound: p.round,
		LastAccessedRound:   p.round,
		RelevanceScore:      scoring.InitialScore,
		AccessCount:         1,
	}
	p.refs[documentID] = ref
	p.order = append(p.order, documentID)
	return ref
}

// refresh fills gaps in an existing reference from newly fetched metadata.
// A placeholder label is replaced; populated fields are left alone.
func (p *Pool) refresh(ref *store.DocumentReference, meta store.DocumentSummary) {
	if meta.Label != "" && ref.Label == store.PlaceholderLabel(ref.DocumentID) {
		ref.Label = meta.Label
	}
	if ref.Summary == "" && meta.Summary != "" {
		ref.Summary = store.TruncateSummary(meta.Summary)
	}
	if len(ref.KeyConcepts) == 0 && len(meta.KeyConcepts) > 0 {
		ref.KeyConcepts = store.CapList(meta.KeyConcepts, store.MaxKeyConcepts)
	}
	if len(ref.SemanticTags) == 0 && len(meta.SemanticTags) > 0 {
		ref.SemanticTags = store.CapList(meta.SemanticTags, store.MaxSemanticTags)
	}
}

// BoostAccess applies the small access boost to one document, for documents
// the answer drew on without citing them.
func (p *Pool) BoostAccess(documentID string) bool {
	ref, ok := p.refs[documentID]
	if !ok {
		return false
	}
	scoring.BoostAccess(ref, p.round, p.cfg.AccessBoost)
	return true
}

// BoostCitation applies the stronger citation boost to one document.
// Callers pass each document at most once per turn; Detect already
// deduplicates marker hits.
func (p *Pool) BoostCitation(documentID string) bool {
	ref, ok := p.refs[documentID]
	if !ok {
		return false
	}
	scoring.BoostCitation(ref, p.round, p.cfg.CitationBoost)
	return true
}

// DecayUnused decays every reference not in excluded (the documents used
// this turn).
func (p *Pool) DecayUnused(excluded map[string]struct{}) {
	for _, id := range p.order {
		if _, ok := excluded[id]; ok {
			continue
		}
		scoring.Decay(p.refs[id], p.round, p.cfg.DecayRate)
	}
}

// TrimToSize evicts the lowest-priority references until the pool fits
// MaxSize. Exact no-op when the pool already fits: the surviving reference
// set keeps its identity and order. Returns the evicted ids.
func (p *Pool) TrimToSize() []string {
	if len(p.refs) <= p.cfg.MaxSize {
		return nil
	}

	type ranked struct {
		id       string
		priority float64
	}
	rankings := make([]ranked, 0, len(p.order))
	for _, id := range p.order {
		ref := p.refs[id]
		idle := scoring.IdleRounds(ref, p.round)
		priority := 0.7*ref.RelevanceScore + 0.3*(1.0/float64(idle+1))
		rankings = append(rankings, ranked{id: id, priority: priority})
	}

	sort.SliceStable(rankings, func(i, j int) bool {
		return rankings[i].priority > rankings[j].priority
	})

	evicted := make([]string, 0, len(rankings)-p.cfg.MaxSize)
	for _, r := range rankings[p.cfg.MaxSize:] {
		evicted = append(evicted, r.id)
	}
	p.remove(evicted)

	if p.logger != nil && len(evicted) > 0 {
		p.logger.Printf("[POOL] Trimmed to %d references, evicted %d: %v", p.cfg.MaxSize, len(evicted), evicted)
	}
	return evicted
}

// CleanupLowRelevance removes references that are BOTH at or below the
// cleanup score AND idle for at least the configured rounds. Either
// condition alone keeps the reference alive indefinitely. Returns the
// removed ids.
func (p *Pool) CleanupLowRelevance() []string {
	removed := make([]string, 0)
	for _, id := range p.order {
		ref := p.refs[id]
		idle := scoring.IdleRounds(ref, p.round)
		if ref.RelevanceScore <= p.cfg.CleanupMinScore && idle >= p.cfg.CleanupMaxIdleRounds {
			removed = append(removed, id)
		}
	}
	p.remove(removed)

	if p.logger != nil && len(removed) > 0 {
		p.logger.Printf("[POOL] Cleaned up %d stale references: %v", len(removed), removed)
	}
	return removed
}

func (p *Pool) remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
		delete(p.refs, id)
	}
	kept := p.order[:0]
	for _, id := range p.order {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	p.order = kept
}
