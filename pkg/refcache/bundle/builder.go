// Package bundle assembles the four purpose-specific projections of pool +
// history handed to downstream consumers. Builders are pure: they read the
// references and messages they are given and never touch storage.
package bundle

import (
	"strings"

	"ai-docassist-be/pkg/refcache/view"
	"ai-docassist-be/pkg/store"
)

// Config carries the truncation and ranking knobs for context building.
type Config struct {
	RecentMessageLimit int     // classification window
	MessageCharCap     int     // per-message cap for answer generation
	RetrievalTopK      int     // ranked ids handed to search
	RetrievalMinScore  float64 // relevance floor for retrieval candidates
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		RecentMessageLimit: 10,
		MessageCharCap:     1500,
		RetrievalTopK:      10,
		RetrievalMinScore:  0.5,
	}
}

// Builder produces context bundles consistent with the last recorded
// snapshot: a document keeps the number the snapshot gave it, so the
// numbering a consumer sees is the numbering the next ordinal resolution
// will use.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// NumberedDocument is one row of the classification view.
type NumberedDocument struct {
	Number       int      `json:"number"`
	DocumentID   string   `json:"document_id"`
	Label        string   `json:"label"`
	Summary      string   `json:"summary"`
	KeyConcepts  []string `json:"key_concepts"`
	SemanticTags []string `json:"semantic_tags"`
}

// ClassificationContext feeds the query classifier: numbered summaries and
// tags plus the recent message window. Summaries are never truncated here.
type ClassificationContext struct {
	Documents []NumberedDocument `json:"documents"`
	Messages  []store.Message    `json:"messages"`
}

// AnswerContext feeds answer generation: capped history text plus the full
// pool in the frozen snapshot order.
type AnswerContext struct {
	HistoryText string                     `json:"history_text"`
	References  []*store.DocumentReference `json:"references"`
	Ordered     store.ReferenceSnapshot    `json:"ordered"`
}

// RetrievalContext feeds the search layer: ranked candidate ids and
// whether the cached pool should be preferred over a fresh search.
type RetrievalContext struct {
	DocumentIDs []string `json:"document_ids"`
	PreferCache bool     `json:"prefer_cache"`
}

// DocumentTriple is the bare projection used for clarification prompts.
type DocumentTriple struct {
	DocumentID string `json:"document_id"`
	Label      string `json:"label"`
	Summary    string `json:"summary"`
}

// ClarificationContext feeds clarification prompts: the untruncated
// history and plain document triples, no ranking.
type ClarificationContext struct {
	Messages  []store.Message  `json:"messages"`
	Documents []DocumentTriple `json:"documents"`
}

// Classification builds the classifier view. Documents present in the last
// snapshot keep their recorded numbers; references surfaced after that
// snapshot are appended behind them with continuing numbers.
func (b *Builder) Classification(snap store.ReferenceSnapshot, refs []*store.DocumentReference, msgs []store.Message) *ClassificationContext {
	docs := make([]NumberedDocument, 0, len(refs))
	byID := make(map[string]*store.DocumentReference, len(refs))
	for _, ref := range refs {
		byID[ref.DocumentID] = ref
	}

	used := make(map[string]struct{}, len(refs))
	for _, e := range snap.Entries {
		ref, ok := byID[e.DocumentID]
		if !ok {
			continue // evicted since the snapshot; its number stays vacant
		}
		docs = append(docs, numbered(e.Number, ref))
		used[e.DocumentID] = struct{}{}
	}

	next := len(snap.Entries) + 1
	for _, ref := range orderedLeftovers(refs, used) {
		docs = append(docs, numbered(next, ref))
		next++
	}

	return &ClassificationContext{
		Documents: docs,
		Messages:  lastMessages(msgs, b.cfg.RecentMessageLimit),
	}
}

// AnswerGeneration builds the generation view against the snapshot frozen
// for this turn. References come back in snapshot order so position i+1
// in the slice is what citation:(i+1) denotes.
func (b *Builder) AnswerGeneration(snap store.ReferenceSnapshot, refs []*store.DocumentReference, msgs []store.Message) *AnswerContext {
	byID := make(map[string]*store.DocumentReference, len(refs))
	for _, ref := range refs {
		byID[ref.DocumentID] = ref
	}

	ordered := make([]*store.DocumentReference, 0, len(refs))
	used := make(map[string]struct{}, len(refs))
	for _, e := range snap.Entries {
		if ref, ok := byID[e.DocumentID]; ok {
			ordered = append(ordered, ref)
			used[e.DocumentID] = struct{}{}
		}
	}
	ordered = append(ordered, orderedLeftovers(refs, used)...)

	return &AnswerContext{
		HistoryText: b.formatHistory(msgs),
		References:  ordered,
		Ordered:     snap,
	}
}

// SearchRetrieval ranks cached candidates for the search layer.
// PreferCache is true when the most recent assistant turn cited any
// document still present in the pool.
func (b *Builder) SearchRetrieval(refs []*store.DocumentReference, msgs []store.Message) *RetrievalContext {
	ranked := view.BuildSnapshot(refs, 0)

	byID := make(map[string]*store.DocumentReference, len(refs))
	for _, ref := range refs {
		byID[ref.DocumentID] = ref
	}

	ids := make([]string, 0, b.cfg.RetrievalTopK)
	for _, e := range ranked.Entries {
		if len(ids) >= b.cfg.RetrievalTopK {
			break
		}
		if byID[e.DocumentID].RelevanceScore < b.cfg.RetrievalMinScore {
			continue
		}
		ids = append(ids, e.DocumentID)
	}

	return &RetrievalContext{
		DocumentIDs: ids,
		PreferCache: lastAssistantCitedPool(refs, msgs),
	}
}

// Clarification builds the clarification view: everything, untruncated.
func (b *Builder) Clarification(refs []*store.DocumentReference, msgs []store.Message) *ClarificationContext {
	docs := make([]DocumentTriple, 0, len(refs))
	for _, ref := range refs {
		docs = append(docs, DocumentTriple{
			DocumentID: ref.DocumentID,
			Label:      ref.Label,
			Summary:    ref.Summary,
		})
	}
	return &ClarificationContext{
		Messages:  append([]store.Message(nil), msgs...),
		Documents: docs,
	}
}

func numbered(n int, ref *store.DocumentReference) NumberedDocument {
	return NumberedDocument{
		Number:       n,
		DocumentID:   ref.DocumentID,
		Label:        ref.Label,
		Summary:      ref.Summary,
		KeyConcepts:  ref.KeyConcepts,
		SemanticTags: ref.SemanticTags,
	}
}

// orderedLeftovers ranks the references missing from the snapshot the same
// way a fresh snapshot would.
func orderedLeftovers(refs []*store.DocumentReference, used map[string]struct{}) []*store.DocumentReference {
	leftovers := make([]*store.DocumentReference, 0)
	for _, ref := range refs {
		if _, ok := used[ref.DocumentID]; !ok {
			leftovers = append(leftovers, ref)
		}
	}
	if len(leftovers) < 2 {
		return leftovers
	}

	byID := make(map[string]*store.DocumentReference, len(leftovers))
	for _, ref := range leftovers {
		byID[ref.DocumentID] = ref
	}
	ranked := view.BuildSnapshot(leftovers, 0)
	out := make([]*store.DocumentReference, 0, len(leftovers))
	for _, e := range ranked.Entries {
		out = append(out, byID[e.DocumentID])
	}
	return out
}

func lastMessages(msgs []store.Message, limit int) []store.Message {
	if limit <= 0 || len(msgs) <= limit {
		return append([]store.Message(nil), msgs...)
	}
	return append([]store.Message(nil), msgs[len(msgs)-limit:]...)
}

func (b *Builder) formatHistory(msgs []store.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		content := msg.Content
		if b.cfg.MessageCharCap > 0 {
			runes := []rune(content)
			if len(runes) > b.cfg.MessageCharCap {
				content = string(runes[:b.cfg.MessageCharCap]) + "..."
			}
		}
		switch msg.Role {
		case store.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			sb.WriteString("User: ")
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// lastAssistantCitedPool scans backward for the newest assistant message
// and checks whether any document it cited is still pooled.
func lastAssistantCitedPool(refs []*store.DocumentReference, msgs []store.Message) bool {
	pooled := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		pooled[ref.DocumentID] = struct{}{}
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != store.RoleAssistant {
			continue
		}
		for _, id := range msgs[i].UsedDocumentIDs {
			if _, ok := pooled[id]; ok {
				return true
			}
		}
		return false
	}
	return false
}
