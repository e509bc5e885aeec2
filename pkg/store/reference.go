package store

// Field limits applied when a reference is created or refreshed.
const (
	MaxSummaryLength = 200
	MaxKeyConcepts   = 10
	MaxSemanticTags  = 5
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DocumentReference is one cached fact that a document matters to the
// current conversation. References live inside a Pool and are mutated
// every turn: decayed when unused, boosted when accessed or cited.
type DocumentReference struct {
	DocumentID          string   `json:"document_id"`
	Label               string   `json:"label"` // display name, usually the document title
	Summary             string   `json:"summary"`
	KeyConcepts         []string `json:"key_concepts"`
	SemanticTags        []string `json:"semantic_tags"`
	FirstMentionedRound int      `json:"first_mentioned_round"`
	LastAccessedRound   int      `json:"last_accessed_round"`
	RelevanceScore      float64  `json:"relevance_score"` // always within [0.3, 1.0]
	AccessCount         int      `json:"access_count"`    // >= 1, never decreases
}

// Clone returns an independent copy of the reference.
func (r *DocumentReference) Clone() *DocumentReference {
	c := *r
	c.KeyConcepts = append([]string(nil), r.KeyConcepts...)
	c.SemanticTags = append([]string(nil), r.SemanticTags...)
	return &c
}

// DocumentSummary is the metadata shape the external document store returns
// for one document. Unknown ids are simply omitted from batch results.
type DocumentSummary struct {
	DocumentID   string   `json:"document_id"`
	Label        string   `json:"label"`
	Summary      string   `json:"summary"`
	KeyConcepts  []string `json:"key_concepts"`
	SemanticTags []string `json:"semantic_tags"`
}

// SnapshotEntry is one numbered row of a ReferenceSnapshot.
type SnapshotEntry struct {
	Number     int    `json:"number"` // 1-based position, what "citation:N" denotes
	DocumentID string `json:"document_id"`
	Label      string `json:"label"`
}

// ReferenceSnapshot is the frozen, numbered ordering of documents handed to
// one generation call. Numbers are exactly 1..N with no gaps.
//
// THE AUTHORITY: "the Nth document" in a follow-up turn resolves against
// this snapshot, never against the live pool, because decay and boost may
// reorder the pool before the next turn starts.
type ReferenceSnapshot struct {
	Entries []SnapshotEntry `json:"entries"`
	Round   int             `json:"round"` // pool round when the snapshot was taken
}

// IsEmpty reports whether the snapshot has no entries.
func (s ReferenceSnapshot) IsEmpty() bool {
	return len(s.Entries) == 0
}

// Lookup returns the entry with the given reference number.
func (s ReferenceSnapshot) Lookup(number int) (SnapshotEntry, bool) {
	for _, e := range s.Entries {
		if e.Number == number {
			return e, true
		}
	}
	return SnapshotEntry{}, false
}

// Message is one conversation turn fragment kept for context building.
// UsedDocumentIDs is only set on assistant messages and lists the documents
// the answer actually cited.
type Message struct {
	Role            string   `json:"role"`
	Content         string   `json:"content"`
	Round           int      `json:"round"`
	UsedDocumentIDs []string `json:"used_document_ids,omitempty"`
}

// PlaceholderLabel builds the degraded-mode display name used when document
// metadata is missing or the metadata fetch failed.
func PlaceholderLabel(documentID string) string {
	short := documentID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Document_" + short
}

// TruncateSummary enforces the summary length limit at insert time.
func TruncateSummary(summary string) string {
	runes := []rune(summary)
	if len(runes) <= MaxSummaryLength {
		return summary
	}
	return string(runes[:MaxSummaryLength])
}

// CapList bounds a string list to its configured maximum.
func CapList(values []string, max int) []string {
	if len(values) <= max {
		return values
	}
	return values[:max]
}
