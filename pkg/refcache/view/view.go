// Package view builds the numbered reference ordering handed to the text
// generator and resolves later natural-language back-references ("the
// second file") against the ordering recorded in the previous turn.
package view

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ai-docassist-be/pkg/store"
)

// Ordinal phrasing recognized in user follow-ups.
var (
	ordinalWords = map[string]int{
		"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
		"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	}
	ordinalSuffixPattern = regexp.MustCompile(`(?i)\b(\d{1,3})(?:st|nd|rd|th)\b`)
	ordinalNounPattern   = regexp.MustCompile(`(?i)\b(?:document|doc|file|reference|ref|source|number|no\.?|#)\s*(\d{1,3})\b`)
	wordPattern          = regexp.MustCompile(`[a-zA-Z0-9_&-]+`)
)

// stopwords excluded from label/summary matching. Short generic words would
// otherwise match nearly every document.
var stopwords = map[string]struct{}{
	"the": {}, "one": {}, "ones": {}, "about": {}, "that": {}, "this": {},
	"those": {}, "these": {}, "with": {}, "for": {}, "and": {}, "from": {},
	"what": {}, "which": {}, "tell": {}, "show": {}, "give": {}, "again": {},
	"document": {}, "doc": {}, "file": {}, "note": {}, "reference": {},
	"was": {}, "were": {}, "you": {}, "mentioned": {}, "earlier": {},
	"please": {}, "more": {}, "info": {}, "something": {},
}

// OrdinalNotFoundError reports an ordinal that no snapshot entry answers.
type OrdinalNotFoundError struct {
	Ordinal int
	Have    int
}

func (e *OrdinalNotFoundError) Error() string {
	return fmt.Sprintf("ordinal %d cannot be resolved against a snapshot of %d entries", e.Ordinal, e.Have)
}

// BuildSnapshot freezes the pool ordering for one generation call.
// Ordering: relevance desc, access count desc, first mentioned asc; the
// caller passes references in insertion order, which settles remaining
// ties. Numbers are assigned 1..N and never mutated afterward.
func BuildSnapshot(refs []*store.DocumentReference, round int) store.ReferenceSnapshot {
	ordered := append([]*store.DocumentReference(nil), refs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount > b.AccessCount
		}
		return a.FirstMentionedRound < b.FirstMentionedRound
	})

	entries := make([]store.SnapshotEntry, 0, len(ordered))
	for i, ref := range ordered {
		entries = append(entries, store.SnapshotEntry{
			Number:     i + 1,
			DocumentID: ref.DocumentID,
			Label:      ref.Label,
		})
	}
	return store.ReferenceSnapshot{Entries: entries, Round: round}
}

// ResolveOrdinal maps a 1-based ordinal to the document id it denoted in
// the given snapshot. The snapshot recorded during the previous assistant
// turn is the authority here; the live pool may have been reordered since.
func ResolveOrdinal(snap store.ReferenceSnapshot, ordinal int) (string, error) {
	if ordinal < 1 || snap.IsEmpty() {
		return "", &OrdinalNotFoundError{Ordinal: ordinal, Have: len(snap.Entries)}
	}
	entry, ok := snap.Lookup(ordinal)
	if !ok {
		return "", &OrdinalNotFoundError{Ordinal: ordinal, Have: len(snap.Entries)}
	}
	return entry.DocumentID, nil
}

// ParseOrdinal extracts an ordinal reference from free text: "the second
// one", "document 3", "2nd file". Returns false when the text carries no
// ordinal phrasing.
func ParseOrdinal(text string) (int, bool) {
	lower := strings.ToLower(text)

	for _, word := range wordPattern.FindAllString(lower, -1) {
		if n, ok := ordinalWords[word]; ok {
			return n, true
		}
	}
	if m := ordinalSuffixPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	if m := ordinalNounPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// ResolveByLabel is the fallback path when no ordinal or citation marker is
// present: match free text against reference labels and summaries by
// containment ("the one about invoices"). Returns matching document ids in
// the order the references were given, each at most once.
func ResolveByLabel(refs []*store.DocumentReference, freeText string) []string {
	lowerText := strings.ToLower(freeText)
	tokens := make([]string, 0)
	for _, word := range wordPattern.FindAllString(lowerText, -1) {
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		tokens = append(tokens, word)
	}

	matched := make([]string, 0)
	seen := make(map[string]struct{})
	for _, ref := range refs {
		label := strings.ToLower(ref.Label)
		summary := strings.ToLower(ref.Summary)

		hit := label != "" && strings.Contains(lowerText, label)
		if !hit {
			for _, token := range tokens {
				if strings.Contains(label, token) || strings.Contains(summary, token) {
					hit = true
					break
				}
			}
		}
		if !hit {
			continue
		}
		if _, dup := seen[ref.DocumentID]; dup {
			continue
		}
		seen[ref.DocumentID] = struct{}{}
		matched = append(matched, ref.DocumentID)
	}
	return matched
}
