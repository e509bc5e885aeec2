// Package citation post-processes generated answers so every referenced
// document carries a `[label](citation:N)` marker, and reads the markers
// back out to decide which documents the answer actually cited.
//
// N is 1-based and denotes position N in the ReferenceSnapshot handed to
// the generator for this turn. No other bracket syntax is a citation.
package citation

import (
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ai-docassist-be/pkg/store"
)

var markerPattern = regexp.MustCompile(`\[([^\]]+)\]\(citation:([0-9]+)\)`)

// Enforcer operates on one turn's generated text against the exact ordered
// document list handed to the generator.
type Enforcer struct {
	entries []store.SnapshotEntry
	logger  *log.Logger
}

// NewEnforcer builds an enforcer bound to this turn's snapshot.
func NewEnforcer(snap store.ReferenceSnapshot, logger *log.Logger) *Enforcer {
	return &Enforcer{
		entries: snap.Entries,
		logger:  logger,
	}
}

type markerSpan struct {
	start int
	end   int
	label string
	num   int
}

func scanMarkers(text string) []markerSpan {
	locs := markerPattern.FindAllStringSubmatchIndex(text, -1)
	spans := make([]markerSpan, 0, len(locs))
	for _, loc := range locs {
		num, err := strconv.Atoi(text[loc[4]:loc[5]])
		if err != nil {
			continue
		}
		spans = append(spans, markerSpan{
			start: loc[0],
			end:   loc[1],
			label: text[loc[2]:loc[3]],
			num:   num,
		})
	}
	return spans
}

// Enforce guarantees at most one inserted marker per document: for each
// document not yet cited in the text, the first literal occurrence of its
// label outside existing markers is wrapped as [label](citation:N).
// Documents whose label never occurs literally are left for Detect's
// substring path. Idempotent: a second pass finds every document already
// cited and changes nothing.
func (e *Enforcer) Enforce(text string) string {
	if text == "" || len(e.entries) == 0 {
		return text
	}

	// Longest label first so a short label never claims an occurrence
	// inside a longer one.
	ordered := append([]store.SnapshotEntry(nil), e.entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Label) > len(ordered[j].Label)
	})

	spans := scanMarkers(text)
	for _, entry := range ordered {
		if entry.Label == "" || strings.ContainsAny(entry.Label, "[]") {
			// A bracketed label cannot survive the marker grammar;
			// Detect's substring path still covers the document.
			continue
		}
		if cited(spans, entry) {
			continue
		}

		pos := findOutsideSpans(text, entry.Label, spans)
		if pos < 0 {
			continue
		}

		marker := "[" + entry.Label + "](citation:" + strconv.Itoa(entry.Number) + ")"
		text = text[:pos] + marker + text[pos+len(entry.Label):]
		spans = scanMarkers(text)

		if e.logger != nil {
			e.logger.Printf("[CITATION] Inserted marker for %q (citation:%d)", entry.Label, entry.Number)
		}
	}
	return text
}

// cited reports whether the text already carries a marker for this
// document: same reference number, or a marker whose label text matches the
// document's label by substring in either direction, case-insensitive (the
// generator cited it under a stale number or a shortened label). Same match
// rule as Detect, so anything Enforce skips here Detect still credits.
func cited(spans []markerSpan, entry store.SnapshotEntry) bool {
	for _, s := range spans {
		if s.num == entry.Number {
			return true
		}
		if containsFold(s.label, entry.Label) || containsFold(entry.Label, s.label) {
			return true
		}
	}
	return false
}

// findOutsideSpans returns the first occurrence of label not overlapping
// any existing marker, or -1.
func findOutsideSpans(text, label string, spans []markerSpan) int {
	offset := 0
	for offset <= len(text)-len(label) {
		idx := strings.Index(text[offset:], label)
		if idx < 0 {
			return -1
		}
		start := offset + idx
		end := start + len(label)
		if !overlaps(start, end, spans) {
			return start
		}
		offset = start + 1
	}
	return -1
}

func overlaps(start, end int, spans []markerSpan) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// Detect extracts every citation marker and maps it back to document ids:
// by reference number first, then by label substring for markers whose
// number is stale or out of range. Each document id appears at most once,
// in snapshot order, regardless of how many markers reference it.
func (e *Enforcer) Detect(text string) []string {
	if text == "" || len(e.entries) == 0 {
		return nil
	}

	found := make(map[string]struct{})
	for _, s := range scanMarkers(text) {
		for _, entry := range e.entries {
			if entry.Number == s.num {
				found[entry.DocumentID] = struct{}{}
			}
			if containsFold(s.label, entry.Label) || containsFold(entry.Label, s.label) {
				found[entry.DocumentID] = struct{}{}
			}
		}
	}

	if len(found) == 0 {
		return nil
	}
	ids := make([]string, 0, len(found))
	for _, entry := range e.entries {
		if _, ok := found[entry.DocumentID]; ok {
			ids = append(ids, entry.DocumentID)
			delete(found, entry.DocumentID)
		}
	}
	return ids
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
