package citation

import (
	"io"
	"log"
	"testing"

	"ai-docassist-be/pkg/store"
)

func snapshot(entries ...store.SnapshotEntry) store.ReferenceSnapshot {
	return store.ReferenceSnapshot{Entries: entries}
}

func entry(n int, id, label string) store.SnapshotEntry {
	return store.SnapshotEntry{Number: n, DocumentID: id, Label: label}
}

func newTestEnforcer(entries ...store.SnapshotEntry) *Enforcer {
	return NewEnforcer(snapshot(entries...), log.New(io.Discard, "", 0))
}

func TestEnforceWrapsFirstOccurrence(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-x", "Alpha Report"))

	got := e.Enforce("The Alpha Report covers Q3. Alpha Report ends there.")
	want := "The [Alpha Report](citation:1) covers Q3. Alpha Report ends there."
	if got != want {
		t.Errorf("Enforce = %q, want %q", got, want)
	}
}

func TestEnforceLongestLabelFirst(t *testing.T) {
	e := newTestEnforcer(
		entry(1, "doc-x", "Budget"),
		entry(2, "doc-y", "2024 Budget Report"),
	)

	// The long label claims the wrap intact; the nested short label then
	// counts as cited through the marker's label text, so it is not wrapped
	// a second time. Detect still credits both documents.
	got := e.Enforce("See the 2024 Budget Report and the Budget.")
	want := "See the [2024 Budget Report](citation:2) and the Budget."
	if got != want {
		t.Errorf("Enforce = %q, want %q", got, want)
	}

	ids := e.Detect(got)
	if len(ids) != 2 || ids[0] != "doc-x" || ids[1] != "doc-y" {
		t.Errorf("Detect = %v, want [doc-x doc-y]", ids)
	}
}

func TestEnforceRecognizesShortenedLabelMarker(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-q", "Q3 Financial Report.pdf"))

	// The generator cited the document under a shortened label and a stale
	// number. That marker already covers the document, so the later literal
	// occurrence of the full label must not be wrapped again.
	in := "Per [Q3 Financial Report](citation:7), margins fell. The Q3 Financial Report.pdf has details."
	if got := e.Enforce(in); got != in {
		t.Errorf("Enforce = %q, want unchanged", got)
	}
}

func TestEnforceLeavesExistingMarkersAlone(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-x", "Alpha"))

	// Already marked under a different number: left untouched, no second
	// marker inserted for the same label.
	in := "According to [Alpha](citation:3), yes."
	if got := e.Enforce(in); got != in {
		t.Errorf("Enforce = %q, want unchanged", got)
	}
}

func TestEnforceIdempotent(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		entries []store.SnapshotEntry
	}{
		{
			name: "plain labels",
			text: "Alpha and Beta disagree. Alpha wins.",
			entries: []store.SnapshotEntry{
				entry(1, "doc-x", "Alpha"),
				entry(2, "doc-y", "Beta"),
			},
		},
		{
			name: "pre-existing marker",
			text: "See [Alpha](citation:1) and Beta, then Alpha again.",
			entries: []store.SnapshotEntry{
				entry(1, "doc-x", "Alpha"),
				entry(2, "doc-y", "Beta"),
			},
		},
		{
			name: "nested labels",
			text: "The 2024 Budget Report extends the Budget.",
			entries: []store.SnapshotEntry{
				entry(1, "doc-x", "Budget"),
				entry(2, "doc-y", "2024 Budget Report"),
			},
		},
		{
			name: "label absent",
			text: "Nothing relevant here.",
			entries: []store.SnapshotEntry{
				entry(1, "doc-x", "Alpha"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnforcer(snapshot(tt.entries...), log.New(io.Discard, "", 0))

			once := e.Enforce(tt.text)
			twice := e.Enforce(once)
			if once != twice {
				t.Errorf("not idempotent:\n once = %q\ntwice = %q", once, twice)
			}
		})
	}
}

func TestEnforceEmptyInputs(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-x", "Alpha"))
	if got := e.Enforce(""); got != "" {
		t.Errorf("Enforce(\"\") = %q, want \"\"", got)
	}

	empty := NewEnforcer(store.ReferenceSnapshot{}, log.New(io.Discard, "", 0))
	if got := empty.Enforce("Alpha"); got != "Alpha" {
		t.Errorf("Enforce with no entries = %q, want unchanged", got)
	}
}

func TestEnforceSkipsBracketedLabel(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-x", "Notes [draft]"))

	in := "The Notes [draft] file is old."
	if got := e.Enforce(in); got != in {
		t.Errorf("Enforce = %q, want unchanged for unmarkable label", got)
	}
}

func TestDetectByNumber(t *testing.T) {
	e := newTestEnforcer(
		entry(1, "doc-x", "Alpha"),
		entry(2, "doc-y", "Beta"),
	)

	got := e.Detect("As [Alpha](citation:1) says.")
	if len(got) != 1 || got[0] != "doc-x" {
		t.Errorf("Detect = %v, want [doc-x]", got)
	}
}

// TestDetectDeduplicates backs the single-citation-boost rule: three
// markers for the same document yield its id exactly once.
func TestDetectDeduplicates(t *testing.T) {
	e := newTestEnforcer(
		entry(1, "doc-x", "Alpha"),
		entry(2, "doc-y", "Beta"),
	)

	got := e.Detect("[Beta](citation:2) then [Beta](citation:2) then [Beta](citation:2).")
	if len(got) != 1 || got[0] != "doc-y" {
		t.Errorf("Detect = %v, want [doc-y] exactly once", got)
	}
}

func TestDetectLabelFallback(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-x", "Invoices"))

	// Stale number but a decorated label still identifies the document.
	got := e.Detect("Refer to [Quarterly Invoices](citation:9).")
	if len(got) != 1 || got[0] != "doc-x" {
		t.Errorf("Detect = %v, want [doc-x]", got)
	}
}

func TestDetectUnionOfNumberAndLabel(t *testing.T) {
	e := newTestEnforcer(
		entry(1, "doc-x", "Alpha"),
		entry(2, "doc-y", "Beta"),
	)

	// Number maps to doc-y, label text maps to doc-x: both count.
	got := e.Detect("Mixed up: [Alpha](citation:2).")
	if len(got) != 2 {
		t.Fatalf("Detect = %v, want two ids", got)
	}
	if got[0] != "doc-x" || got[1] != "doc-y" {
		t.Errorf("Detect = %v, want [doc-x doc-y] in snapshot order", got)
	}
}

func TestDetectIgnoresOtherBracketSyntax(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-x", "Alpha"))

	got := e.Detect("A [link](http://example.com) and [note](page:3) only.")
	if len(got) != 0 {
		t.Errorf("Detect = %v, want none", got)
	}
}

func TestDetectOutOfRangeNumberIgnored(t *testing.T) {
	e := newTestEnforcer(entry(1, "doc-x", "Alpha"))

	got := e.Detect("Ghost [Unknown Thing](citation:5).")
	if len(got) != 0 {
		t.Errorf("Detect = %v, want none", got)
	}
}

func TestEnforceThenDetect(t *testing.T) {
	e := newTestEnforcer(
		entry(1, "doc-x", "Travel Plan"),
		entry(2, "doc-y", "Meeting Agenda"),
	)

	text := e.Enforce("The Travel Plan follows the Meeting Agenda.")
	got := e.Detect(text)

	if len(got) != 2 {
		t.Fatalf("Detect after Enforce = %v, want both ids", got)
	}
	if got[0] != "doc-x" || got[1] != "doc-y" {
		t.Errorf("Detect = %v, want [doc-x doc-y]", got)
	}
}
