package view

import (
	"testing"

	"ai-docassist-be/pkg/store"
)

func ref(id, label string, score float64, access, firstRound int) *store.DocumentReference {
	return &store.DocumentReference{
		DocumentID:          id,
		Label:               label,
		RelevanceScore:      score,
		AccessCount:         access,
		FirstMentionedRound: firstRound,
		LastAccessedRound:   firstRound,
	}
}

func TestBuildSnapshotOrdering(t *testing.T) {
	refs := []*store.DocumentReference{
		ref("doc-a", "Alpha", 0.7, 2, 1),
		ref("doc-b", "Beta", 0.9, 1, 2),
		ref("doc-c", "Gamma", 0.7, 5, 3),
		ref("doc-d", "Delta", 0.7, 2, 0),
	}

	snap := BuildSnapshot(refs, 4)

	wantOrder := []string{"doc-b", "doc-c", "doc-d", "doc-a"}
	for i, want := range wantOrder {
		if snap.Entries[i].DocumentID != want {
			t.Errorf("Entries[%d] = %s, want %s", i, snap.Entries[i].DocumentID, want)
		}
	}
	if snap.Round != 4 {
		t.Errorf("Round = %d, want 4", snap.Round)
	}
}

// TestBuildSnapshotPermutation checks the numbers are always exactly 1..N.
func TestBuildSnapshotPermutation(t *testing.T) {
	refs := []*store.DocumentReference{
		ref("doc-a", "Alpha", 0.5, 1, 0),
		ref("doc-b", "Beta", 0.5, 1, 0),
		ref("doc-c", "Gamma", 1.0, 9, 2),
		ref("doc-d", "Delta", 0.3, 1, 1),
		ref("doc-e", "Epsilon", 0.8, 2, 4),
	}

	snap := BuildSnapshot(refs, 0)

	if len(snap.Entries) != len(refs) {
		t.Fatalf("Entries = %d, want %d", len(snap.Entries), len(refs))
	}
	seen := make(map[int]bool)
	for _, e := range snap.Entries {
		if e.Number < 1 || e.Number > len(refs) {
			t.Errorf("Number %d out of range 1..%d", e.Number, len(refs))
		}
		if seen[e.Number] {
			t.Errorf("Number %d assigned twice", e.Number)
		}
		seen[e.Number] = true
	}
	for i, e := range snap.Entries {
		if e.Number != i+1 {
			t.Errorf("Entries[%d].Number = %d, want %d", i, e.Number, i+1)
		}
	}
}

func TestBuildSnapshotTieBreakInsertionOrder(t *testing.T) {
	// Identical score, access count and round: insertion order wins.
	refs := []*store.DocumentReference{
		ref("doc-a", "Alpha", 0.5, 1, 2),
		ref("doc-b", "Beta", 0.5, 1, 2),
		ref("doc-c", "Gamma", 0.5, 1, 2),
	}

	snap := BuildSnapshot(refs, 3)
	want := []string{"doc-a", "doc-b", "doc-c"}
	for i := range want {
		if snap.Entries[i].DocumentID != want[i] {
			t.Errorf("Entries[%d] = %s, want %s", i, snap.Entries[i].DocumentID, want[i])
		}
	}
}

func TestBuildSnapshotDoesNotReorderInput(t *testing.T) {
	refs := []*store.DocumentReference{
		ref("doc-a", "Alpha", 0.4, 1, 0),
		ref("doc-b", "Beta", 0.9, 1, 1),
	}

	BuildSnapshot(refs, 2)

	if refs[0].DocumentID != "doc-a" || refs[1].DocumentID != "doc-b" {
		t.Error("BuildSnapshot mutated the caller's slice order")
	}
}

// TestResolveOrdinalStableAcrossDecay is the core correctness property: the
// snapshot recorded before decay stays authoritative even after the live
// pool reorders.
func TestResolveOrdinalStableAcrossDecay(t *testing.T) {
	a := ref("doc-a", "Alpha", 1.0, 3, 1)
	b := ref("doc-b", "Beta", 0.9, 1, 2)

	snap := BuildSnapshot([]*store.DocumentReference{a, b}, 5)
	if snap.Entries[0].DocumentID != "doc-a" {
		t.Fatalf("snapshot head = %s, want doc-a", snap.Entries[0].DocumentID)
	}

	// Round 6 decays A below B: live ordering now ranks B first.
	a.RelevanceScore = 0.6

	got, err := ResolveOrdinal(snap, 1)
	if err != nil {
		t.Fatalf("ResolveOrdinal returned error: %v", err)
	}
	if got != "doc-a" {
		t.Errorf("ResolveOrdinal(snap, 1) = %s, want doc-a despite decay", got)
	}

	second, err := ResolveOrdinal(snap, 2)
	if err != nil {
		t.Fatalf("ResolveOrdinal returned error: %v", err)
	}
	if second != "doc-b" {
		t.Errorf("ResolveOrdinal(snap, 2) = %s, want doc-b", second)
	}
}

func TestResolveOrdinalOutOfRange(t *testing.T) {
	snap := BuildSnapshot([]*store.DocumentReference{ref("doc-a", "Alpha", 1.0, 1, 0)}, 1)

	tests := []struct {
		name    string
		ordinal int
	}{
		{"zero", 0},
		{"negative", -2},
		{"beyond size", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveOrdinal(snap, tt.ordinal)
			if err == nil {
				t.Fatalf("ResolveOrdinal(%d) should fail", tt.ordinal)
			}
			if _, ok := err.(*OrdinalNotFoundError); !ok {
				t.Errorf("error type = %T, want *OrdinalNotFoundError", err)
			}
		})
	}
}

func TestResolveOrdinalEmptySnapshot(t *testing.T) {
	_, err := ResolveOrdinal(store.ReferenceSnapshot{}, 1)
	if err == nil {
		t.Fatal("ResolveOrdinal on empty snapshot should fail")
	}
}

func TestParseOrdinal(t *testing.T) {
	tests := []struct {
		text    string
		want    int
		wantHit bool
	}{
		{"tell me about the first file", 1, true},
		{"what was the second one?", 2, true},
		{"open the 3rd document", 3, true},
		{"show document 4 again", 4, true},
		{"ref 12 please", 12, true},
		{"doc #2", 2, true},
		{"the tenth source", 10, true},
		{"what is machine learning?", 0, false},
		{"I have 2 questions", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, hit := ParseOrdinal(tt.text)
			if hit != tt.wantHit {
				t.Fatalf("hit = %v, want %v", hit, tt.wantHit)
			}
			if hit && got != tt.want {
				t.Errorf("ordinal = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveByLabel(t *testing.T) {
	refs := []*store.DocumentReference{
		ref("doc-a", "Invoices_Q3.pdf", 0.9, 1, 0),
		ref("doc-b", "Meeting Agenda", 0.8, 1, 1),
		ref("doc-c", "Travel Plan", 0.7, 1, 2),
	}
	refs[1].Summary = "Topics for the quarterly planning meeting"

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"token in label", "the one about invoices", []string{"doc-a"}},
		{"full label in text", "open meeting agenda for me", []string{"doc-b"}},
		{"token in summary", "anything on quarterly planning?", []string{"doc-b"}},
		{"no match", "what is the capital of France", nil},
		{"stopwords only", "tell me about that one", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveByLabel(refs, tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("matches = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("matches[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}
