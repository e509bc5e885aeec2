package scoring

import (
	"testing"

	"ai-docassist-be/pkg/store"
)

func newRef(score float64, lastAccessed int) *store.DocumentReference {
	return &store.DocumentReference{
		DocumentID:        "doc-1",
		Label:             "Doc 1",
		RelevanceScore:    score,
		AccessCount:       1,
		LastAccessedRound: lastAccessed,
	}
}

func TestDecay(t *testing.T) {
	tests := []struct {
		name         string
		score        float64
		lastAccessed int
		currentRound int
		decayRate    float64
		wantScore    float64
	}{
		{
			name:         "one idle round",
			score:        1.0,
			lastAccessed: 1,
			currentRound: 2,
			decayRate:    0.1,
			wantScore:    0.9,
		},
		{
			name:         "three idle rounds",
			score:        1.0,
			lastAccessed: 2,
			currentRound: 5,
			decayRate:    0.1,
			wantScore:    0.7,
		},
		{
			name:         "clamped at floor",
			score:        0.4,
			lastAccessed: 0,
			currentRound: 9,
			decayRate:    0.1,
			wantScore:    MinRelevanceFloor,
		},
		{
			name:         "no-op when accessed this round",
			score:        0.8,
			lastAccessed: 4,
			currentRound: 4,
			decayRate:    0.1,
			wantScore:    0.8,
		},
		{
			name:         "already at floor stays at floor",
			score:        MinRelevanceFloor,
			lastAccessed: 1,
			currentRound: 7,
			decayRate:    0.1,
			wantScore:    MinRelevanceFloor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := newRef(tt.score, tt.lastAccessed)
			Decay(ref, tt.currentRound, tt.decayRate)

			if !almostEqual(ref.RelevanceScore, tt.wantScore) {
				t.Errorf("RelevanceScore = %v, want %v", ref.RelevanceScore, tt.wantScore)
			}
		})
	}
}

func TestBoostAccess(t *testing.T) {
	ref := newRef(0.5, 1)
	BoostAccess(ref, 3, DefaultAccessBoost)

	if !almostEqual(ref.RelevanceScore, 0.6) {
		t.Errorf("RelevanceScore = %v, want 0.6", ref.RelevanceScore)
	}
	if ref.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", ref.AccessCount)
	}
	if ref.LastAccessedRound != 3 {
		t.Errorf("LastAccessedRound = %d, want 3", ref.LastAccessedRound)
	}
}

func TestBoostAccessCapped(t *testing.T) {
	ref := newRef(0.95, 1)
	BoostAccess(ref, 2, DefaultAccessBoost)

	if ref.RelevanceScore != MaxRelevanceScore {
		t.Errorf("RelevanceScore = %v, want %v", ref.RelevanceScore, MaxRelevanceScore)
	}
}

func TestBoostCitationLeavesAccessCount(t *testing.T) {
	ref := newRef(0.7, 2)
	BoostCitation(ref, 4, DefaultCitationBoost)

	if !almostEqual(ref.RelevanceScore, 0.9) {
		t.Errorf("RelevanceScore = %v, want 0.9", ref.RelevanceScore)
	}
	if ref.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1 (citation boost must not bump it)", ref.AccessCount)
	}
	if ref.LastAccessedRound != 4 {
		t.Errorf("LastAccessedRound = %d, want 4", ref.LastAccessedRound)
	}
}

// TestScoreAlwaysBounded drives a reference through a long arbitrary mix of
// decays and boosts and checks the score never leaves [0.3, 1.0].
func TestScoreAlwaysBounded(t *testing.T) {
	ref := newRef(InitialScore, 0)

	ops := []struct {
		kind  string
		round int
	}{
		{"decay", 1}, {"decay", 2}, {"access", 3}, {"decay", 5},
		{"citation", 6}, {"citation", 7}, {"decay", 12}, {"decay", 20},
		{"access", 21}, {"access", 21}, {"citation", 22}, {"decay", 40},
		{"decay", 41}, {"decay", 55}, {"access", 56}, {"citation", 56},
	}

	for i, op := range ops {
		switch op.kind {
		case "decay":
			Decay(ref, op.round, DefaultDecayRate)
		case "access":
			BoostAccess(ref, op.round, DefaultAccessBoost)
		case "citation":
			BoostCitation(ref, op.round, DefaultCitationBoost)
		}

		if ref.RelevanceScore < MinRelevanceFloor || ref.RelevanceScore > MaxRelevanceScore {
			t.Fatalf("op %d (%s at round %d): score %v out of bounds", i, op.kind, op.round, ref.RelevanceScore)
		}
	}

	if ref.AccessCount < 1 {
		t.Errorf("AccessCount = %d, want >= 1", ref.AccessCount)
	}
}

func TestIdleRounds(t *testing.T) {
	tests := []struct {
		name         string
		lastAccessed int
		currentRound int
		want         int
	}{
		{"fresh", 3, 3, 0},
		{"two rounds idle", 3, 5, 2},
		{"future stamp clamps to zero", 5, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := newRef(1.0, tt.lastAccessed)
			if got := IdleRounds(ref, tt.currentRound); got != tt.want {
				t.Errorf("IdleRounds = %d, want %d", got, tt.want)
			}
		})
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
