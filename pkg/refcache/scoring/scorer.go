// Package scoring holds the relevance arithmetic for cached document
// references. All functions are synchronous, CPU-only mutations of a single
// reference; callers decide which references to touch and when.
package scoring

import "ai-docassist-be/pkg/store"

const (
	// MinRelevanceFloor is the lowest score a reference can decay to.
	// References never fully drop to zero while they remain in the pool.
	MinRelevanceFloor = 0.3

	// MaxRelevanceScore caps every boost.
	MaxRelevanceScore = 1.0

	// InitialScore is assigned to a freshly surfaced document.
	InitialScore = 1.0

	DefaultDecayRate     = 0.1
	DefaultAccessBoost   = 0.1
	DefaultCitationBoost = 0.2
)

// IdleRounds returns how many completed rounds have passed since the
// reference was last accessed.
func IdleRounds(ref *store.DocumentReference, currentRound int) int {
	idle := currentRound - ref.LastAccessedRound
	if idle < 0 {
		return 0
	}
	return idle
}

// Decay lowers the relevance score by decayRate per idle round, clamped at
// MinRelevanceFloor. A reference accessed this round (idle == 0) is left
// untouched, which also exempts fresh inserts from same-round decay.
func Decay(ref *store.DocumentReference, currentRound int, decayRate float64) {
	idle := IdleRounds(ref, currentRound)
	if idle == 0 {
		return
	}
	score := ref.RelevanceScore - float64(idle)*decayRate
	if score < MinRelevanceFloor {
		score = MinRelevanceFloor
	}
	ref.RelevanceScore = score
}

// BoostAccess rewards a document surfaced again this turn: small score
// bump, access counter increment, freshness stamp.
func BoostAccess(ref *store.DocumentReference, currentRound int, boost float64) {
	ref.RelevanceScore = clampScore(ref.RelevanceScore + boost)
	ref.AccessCount++
	ref.LastAccessedRound = currentRound
}

// BoostCitation rewards a document the generated answer explicitly cited.
// Stronger than an access boost; does not touch the access counter. The
// pool guarantees it runs at most once per document per turn.
func BoostCitation(ref *store.DocumentReference, currentRound int, boost float64) {
	ref.RelevanceScore = clampScore(ref.RelevanceScore + boost)
	ref.LastAccessedRound = currentRound
}

func clampScore(score float64) float64 {
	if score > MaxRelevanceScore {
		return MaxRelevanceScore
	}
	if score < MinRelevanceFloor {
		return MinRelevanceFloor
	}
	return score
}
