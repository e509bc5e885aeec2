package refcache

import (
	"context"
	"io"
	"log"
	"math"
	"testing"

	"ai-docassist-be/pkg/refcache/bundle"
	"ai-docassist-be/pkg/refcache/gateway"
	"ai-docassist-be/pkg/refcache/pool"
	"ai-docassist-be/pkg/refcache/view"
	"ai-docassist-be/pkg/store"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestCache(conversationID string) *Cache {
	logger := log.New(io.Discard, "", 0)
	return NewCache(conversationID, pool.New(pool.DefaultConfig(), logger), nil, bundle.DefaultConfig(), logger)
}

// TestTwoTurnScenario walks a conversation end to end: two documents
// surface, the answer cites one, the cited one holds full relevance while
// the unused one decays, and "the second one" in the follow-up still means
// what the previous answer numbered second.
func TestTwoTurnScenario(t *testing.T) {
	c := newTestCache("conv-1")

	c.RecordSurfaced([]string{"doc-x", "doc-y"}, []store.DocumentSummary{
		{DocumentID: "doc-x", Label: "Alpha Invoice", Summary: "invoice for Q3"},
		{DocumentID: "doc-y", Label: "Beta Contract", Summary: "supplier contract"},
	})
	c.AppendMessage(store.RoleUser, "What do the invoice and contract say?", nil)

	snap := c.FreezeSnapshot()
	if len(snap.Entries) != 2 || snap.Entries[0].DocumentID != "doc-x" || snap.Entries[1].DocumentID != "doc-y" {
		t.Fatalf("snapshot = %+v, want doc-x first, doc-y second", snap.Entries)
	}

	res := c.RecordTurn(snap, "The Alpha Invoice totals 12k EUR.", []string{"doc-x"})

	if res.Round != 1 {
		t.Errorf("Round = %d, want 1", res.Round)
	}
	want := "The [Alpha Invoice](citation:1) totals 12k EUR."
	if res.Text != want {
		t.Errorf("Text = %q, want %q", res.Text, want)
	}
	if len(res.CitedDocumentIDs) != 1 || res.CitedDocumentIDs[0] != "doc-x" {
		t.Errorf("CitedDocumentIDs = %v, want [doc-x]", res.CitedDocumentIDs)
	}

	x, _ := c.Pool().Get("doc-x")
	y, _ := c.Pool().Get("doc-y")
	if !almostEqual(x.RelevanceScore, 1.0) {
		t.Errorf("doc-x score = %v, want 1.0 (boosted, capped)", x.RelevanceScore)
	}
	if !almostEqual(y.RelevanceScore, 0.9) {
		t.Errorf("doc-y score = %v, want 0.9 (decayed once)", y.RelevanceScore)
	}

	c.AppendMessage(store.RoleAssistant, res.Text, res.CitedDocumentIDs)

	// Turn 2: the follow-up ordinal resolves through the recorded snapshot,
	// not the live (now decayed) pool.
	n, ok := view.ParseOrdinal("tell me about the second one")
	if !ok || n != 2 {
		t.Fatalf("ParseOrdinal = (%d, %v), want (2, true)", n, ok)
	}
	r, ok := c.ResolveOrdinal(n)
	if !ok || r.DocumentID != "doc-y" || r.BestEffort {
		t.Errorf("ResolveOrdinal(2) = (%+v, %v), want doc-y from the recorded snapshot", r, ok)
	}

	// The classifier view keeps the recorded numbering.
	cls := c.ClassificationContext()
	if cls.Documents[0].Number != 1 || cls.Documents[0].DocumentID != "doc-x" {
		t.Errorf("classification row 0 = %+v, want (1, doc-x)", cls.Documents[0])
	}
	if cls.Documents[1].Number != 2 || cls.Documents[1].DocumentID != "doc-y" {
		t.Errorf("classification row 1 = %+v, want (2, doc-y)", cls.Documents[1])
	}
}

func TestRecordTurnBoostSplit(t *testing.T) {
	c := newTestCache("conv-1")
	c.RecordSurfaced([]string{"doc-x", "doc-z", "doc-w"}, []store.DocumentSummary{
		{DocumentID: "doc-x", Label: "Alpha"},
		{DocumentID: "doc-z", Label: "Zeta"},
		{DocumentID: "doc-w", Label: "Omega"},
	})

	snap := c.FreezeSnapshot()
	c.RecordTurn(snap, "See the Alpha file.", []string{"doc-z"})

	snap2 := c.FreezeSnapshot()
	c.RecordTurn(snap2, "Nothing new to add.", []string{"doc-z"})

	z, _ := c.Pool().Get("doc-z")
	x, _ := c.Pool().Get("doc-x")
	w, _ := c.Pool().Get("doc-w")

	// Used but never cited: access boosts each turn, counter moves.
	if !almostEqual(z.RelevanceScore, 1.0) || z.AccessCount != 3 || z.LastAccessedRound != 2 {
		t.Errorf("doc-z = score %v access %d round %d, want 1.0 / 3 / 2", z.RelevanceScore, z.AccessCount, z.LastAccessedRound)
	}
	// Cited in turn 1 only: one idle round since.
	if !almostEqual(x.RelevanceScore, 0.9) {
		t.Errorf("doc-x score = %v, want 0.9", x.RelevanceScore)
	}
	// Never used: compounding idle decay.
	if !almostEqual(w.RelevanceScore, 0.7) {
		t.Errorf("doc-w score = %v, want 0.7", w.RelevanceScore)
	}
}

func TestResolveOrdinalBestEffortFallback(t *testing.T) {
	// A restarted process has a pool but no recorded snapshot.
	c := newTestCache("conv-1")
	c.RecordSurfaced([]string{"doc-a", "doc-b"}, []store.DocumentSummary{
		{DocumentID: "doc-a", Label: "Alpha"},
		{DocumentID: "doc-b", Label: "Beta"},
	})
	a, _ := c.Pool().Get("doc-a")
	a.RelevanceScore = 0.5

	r, ok := c.ResolveOrdinal(1)
	if !ok || r.DocumentID != "doc-b" {
		t.Errorf("ResolveOrdinal(1) = (%+v, %v), want doc-b from live ordering", r, ok)
	}
	if !r.BestEffort {
		t.Error("BestEffort = false, want true when no snapshot was recorded")
	}

	if _, ok := c.ResolveOrdinal(7); ok {
		t.Error("ResolveOrdinal(7) resolved against a two-document pool")
	}
}

type mapRegistry struct {
	caches map[string]*Cache
}

func newMapRegistry() *mapRegistry {
	return &mapRegistry{caches: make(map[string]*Cache)}
}

func (r *mapRegistry) Get(conversationID string) (*Cache, bool) {
	c, ok := r.caches[conversationID]
	return c, ok
}

func (r *mapRegistry) Save(c *Cache) {
	r.caches[c.ConversationID()] = c
}

func (r *mapRegistry) Delete(conversationID string) {
	delete(r.caches, conversationID)
}

func TestManagerPerConversationInstances(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewGateway(nil, nil, nil, pool.DefaultConfig(), nil)
	m := NewManager(newMapRegistry(), gw, bundle.DefaultConfig(), nil)

	c1 := m.LoadOrCreate(ctx, "conv-1")
	c1.RecordSurfaced([]string{"doc-a"}, nil)

	if again := m.LoadOrCreate(ctx, "conv-1"); again != c1 {
		t.Error("LoadOrCreate built a second instance for a live conversation")
	}

	other := m.LoadOrCreate(ctx, "conv-2")
	if other == c1 {
		t.Fatal("conversations share a cache instance")
	}
	if other.Pool().Len() != 0 {
		t.Errorf("conv-2 pool = %d refs, want its own empty pool", other.Pool().Len())
	}

	m.Forget(ctx, "conv-1")
	if fresh := m.LoadOrCreate(ctx, "conv-1"); fresh == c1 || fresh.Pool().Len() != 0 {
		t.Error("Forget did not drop the live instance")
	}
}
