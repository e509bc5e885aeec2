package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ai-docassist-be/pkg/refcache/pool"
	"ai-docassist-be/pkg/store"
)

type stubMetadata struct {
	summaries []store.DocumentSummary
	err       error
}

func (s *stubMetadata) FetchSummaries(ctx context.Context, documentIDs []string) ([]store.DocumentSummary, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.summaries, nil
}

type stubMessages struct {
	msgs []store.Message
	err  error
}

func (s *stubMessages) History(ctx context.Context, conversationID string) ([]store.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.msgs, nil
}

func testGateway(t *testing.T, metadata MetadataSource, messages MessageSource) (*Gateway, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	g := NewGateway(rdb, metadata, messages, pool.DefaultConfig(), log.New(io.Discard, "", 0))
	return g, srv
}

func TestLoadMissingRecord(t *testing.T) {
	msgs := []store.Message{{Role: store.RoleUser, Content: "hello"}}
	g, _ := testGateway(t, &stubMetadata{}, &stubMessages{msgs: msgs})

	gotMsgs, p := g.Load(context.Background(), "conv-new")

	if p.Len() != 0 || p.CurrentRound() != 0 {
		t.Errorf("pool = %d refs round %d, want empty at round 0", p.Len(), p.CurrentRound())
	}
	if len(gotMsgs) != 1 || gotMsgs[0].Content != "hello" {
		t.Errorf("messages = %v, want the stored history", gotMsgs)
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	g, _ := testGateway(t, &stubMetadata{}, &stubMessages{})
	ctx := context.Background()

	p := pool.New(pool.DefaultConfig(), nil)
	p.Upsert("doc-a", store.DocumentSummary{Label: "Alpha.pdf", Summary: "about alpha"})
	p.Upsert("doc-b", store.DocumentSummary{Label: "Beta.md"})
	p.CompleteRound()
	p.Upsert("doc-b", store.DocumentSummary{Label: "Beta.md"})

	g.Save(ctx, "conv-1", p)
	_, loaded := g.Load(ctx, "conv-1")

	if loaded.Len() != 2 {
		t.Fatalf("loaded pool = %d refs, want 2", loaded.Len())
	}
	ids := loaded.IDs()
	if ids[0] != "doc-a" || ids[1] != "doc-b" {
		t.Errorf("insertion order = %v, want [doc-a doc-b]", ids)
	}
	b, _ := loaded.Get("doc-b")
	if b.Label != "Beta.md" || b.AccessCount != 2 || b.LastAccessedRound != 1 {
		t.Errorf("doc-b = %+v, want label/access/round preserved", b)
	}
	if loaded.CurrentRound() != 1 {
		t.Errorf("CurrentRound = %d, want 1 (max last_accessed_round)", loaded.CurrentRound())
	}
}

func TestLoadMalformedRecord(t *testing.T) {
	g, srv := testGateway(t, &stubMetadata{}, &stubMessages{})
	srv.Set("refcache:conv-bad", "{this is not json")

	_, p := g.Load(context.Background(), "conv-bad")

	if p.Len() != 0 {
		t.Errorf("pool = %d refs, want empty on malformed record", p.Len())
	}
}

func TestLoadLegacyRecordMigrates(t *testing.T) {
	meta := &stubMetadata{summaries: []store.DocumentSummary{
		{DocumentID: "doc-a", Label: "Alpha.pdf", Summary: "alpha summary"},
		{DocumentID: "doc-b", Label: "Beta.md"},
	}}
	g, srv := testGateway(t, meta, &stubMessages{})
	srv.Set("refcache:conv-old", `{"document_ids":["doc-a","doc-b","doc-gone"]}`)

	_, p := g.Load(context.Background(), "conv-old")

	// doc-gone is unknown to the store and dropped; the rest come back with
	// real metadata at initial score.
	if p.Len() != 2 {
		t.Fatalf("migrated pool = %d refs, want 2", p.Len())
	}
	a, _ := p.Get("doc-a")
	if a.Label != "Alpha.pdf" || a.RelevanceScore != 1.0 || a.AccessCount != 1 {
		t.Errorf("doc-a = %+v, want fresh reference with fetched metadata", a)
	}

	// The record must have been re-persisted in the full shape.
	raw, err := srv.Get("refcache:conv-old")
	if err != nil {
		t.Fatalf("re-persisted record missing: %v", err)
	}
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("re-persisted record malformed: %v", err)
	}
	if len(rec.DocumentPool) != 2 {
		t.Errorf("re-persisted pool = %d refs, want 2", len(rec.DocumentPool))
	}
}

func TestLoadLegacyMetadataFetchFailure(t *testing.T) {
	meta := &stubMetadata{err: errors.New("store down")}
	g, srv := testGateway(t, meta, &stubMessages{})
	srv.Set("refcache:conv-old", `{"document_ids":["doc-a","doc-b"]}`)

	_, p := g.Load(context.Background(), "conv-old")

	if p.Len() != 2 {
		t.Fatalf("pool = %d refs, want placeholders for every id", p.Len())
	}
	a, _ := p.Get("doc-a")
	if a.Label != "Document_doc-a" {
		t.Errorf("label = %q, want placeholder", a.Label)
	}
}

func TestLoadStoreUnreachable(t *testing.T) {
	msgs := []store.Message{{Role: store.RoleUser, Content: "still here"}}
	g, srv := testGateway(t, &stubMetadata{}, &stubMessages{msgs: msgs})
	srv.Close()

	gotMsgs, p := g.Load(context.Background(), "conv-1")

	if p.Len() != 0 {
		t.Errorf("pool = %d refs, want empty when the store is unreachable", p.Len())
	}
	if len(gotMsgs) != 1 {
		t.Errorf("messages = %v, want history despite the pool degradation", gotMsgs)
	}
}

func TestSaveFailureSwallowed(t *testing.T) {
	g, srv := testGateway(t, &stubMetadata{}, &stubMessages{})
	srv.Close()

	p := pool.New(pool.DefaultConfig(), nil)
	p.Upsert("doc-a", store.DocumentSummary{Label: "Alpha"})

	// Must log and return, never panic or propagate.
	g.Save(context.Background(), "conv-1", p)
}

func TestDelete(t *testing.T) {
	g, srv := testGateway(t, &stubMetadata{}, &stubMessages{})
	ctx := context.Background()

	p := pool.New(pool.DefaultConfig(), nil)
	p.Upsert("doc-a", store.DocumentSummary{Label: "Alpha"})
	g.Save(ctx, "conv-1", p)

	if !srv.Exists("refcache:conv-1") {
		t.Fatal("record not written")
	}
	g.Delete(ctx, "conv-1")
	if srv.Exists("refcache:conv-1") {
		t.Error("record still present after Delete")
	}
}
