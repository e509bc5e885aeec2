package memory

import (
	"testing"

	"ai-docassist-be/pkg/refcache"
	"ai-docassist-be/pkg/refcache/bundle"
	"ai-docassist-be/pkg/refcache/pool"
)

func TestRefCacheRepositoryRoundTrip(t *testing.T) {
	repo := NewRefCacheRepository()

	if _, found := repo.Get("conv-1"); found {
		t.Fatal("Get returned a cache for an unknown conversation")
	}

	c := refcache.NewCache("conv-1", pool.New(pool.DefaultConfig(), nil), nil, bundle.DefaultConfig(), nil)
	repo.Save(c)

	got, found := repo.Get("conv-1")
	if !found || got != c {
		t.Errorf("Get = (%v, %v), want the saved instance", got, found)
	}

	repo.Delete("conv-1")
	if _, found := repo.Get("conv-1"); found {
		t.Error("cache still present after Delete")
	}
}
