package integration

import (
	"context"
	"log"
	"os"
	"testing"

	"ai-docassist-be/internal/repository/memory"
	"ai-docassist-be/pkg/refcache"
	"ai-docassist-be/pkg/refcache/bundle"
	"ai-docassist-be/pkg/refcache/gateway"
	"ai-docassist-be/pkg/refcache/pool"
	"ai-docassist-be/pkg/store"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRedisGatewayRoundTrip persists a conversation pool through the manager
// and loads it back from a real Redis, verifying scores and insertion order
// survive the trip.
func TestRedisGatewayRoundTrip(t *testing.T) {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}

	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not reachable: %v", err)
	}

	conversationID := "it-" + uuid.New().String()
	gw := gateway.NewGateway(rdb, nil, nil, pool.DefaultConfig(), nil)
	manager := refcache.NewManager(memory.NewRefCacheRepository(), gw, bundle.DefaultConfig(), nil)
	defer manager.Forget(ctx, conversationID)

	c := manager.LoadOrCreate(ctx, conversationID)
	c.RecordSurfaced([]string{"doc-a", "doc-b"}, []store.DocumentSummary{
		{DocumentID: "doc-a", Label: "Alpha Invoice", Summary: "Invoice for Alpha Corp."},
		{DocumentID: "doc-b", Label: "Beta Contract", Summary: "Service contract with Beta Ltd."},
	})
	snap := c.FreezeSnapshot()
	c.RecordTurn(snap, "The [Alpha Invoice](citation:1) totals 12k.", nil)
	manager.Save(ctx, c)

	// Fresh manager, forcing a load through the gateway.
	reloaded := refcache.NewManager(memory.NewRefCacheRepository(), gw, bundle.DefaultConfig(), nil).
		LoadOrCreate(ctx, conversationID)

	refs := reloaded.Pool().References()
	require.Len(t, refs, 2)

	byID := make(map[string]*store.DocumentReference)
	for _, ref := range refs {
		byID[ref.DocumentID] = ref
	}
	require.Contains(t, byID, "doc-a")
	require.Contains(t, byID, "doc-b")

	// doc-a was cited and boosted; doc-b decayed.
	assert.Greater(t, byID["doc-a"].RelevanceScore, byID["doc-b"].RelevanceScore)
	assert.Equal(t, "Alpha Invoice", byID["doc-a"].Label)
}
