package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sort"
	"time"

	"ai-docassist-be/pkg/store"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// cacheRecord mirrors the persisted reference-cache shape.
type cacheRecord struct {
	DocumentIDs  []string                           `json:"document_ids"`
	DocumentPool map[string]store.DocumentReference `json:"document_pool"`
	UpdatedAt    time.Time                          `json:"updated_at"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	if len(os.Args) < 2 {
		color.Red("Usage: inspectcache <conversation_id>")
		os.Exit(1)
	}
	conversationID := os.Args[1]

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	rdb := redis.NewClient(opt)

	ctx := context.Background()
	key := "refcache:" + conversationID

	raw, err := rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		color.Yellow("No cache record at %s", key)
		return
	}
	if err != nil {
		color.Red("Redis error: %v", err)
		os.Exit(1)
	}

	var rec cacheRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		color.Red("Record at %s is not valid JSON: %v", key, err)
		os.Exit(1)
	}

	color.Cyan("🔎 Reference cache for conversation %s", conversationID)
	color.White("Updated at: %s", rec.UpdatedAt.Format(time.RFC3339))
	color.White("Pool size:  %d (insertion order carries %d ids)", len(rec.DocumentPool), len(rec.DocumentIDs))

	refs := make([]store.DocumentReference, 0, len(rec.DocumentPool))
	for _, ref := range rec.DocumentPool {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].RelevanceScore > refs[j].RelevanceScore
	})

	for i, ref := range refs {
		header := color.New(color.FgGreen)
		if ref.RelevanceScore < 0.5 {
			header = color.New(color.FgYellow)
		}
		header.Printf("\n%d. %s (%s)\n", i+1, ref.Label, ref.DocumentID)
		color.White("   score=%.2f access=%d first_round=%d last_round=%d",
			ref.RelevanceScore, ref.AccessCount, ref.FirstMentionedRound, ref.LastAccessedRound)
		if ref.Summary != "" {
			color.White("   %s", ref.Summary)
		}
		if len(ref.SemanticTags) > 0 {
			color.White("   tags: %v", ref.SemanticTags)
		}
	}
}
