package integration

import (
	"context"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"ai-docassist-be/pkg/embedding"
	"ai-docassist-be/pkg/llm"
	"ai-docassist-be/pkg/llm/ollama"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaBaseURL(t *testing.T) string {
	t.Helper()
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		t.Skipf("Skipping integration test: Ollama not reachable at %s: %v", baseURL, err)
	}
	resp.Body.Close()
	return baseURL
}

func TestOllamaEmbedding(t *testing.T) {
	baseURL := ollamaBaseURL(t)

	model := os.Getenv("OLLAMA_EMBEDDING_MODEL")
	provider := embedding.NewOllamaProvider(baseURL, model)

	res, err := provider.Generate("The quick brown fox jumps over the lazy dog.", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.NotEmpty(t, res.Embedding.Values)

	// The provider normalizes vectors for cosine distance in pgvector.
	var magnitude float64
	for _, v := range res.Embedding.Values {
		magnitude += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, magnitude, 0.01, "embedding should be unit length")
}

func TestOllamaChat(t *testing.T) {
	baseURL := ollamaBaseURL(t)

	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "llama3"
	}
	provider := ollama.NewOllamaProvider(baseURL, model)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reply, err := provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Answer with a single word."},
		{Role: "user", Content: "What is the capital of France?"},
	}, llm.WithTemperature(0))
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
	t.Logf("Model reply: %s", reply)
}
