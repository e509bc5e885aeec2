package embedding

// EmbeddingProvider defines the interface for generating text embeddings.
// taskType hints the intended use ("RETRIEVAL_DOCUMENT" vs
// "RETRIEVAL_QUERY"); providers that do not distinguish ignore it.
type EmbeddingProvider interface {
	Generate(text string, taskType string) (*EmbeddingResponse, error)
}

type EmbeddingResponseEmbedding struct {
	Values []float32 `json:"values"`
}

type EmbeddingResponse struct {
	Embedding EmbeddingResponseEmbedding `json:"embedding"`
}
