package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateDocumentRequest struct {
	Title   string   `json:"title" validate:"required"`
	Content string   `json:"content"`
	Summary string   `json:"summary" validate:"max=500"`
	Tags    []string `json:"tags,omitempty" validate:"max=10"`
}

type CreateDocumentResponse struct {
	Id uuid.UUID `json:"id"`
}

type ShowDocumentResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Summary   string     `json:"summary"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type UpdateDocumentRequest struct {
	Id      uuid.UUID
	Title   string   `json:"title" validate:"required"`
	Content string   `json:"content"`
	Summary string   `json:"summary" validate:"max=500"`
	Tags    []string `json:"tags,omitempty" validate:"max=10"`
}

type UpdateDocumentResponse struct {
	Id uuid.UUID `json:"id"`
}

type ListDocumentsRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

type ListDocumentItem struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

type ListDocumentsResponse struct {
	Documents []ListDocumentItem `json:"documents"`
	Total     int64              `json:"total"`
}

type SemanticSearchResponse struct {
	Id             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"` // 0.0-1.0, cosine similarity
}

// PublishEmbedDocumentMessage rides the in-process embedding topic.
type PublishEmbedDocumentMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
}
