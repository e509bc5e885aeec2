package service

import (
	"context"
	"strings"

	"ai-docassist-be/internal/constant"
	"ai-docassist-be/internal/entity"
	"ai-docassist-be/internal/repository/specification"
	"ai-docassist-be/internal/repository/unitofwork"
	"ai-docassist-be/pkg/refcache/gateway"
	"ai-docassist-be/pkg/store"

	"github.com/google/uuid"
)

// documentMetadataSource adapts the document repository to the reference
// cache gateway's MetadataSource: batch summary fetch, unknown or deleted
// ids silently omitted.
type documentMetadataSource struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewDocumentMetadataSource(uowFactory unitofwork.RepositoryFactory) gateway.MetadataSource {
	return &documentMetadataSource{uowFactory: uowFactory}
}

func (s *documentMetadataSource) FetchSummaries(ctx context.Context, documentIDs []string) ([]store.DocumentSummary, error) {
	ids := make([]uuid.UUID, 0, len(documentIDs))
	for _, raw := range documentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue // not a document id we could ever know
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	docs, err := uow.DocumentRepository().FindAll(ctx, specification.ByIDs{IDs: ids})
	if err != nil {
		return nil, err
	}

	summaries := make([]store.DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, store.DocumentSummary{
			DocumentID:   doc.Id.String(),
			Label:        doc.Title,
			Summary:      documentSummaryText(doc),
			SemanticTags: doc.Tags,
		})
	}
	return summaries, nil
}

// documentSummaryText prefers the curated summary and falls back to the
// opening of the content. Truncation to the reference limit happens at
// insert time in the pool.
func documentSummaryText(doc *entity.Document) string {
	if doc.Summary != "" {
		return doc.Summary
	}
	return strings.TrimSpace(doc.Content)
}

// chatMessageSource adapts the chat_messages table to the gateway's
// MessageSource. Rounds are not persisted per message; they are
// reconstructed by counting completed assistant turns.
type chatMessageSource struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewChatMessageSource(uowFactory unitofwork.RepositoryFactory) gateway.MessageSource {
	return &chatMessageSource{uowFactory: uowFactory}
}

func (s *chatMessageSource) History(ctx context.Context, conversationID string) ([]store.Message, error) {
	sessionId, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	out := make([]store.Message, 0, len(messages))
	round := 0
	for _, msg := range messages {
		role := store.RoleUser
		if msg.Role == constant.ChatMessageRoleAssistant {
			role = store.RoleAssistant
		}

		var usedIds []string
		for _, id := range msg.UsedDocumentIds {
			usedIds = append(usedIds, id.String())
		}

		out = append(out, store.Message{
			Role:            role,
			Content:         msg.Chat,
			Round:           round,
			UsedDocumentIDs: usedIds,
		})

		// A completed assistant reply closes the round.
		if role == store.RoleAssistant {
			round++
		}
	}
	return out, nil
}
