package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-docassist-be/internal/constant"
	"ai-docassist-be/internal/dto"
	"ai-docassist-be/internal/entity"
	"ai-docassist-be/internal/repository/specification"
	"ai-docassist-be/internal/repository/unitofwork"
	"ai-docassist-be/pkg/embedding"
	"ai-docassist-be/pkg/events"
	"ai-docassist-be/pkg/llm"
	pktNats "ai-docassist-be/pkg/nats"
	"ai-docassist-be/pkg/refcache"
	"ai-docassist-be/pkg/refcache/bundle"
	"ai-docassist-be/pkg/refcache/gateway"
	"ai-docassist-be/pkg/refcache/view"
	"ai-docassist-be/pkg/store"
	"ai-docassist-be/pkg/utils"

	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("chat session not found")

type IChatService interface {
	CreateSession(ctx context.Context, userId uuid.UUID) (*dto.CreateSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error)
	GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error)
	SendChat(ctx context.Context, userId uuid.UUID, req *dto.SendChatRequest) (*dto.SendChatResponse, error)
	DeleteSession(ctx context.Context, userId uuid.UUID, req *dto.DeleteSessionRequest) error
}

type chatService struct {
	uowFactory        unitofwork.RepositoryFactory
	cacheManager      *refcache.Manager
	metadata          gateway.MetadataSource
	embeddingProvider embedding.EmbeddingProvider
	llmProvider       llm.LLMProvider
	eventPublisher    *pktNats.Publisher
	pipelineLogger    *log.Logger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	cacheManager *refcache.Manager,
	metadata gateway.MetadataSource,
	embeddingProvider embedding.EmbeddingProvider,
	llmProvider llm.LLMProvider,
	eventPublisher *pktNats.Publisher,
	pipelineLogger *log.Logger,
) IChatService {
	return &chatService{
		uowFactory:        uowFactory,
		cacheManager:      cacheManager,
		metadata:          metadata,
		embeddingProvider: embeddingProvider,
		llmProvider:       llmProvider,
		eventPublisher:    eventPublisher,
		pipelineLogger:    pipelineLogger,
	}
}

func (c *chatService) CreateSession(ctx context.Context, userId uuid.UUID) (*dto.CreateSessionResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	session := entity.ChatSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     constant.DefaultSessionTitle,
		CreatedAt: time.Now(),
	}
	if err := uow.ChatSessionRepository().Create(ctx, &session); err != nil {
		return nil, err
	}
	return &dto.CreateSessionResponse{Id: session.Id}, nil
}

func (c *chatService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllSessionsResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	sessions, err := uow.ChatSessionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	response := make([]*dto.GetAllSessionsResponse, 0, len(sessions))
	for _, session := range sessions {
		response = append(response, &dto.GetAllSessionsResponse{
			Id:        session.Id,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.UpdatedAt,
		})
	}
	return response, nil
}

func (c *chatService) GetChatHistory(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) ([]*dto.GetChatHistoryResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	if _, err := c.ownedSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	messages, err := uow.ChatMessageRepository().FindAll(ctx,
		specification.ByChatSessionID{ChatSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}

	titles, err := c.documentTitles(ctx, uow, messages)
	if err != nil {
		return nil, err
	}

	response := make([]*dto.GetChatHistoryResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, &dto.GetChatHistoryResponse{
			Id:        msg.Id,
			Role:      msg.Role,
			Chat:      msg.Chat,
			CreatedAt: msg.CreatedAt,
			Citations: citationsFor(msg.UsedDocumentIds, titles),
		})
	}
	return response, nil
}

// SendChat runs one conversation turn: classify how the message relates to
// the cached documents, resolve or retrieve the documents it needs, generate
// the answer against a frozen numbered snapshot, then record the turn so the
// next ordinal back-reference resolves against what the user just saw.
func (c *chatService) SendChat(ctx context.Context, userId uuid.UUID, req *dto.SendChatRequest) (*dto.SendChatResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	session, err := c.ownedSession(ctx, uow, userId, req.ChatSessionId)
	if err != nil {
		return nil, err
	}

	cache := c.cacheManager.LoadOrCreate(ctx, req.ChatSessionId.String())

	intent, ordinal := c.classifyIntent(ctx, cache, req.Chat)
	c.pipelineLogger.Printf("[INTENT] session=%s intent=%s ordinal=%d", req.ChatSessionId, intent, ordinal)

	var (
		surfacedIds []string
		directIds   []string
		bestEffort  bool
		clarify     bool
	)

	switch intent {
	case constant.IntentOrdinalReference:
		res, ok := cache.ResolveOrdinal(ordinal)
		if !ok {
			c.pipelineLogger.Printf("[INTENT] session=%s ordinal %d unresolved, asking for clarification", req.ChatSessionId, ordinal)
			intent = constant.IntentClarify
			clarify = true
			break
		}
		surfacedIds = []string{res.DocumentID}
		directIds = surfacedIds
		bestEffort = res.BestEffort
	case constant.IntentLabelReference:
		matches := cache.ResolveByText(req.Chat)
		if len(matches) == 0 {
			intent = constant.IntentClarify
			clarify = true
			break
		}
		surfacedIds = matches
		directIds = matches
	case constant.IntentClarify:
		clarify = true
	default:
		surfacedIds, err = c.retrieveCandidates(ctx, cache, userId, req.Chat)
		if err != nil {
			return nil, err
		}
	}

	if len(surfacedIds) > 0 {
		summaries, err := c.metadata.FetchSummaries(ctx, surfacedIds)
		if err != nil {
			return nil, err
		}
		cache.RecordSurfaced(surfacedIds, summaries)
	}

	snap := cache.FreezeSnapshot()

	var reply string
	if clarify {
		reply = c.clarificationReply(ctx, cache, req.Chat)
	} else {
		reply, err = c.generateAnswer(ctx, cache.AnswerContext(snap), req.Chat)
		if err != nil {
			return nil, err
		}
	}

	cache.AppendMessage(store.RoleUser, req.Chat, nil)
	result := cache.RecordTurn(snap, reply, directIds)
	cache.AppendMessage(store.RoleAssistant, result.Text, result.CitedDocumentIDs)

	usedIds := mergeDocumentIds(result.CitedDocumentIDs, directIds)

	sent, replyMsg, err := c.persistTurn(ctx, uow, session, req.Chat, result.Text, usedIds)
	if err != nil {
		return nil, err
	}

	c.cacheManager.Save(ctx, cache)

	c.publishEvent(ctx, "CHAT_TURN_COMPLETED", map[string]interface{}{
		"chat_session_id": session.Id,
		"user_id":         userId,
		"round":           result.Round,
		"intent":          intent,
		"cited_documents": len(result.CitedDocumentIDs),
	})

	titles := snapshotTitles(snap)
	return &dto.SendChatResponse{
		ChatSessionId:    session.Id,
		ChatSessionTitle: session.Title,
		Sent: &dto.SendChatResponseChat{
			Id:        sent.Id,
			Chat:      sent.Chat,
			Role:      sent.Role,
			CreatedAt: sent.CreatedAt,
		},
		Reply: &dto.SendChatResponseChat{
			Id:        replyMsg.Id,
			Chat:      replyMsg.Chat,
			Role:      replyMsg.Role,
			CreatedAt: replyMsg.CreatedAt,
			Citations: citationsFor(replyMsg.UsedDocumentIds, titles),
		},
		Intent:     intent,
		BestEffort: bestEffort,
	}, nil
}

func (c *chatService) DeleteSession(ctx context.Context, userId uuid.UUID, req *dto.DeleteSessionRequest) error {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	if _, err := c.ownedSession(ctx, uow, userId, req.ChatSessionId); err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().DeleteByChatSessionId(ctx, req.ChatSessionId); err != nil {
		return err
	}
	if err := uow.ChatSessionRepository().Delete(ctx, req.ChatSessionId); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	// Drop the cached document pool along with the conversation.
	c.cacheManager.Forget(ctx, req.ChatSessionId.String())

	c.publishEvent(ctx, "CHAT_SESSION_DELETED", map[string]interface{}{
		"chat_session_id": req.ChatSessionId,
		"user_id":         userId,
	})
	return nil
}

func (c *chatService) ownedSession(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, sessionId uuid.UUID) (*entity.ChatSession, error) {
	session, err := uow.ChatSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// classifyIntent decides how the message relates to the cached documents.
// An explicit ordinal in the text wins outright; otherwise the model
// classifies against the numbered view, with plain text matching as the
// fallback when the model is unavailable or answers off-format.
func (c *chatService) classifyIntent(ctx context.Context, cache *refcache.Cache, text string) (string, int) {
	if n, ok := view.ParseOrdinal(text); ok {
		return constant.IntentOrdinalReference, n
	}
	if len(cache.Pool().References()) == 0 {
		return constant.IntentNewSearch, 0
	}

	clsCtx := cache.ClassificationContext()
	raw, err := c.llmProvider.Generate(ctx, buildClassifyPrompt(clsCtx, text), llm.WithTemperature(0))
	if err == nil {
		switch strings.ToUpper(strings.TrimSpace(raw)) {
		case "ORDINAL", "LABEL":
			// The model saw a reference the regex missed; resolve it by text.
			if len(cache.ResolveByText(text)) > 0 {
				return constant.IntentLabelReference, 0
			}
			return constant.IntentClarify, 0
		case "NEW_SEARCH":
			return constant.IntentNewSearch, 0
		case "CLARIFY":
			return constant.IntentClarify, 0
		}
		c.pipelineLogger.Printf("[INTENT] Classifier answered off-format (%q), falling back to text matching", strings.TrimSpace(raw))
	} else {
		c.pipelineLogger.Printf("[INTENT] Classifier unavailable: %v", err)
	}

	if len(cache.ResolveByText(text)) > 0 {
		return constant.IntentLabelReference, 0
	}
	return constant.IntentNewSearch, 0
}

// retrieveCandidates picks the documents for a fresh question. When the last
// assistant turn cited documents still pooled, the ranked cache candidates
// are reused; otherwise the question is embedded and matched against the
// user's document chunks.
func (c *chatService) retrieveCandidates(ctx context.Context, cache *refcache.Cache, userId uuid.UUID, question string) ([]string, error) {
	retrieval := cache.SearchContext()
	if retrieval.PreferCache && len(retrieval.DocumentIDs) > 0 {
		c.pipelineLogger.Printf("[SEARCH] Serving %d candidates from cache for %s", len(retrieval.DocumentIDs), cache.ConversationID())
		return retrieval.DocumentIDs, nil
	}

	embeddingRes, err := c.embeddingProvider.Generate(question, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.DocumentEmbeddingRepository().SearchSimilarWithScore(
		ctx, embeddingRes.Embedding.Values, 10, userId, SemanticSearchThreshold,
	)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(scored))
	seen := make(map[uuid.UUID]struct{}, len(scored))
	for _, sr := range scored {
		docId := sr.Embedding.DocumentId
		if _, dup := seen[docId]; dup {
			continue
		}
		seen[docId] = struct{}{}
		ids = append(ids, docId.String())
	}
	c.pipelineLogger.Printf("[SEARCH] Semantic search surfaced %d documents for %s", len(ids), cache.ConversationID())
	return ids, nil
}

func buildClassifyPrompt(clsCtx *bundle.ClassificationContext, text string) string {
	var sb strings.Builder
	sb.WriteString(constant.IntentClassifyPrompt)
	sb.WriteString("\n\nDocuments:\n")
	for _, doc := range clsCtx.Documents {
		fmt.Fprintf(&sb, "%d. %s", doc.Number, doc.Label)
		if len(doc.SemanticTags) > 0 {
			fmt.Fprintf(&sb, " (tags: %s)", strings.Join(doc.SemanticTags, ", "))
		}
		sb.WriteString("\n")
	}
	if len(clsCtx.Messages) > 0 {
		sb.WriteString("\nRecent messages:\n")
		for _, msg := range clsCtx.Messages {
			role := "User"
			if msg.Role == store.RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, utils.Truncate(msg.Content, 300))
		}
	}
	sb.WriteString("\nLatest message: ")
	sb.WriteString(text)
	return sb.String()
}

func (c *chatService) generateAnswer(ctx context.Context, answerCtx *bundle.AnswerContext, question string) (string, error) {
	var sb strings.Builder
	if len(answerCtx.References) > 0 {
		sb.WriteString("Documents:\n")
		for i, ref := range answerCtx.References {
			fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, ref.Label, ref.Summary)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Documents: none available.\n\n")
	}
	if answerCtx.HistoryText != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(answerCtx.HistoryText)
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)

	history := []llm.Message{
		{Role: "system", Content: constant.AnswerSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
	return c.llmProvider.Chat(ctx, history)
}

// clarificationReply asks the model for one clarifying question over the
// full untruncated view. The canned fallback covers model failures.
func (c *chatService) clarificationReply(ctx context.Context, cache *refcache.Cache, text string) string {
	clarCtx := cache.ClarificationContext()

	var sb strings.Builder
	sb.WriteString("The user's message could not be matched to a document. Ask ONE short clarifying question that helps them identify which document they mean. Documents on hand:\n")
	for _, doc := range clarCtx.Documents {
		fmt.Fprintf(&sb, "- %s: %s\n", doc.Label, utils.Truncate(doc.Summary, 120))
	}
	sb.WriteString("\nUser message: ")
	sb.WriteString(text)

	reply, err := c.llmProvider.Generate(ctx, sb.String(), llm.WithTemperature(0.3))
	if err != nil || strings.TrimSpace(reply) == "" {
		return constant.ClarifyFallbackReply
	}
	return reply
}

// persistTurn stores the user and assistant messages in one transaction and
// titles the session after its first message.
func (c *chatService) persistTurn(ctx context.Context, uow unitofwork.UnitOfWork, session *entity.ChatSession, userText, replyText string, usedIds []uuid.UUID) (*entity.ChatMessage, *entity.ChatMessage, error) {
	now := time.Now()
	sent := &entity.ChatMessage{
		Id:            uuid.New(),
		Chat:          userText,
		Role:          constant.ChatMessageRoleUser,
		ChatSessionId: session.Id,
		CreatedAt:     now,
	}
	reply := &entity.ChatMessage{
		Id:              uuid.New(),
		Chat:            replyText,
		Role:            constant.ChatMessageRoleAssistant,
		ChatSessionId:   session.Id,
		UsedDocumentIds: usedIds,
		CreatedAt:       now.Add(time.Millisecond),
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, nil, err
	}
	defer uow.Rollback()

	if err := uow.ChatMessageRepository().Create(ctx, sent); err != nil {
		return nil, nil, err
	}
	if err := uow.ChatMessageRepository().Create(ctx, reply); err != nil {
		return nil, nil, err
	}

	if session.Title == constant.DefaultSessionTitle {
		session.Title = utils.Truncate(strings.TrimSpace(userText), constant.SessionTitleMaxLength)
		session.UpdatedAt = &now
		if err := uow.ChatSessionRepository().Update(ctx, session); err != nil {
			return nil, nil, err
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, nil, err
	}
	return sent, reply, nil
}

func (c *chatService) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if c.eventPublisher == nil {
		return
	}
	evt := events.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
	if err := c.eventPublisher.Publish(ctx, evt); err != nil {
		c.pipelineLogger.Printf("[WARN] Failed to publish %s event: %v", eventType, err)
	}
}

// documentTitles resolves every document id cited anywhere in the given
// messages to its current title, in one batch.
func (c *chatService) documentTitles(ctx context.Context, uow unitofwork.UnitOfWork, messages []*entity.ChatMessage) (map[uuid.UUID]string, error) {
	idSet := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0)
	for _, msg := range messages {
		for _, id := range msg.UsedDocumentIds {
			if _, dup := idSet[id]; dup {
				continue
			}
			idSet[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}

	docs, err := uow.DocumentRepository().FindAll(ctx, specification.ByIDs{IDs: ids})
	if err != nil {
		return nil, err
	}
	titles := make(map[uuid.UUID]string, len(docs))
	for _, doc := range docs {
		titles[doc.Id] = doc.Title
	}
	return titles, nil
}

func snapshotTitles(snap store.ReferenceSnapshot) map[uuid.UUID]string {
	titles := make(map[uuid.UUID]string, len(snap.Entries))
	for _, e := range snap.Entries {
		if id, err := uuid.Parse(e.DocumentID); err == nil {
			titles[id] = e.Label
		}
	}
	return titles
}

// citationsFor maps used document ids to citation DTOs. Documents deleted
// since the message was written keep the citation with an empty title.
func citationsFor(ids []uuid.UUID, titles map[uuid.UUID]string) []dto.CitationDTO {
	if len(ids) == 0 {
		return nil
	}
	citations := make([]dto.CitationDTO, 0, len(ids))
	for _, id := range ids {
		citations = append(citations, dto.CitationDTO{
			DocumentId: id,
			Title:      titles[id],
		})
	}
	return citations
}

func mergeDocumentIds(cited []string, direct []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(cited)+len(direct))
	seen := make(map[uuid.UUID]struct{}, len(cited)+len(direct))
	for _, raw := range append(append([]string(nil), cited...), direct...) {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
