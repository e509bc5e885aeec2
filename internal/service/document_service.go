package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-docassist-be/internal/dto"
	"ai-docassist-be/internal/entity"
	"ai-docassist-be/internal/repository/specification"
	"ai-docassist-be/internal/repository/unitofwork"
	"ai-docassist-be/pkg/embedding"
	"ai-docassist-be/pkg/events"
	pktNats "ai-docassist-be/pkg/nats"

	"github.com/google/uuid"
)

// SemanticSearchThreshold is the minimum cosine similarity for a chunk to
// count as a hit. Balanced for recall over precision.
const SemanticSearchThreshold = 0.35

type IDocumentService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateDocumentRequest) (*dto.CreateDocumentResponse, error)
	Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowDocumentResponse, error)
	List(ctx context.Context, userId uuid.UUID, req *dto.ListDocumentsRequest) (*dto.ListDocumentsResponse, error)
	Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateDocumentRequest) (*dto.UpdateDocumentResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
	SemanticSearch(ctx context.Context, userId uuid.UUID, search string, limit int) ([]*dto.SemanticSearchResponse, error)
}

type documentService struct {
	uowFactory        unitofwork.RepositoryFactory
	publisherService  IPublisherService
	embeddingProvider embedding.EmbeddingProvider
	eventPublisher    *pktNats.Publisher
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
	embeddingProvider embedding.EmbeddingProvider,
	eventPublisher *pktNats.Publisher,
) IDocumentService {
	return &documentService{
		uowFactory:        uowFactory,
		publisherService:  publisherService,
		embeddingProvider: embeddingProvider,
		eventPublisher:    eventPublisher,
	}
}

func (c *documentService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateDocumentRequest) (*dto.CreateDocumentResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	doc := entity.Document{
		Id:        uuid.New(),
		Title:     req.Title,
		Content:   req.Content,
		Summary:   req.Summary,
		Tags:      req.Tags,
		UserId:    userId,
		CreatedAt: time.Now(),
	}

	if err := uow.DocumentRepository().Create(ctx, &doc); err != nil {
		return nil, err
	}

	if err := c.publishEmbed(ctx, doc.Id); err != nil {
		return nil, err
	}

	c.publishEvent(ctx, "DOCUMENT_CREATED", map[string]interface{}{
		"title":       doc.Title,
		"document_id": doc.Id,
		"user_id":     userId,
	})

	return &dto.CreateDocumentResponse{Id: doc.Id}, nil
}

func (c *documentService) Show(ctx context.Context, userId uuid.UUID, id uuid.UUID) (*dto.ShowDocumentResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil // Not found
	}

	return &dto.ShowDocumentResponse{
		Id:        doc.Id,
		Title:     doc.Title,
		Content:   doc.Content,
		Summary:   doc.Summary,
		Tags:      doc.Tags,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (c *documentService) List(ctx context.Context, userId uuid.UUID, req *dto.ListDocumentsRequest) (*dto.ListDocumentsResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	total, err := uow.DocumentRepository().Count(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, err
	}

	docs, err := uow.DocumentRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: offset},
	)
	if err != nil {
		return nil, err
	}

	items := make([]dto.ListDocumentItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, dto.ListDocumentItem{
			Id:        doc.Id,
			Title:     doc.Title,
			Summary:   doc.Summary,
			Tags:      doc.Tags,
			CreatedAt: doc.CreatedAt,
			UpdatedAt: doc.UpdatedAt,
		})
	}

	return &dto.ListDocumentsResponse{Documents: items, Total: total}, nil
}

func (c *documentService) Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateDocumentRequest) (*dto.UpdateDocumentResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: req.Id},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	now := time.Now()
	doc.Title = req.Title
	doc.Content = req.Content
	doc.Summary = req.Summary
	doc.Tags = req.Tags
	doc.UpdatedAt = &now

	if err := uow.DocumentRepository().Update(ctx, doc); err != nil {
		return nil, err
	}

	if err := c.publishEmbed(ctx, doc.Id); err != nil {
		return nil, err
	}

	return &dto.UpdateDocumentResponse{Id: doc.Id}, nil
}

func (c *documentService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	doc, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentEmbeddingRepository().DeleteByDocumentId(ctx, id); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return err
	}

	c.publishEvent(ctx, "DOCUMENT_DELETED", map[string]interface{}{
		"document_id": id,
		"user_id":     userId,
	})
	return nil
}

// SemanticSearch embeds the query and ranks the user's documents by best
// matching chunk. Multiple chunks of the same document collapse to its
// highest score.
func (c *documentService) SemanticSearch(ctx context.Context, userId uuid.UUID, search string, limit int) ([]*dto.SemanticSearchResponse, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)

	if limit <= 0 || limit > 50 {
		limit = 10
	}

	embeddingRes, err := c.embeddingProvider.Generate(search, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}

	scoredResults, err := uow.DocumentEmbeddingRepository().SearchSimilarWithScore(
		ctx, embeddingRes.Embedding.Values, limit, userId, SemanticSearchThreshold,
	)
	if err != nil {
		return nil, err
	}
	if len(scoredResults) == 0 {
		return []*dto.SemanticSearchResponse{}, nil
	}

	ids := make([]uuid.UUID, 0)
	scoreMap := make(map[uuid.UUID]float64)
	for _, sr := range scoredResults {
		docId := sr.Embedding.DocumentId
		if _, seen := scoreMap[docId]; !seen {
			ids = append(ids, docId)
			scoreMap[docId] = sr.Similarity
		}
	}

	docs, err := uow.DocumentRepository().FindAll(ctx,
		specification.ByIDs{IDs: ids},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, err
	}

	byId := make(map[uuid.UUID]*entity.Document, len(docs))
	for _, doc := range docs {
		byId[doc.Id] = doc
	}

	// Preserve score order: highest matching chunk first.
	response := make([]*dto.SemanticSearchResponse, 0, len(ids))
	for _, id := range ids {
		doc, ok := byId[id]
		if !ok {
			continue
		}
		score := scoreMap[id]
		response = append(response, &dto.SemanticSearchResponse{
			Id:             doc.Id,
			Title:          doc.Title,
			Summary:        documentSummaryText(doc),
			CreatedAt:      doc.CreatedAt,
			UpdatedAt:      doc.UpdatedAt,
			RelevanceScore: &score,
		})
	}

	return response, nil
}

func (c *documentService) publishEmbed(ctx context.Context, documentId uuid.UUID) error {
	payload := dto.PublishEmbedDocumentMessage{DocumentId: documentId}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.publisherService.Publish(ctx, raw)
}

// publishEvent is best-effort: the event bus is auxiliary and its failures
// never fail the request.
func (c *documentService) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if c.eventPublisher == nil {
		return
	}
	evt := events.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
	if err := c.eventPublisher.Publish(ctx, evt); err != nil {
		fmt.Printf("[WARN] Failed to publish %s event: %v\n", eventType, err)
	}
}
