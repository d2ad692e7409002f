// FILE: internal/service/consumer_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediquery-be/internal/entity"
	"mediquery-be/internal/pkg/logger"
	"mediquery-be/internal/repository/specification"
	"mediquery-be/internal/repository/unitofwork"
	"mediquery-be/pkg/embedding"
	"mediquery-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Embedding chunk sizing. 1500 chars is roughly 375 tokens, well inside the
// embedding model's context. The overlap keeps dosage statements from being
// separated from the drug they belong to.
const (
	embedChunkSize    = 1500
	embedChunkOverlap = 200
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub            *gochannel.GoChannel
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	logger            logger.ILogger
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:            pubSub,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		logger:            log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage re-embeds one document. Malformed payloads and vanished
// documents are acked so they never loop; everything retriable is nacked.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload PublishEmbedDocumentMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("consumer", "Malformed embed message, dropping", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	document, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: payload.DocumentId})
	if err != nil {
		cs.logger.Error("consumer", "Document lookup failed", map[string]interface{}{
			"document_id": payload.DocumentId, "error": err.Error(),
		})
		msg.Nack()
		return
	}
	if document == nil {
		cs.logger.Warn("consumer", "Document gone before embedding, dropping", map[string]interface{}{
			"document_id": payload.DocumentId,
		})
		msg.Ack()
		return
	}

	embeddings, err := cs.embedDocument(ctx, document)
	if err != nil {
		cs.logger.Error("consumer", "Embedding generation failed", map[string]interface{}{
			"document_id": payload.DocumentId, "error": err.Error(),
		})
		msg.Nack()
		return
	}

	if err := cs.replaceEmbeddings(ctx, uow, document.Id, embeddings); err != nil {
		cs.logger.Error("consumer", "Embedding swap failed", map[string]interface{}{
			"document_id": payload.DocumentId, "error": err.Error(),
		})
		msg.Nack()
		return
	}

	cs.logger.Info("consumer", "Document embedded", map[string]interface{}{
		"document_id": payload.DocumentId, "chunks": len(embeddings),
	})
	msg.Ack()
}

func (cs *consumerService) embedDocument(ctx context.Context, document *entity.Document) ([]*entity.DocumentEmbedding, error) {
	// Title and category are prepended so a chunk from deep inside the
	// document still retrieves on a query that names the topic.
	content := fmt.Sprintf("문서 제목: %s\n분류: %s\n\n%s",
		document.Title, document.Category, document.Content)

	chunks := utils.SplitText(content, embedChunkSize, embedChunkOverlap)

	embeddings := make([]*entity.DocumentEmbedding, 0, len(chunks))
	for i, chunk := range chunks {
		res, err := cs.embeddingProvider.Generate(ctx, chunk, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		embeddings = append(embeddings, &entity.DocumentEmbedding{
			Id:             uuid.New(),
			DocumentId:     document.Id,
			ChunkIndex:     i,
			Chunk:          chunk,
			EmbeddingValue: res.Embedding.Values,
			CreatedAt:      time.Now(),
		})
	}
	return embeddings, nil
}

// replaceEmbeddings swaps the document's chunk set in one transaction so
// retrieval never sees a half-embedded document.
func (cs *consumerService) replaceEmbeddings(ctx context.Context, uow unitofwork.UnitOfWork, documentID uuid.UUID, embeddings []*entity.DocumentEmbedding) error {
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer uow.Rollback()

	if err := uow.DocumentEmbeddingRepository().DeleteByDocumentId(ctx, documentID); err != nil {
		return fmt.Errorf("delete stale embeddings: %w", err)
	}
	if len(embeddings) > 0 {
		if err := uow.DocumentEmbeddingRepository().CreateBulk(ctx, embeddings); err != nil {
			return fmt.Errorf("store embeddings: %w", err)
		}
	}
	return uow.Commit()
}
