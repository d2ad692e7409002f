package service

import (
	"context"
	"log"
	"time"

	"mediquery-be/internal/dto"
	"mediquery-be/internal/repository/unitofwork"
	"mediquery-be/pkg/answer"
	"mediquery-be/pkg/cache"
	"mediquery-be/pkg/events"
	pkgNats "mediquery-be/pkg/nats"
	"mediquery-be/pkg/sources"

	"github.com/google/uuid"
)

// Vector column dimensionality; see model.DocumentEmbedding.
const embeddingDimensions = 768

type IAskService interface {
	Ask(ctx context.Context, req *dto.AskRequest) (*dto.AskResponse, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
}

type askService struct {
	orchestrator   *answer.Orchestrator
	stats          *answer.Stats
	cache          *cache.Cache
	uowFactory     unitofwork.RepositoryFactory
	fleet          *sources.Fleet
	eventPublisher *pkgNats.Publisher
	eventType      string
	llmModel       string
	embeddingModel string
}

func NewAskService(
	orchestrator *answer.Orchestrator,
	stats *answer.Stats,
	store *cache.Cache,
	uowFactory unitofwork.RepositoryFactory,
	fleet *sources.Fleet,
	eventPublisher *pkgNats.Publisher,
	eventType string,
	llmModel string,
	embeddingModel string,
) IAskService {
	return &askService{
		orchestrator:   orchestrator,
		stats:          stats,
		cache:          store,
		uowFactory:     uowFactory,
		fleet:          fleet,
		eventPublisher: eventPublisher,
		eventType:      eventType,
		llmModel:       llmModel,
		embeddingModel: embeddingModel,
	}
}

func (s *askService) Ask(ctx context.Context, req *dto.AskRequest) (*dto.AskResponse, error) {
	memory := answer.ConversationMemory{
		Turns:   make([]answer.Turn, 0, len(req.History)),
		Summary: req.MemorySummary,
	}
	for _, turn := range req.History {
		memory.Turns = append(memory.Turns, answer.Turn{Role: turn.Role, Content: turn.Content})
	}

	runId := uuid.New()
	start := time.Now()

	result, err := s.orchestrator.Run(ctx, req.Question, req.UserId, memory)
	if err != nil {
		return nil, err
	}
	durationMs := time.Since(start).Milliseconds()

	citations := make(map[int]dto.CitationRef, len(result.Answer.Citations))
	for n, ref := range result.Answer.Citations {
		citations[n] = dto.CitationRef{
			SourceId:   ref.SourceID,
			SourceType: ref.SourceType,
			Identifier: ref.Identifier,
			Title:      ref.Title,
		}
	}

	res := &dto.AskResponse{
		RunId:           runId.String(),
		Answer:          result.Display(),
		Citations:       citations,
		SourceBreakdown: result.Answer.SourceBreakdown,
		Confidence:      string(result.Answer.Confidence),
		Category:        result.Category,
		Iterations:      result.Iterations,
		DegradedSources: result.DegradedSources,
		MemorySummary:   result.MemorySummary,
		DurationMs:      durationMs,
	}

	// Analytics event is auxiliary; a publish failure never fails the request.
	if s.eventPublisher != nil {
		evt := events.BaseEvent{
			Type: s.eventType,
			Data: map[string]interface{}{
				"run_id":           runId,
				"user_id":          req.UserId,
				"category":         result.Category,
				"confidence":       string(result.Answer.Confidence),
				"iterations":       result.Iterations,
				"degraded_sources": result.DegradedSources,
				"cache_hits":       result.CacheHits,
				"duration_ms":      durationMs,
			},
			OccurredAt: time.Now(),
		}
		if err := s.eventPublisher.Publish(ctx, evt); err != nil {
			log.Printf("[WARN] Failed to publish %s event: %v", s.eventType, err)
		}
	}

	return res, nil
}

func (s *askService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	totalDocuments, err := uow.DocumentRepository().Count(ctx)
	if err != nil {
		return nil, err
	}
	totalEmbeddings, err := uow.DocumentEmbeddingRepository().Count(ctx)
	if err != nil {
		return nil, err
	}

	snap := s.stats.Snapshot()

	return &dto.StatsResponse{
		ModelInfo: dto.ModelInfo{
			LLMModel:       s.llmModel,
			EmbeddingModel: s.embeddingModel,
			Dimensions:     embeddingDimensions,
		},
		DocumentStats: dto.DocumentStats{
			TotalDocuments:  totalDocuments,
			TotalEmbeddings: totalEmbeddings,
		},
		SearchPerformance: dto.SearchPerformance{
			SearchesPerformed:     snap.SearchesPerformed,
			AverageResponseTimeMs: snap.AverageResponseTimeMs,
			APICalls:              snap.APICalls,
			TotalTokens:           snap.TotalTokens,
		},
		CacheInfo: dto.CacheInfo{
			Hits:    s.cache.Hits(),
			Misses:  s.cache.Misses(),
			HitRate: s.cache.HitRate(),
		},
		CostEstimate: dto.CostEstimate{
			TotalTokens:      snap.TotalTokens,
			EstimatedCostUSD: snap.EstimatedCostUSD,
		},
		Sources: s.fleet.States(),
	}, nil
}
