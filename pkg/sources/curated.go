package sources

import (
	"context"
	"fmt"

	"mediquery-be/internal/repository/contract"
	"mediquery-be/internal/repository/specification"
	"mediquery-be/pkg/embedding"
)

const curatedSourceType = "큐레이션 지식베이스"

// CuratedKBConnector searches the internal document store over pgvector.
// Each result is a chunk; chunks from the same document are deduplicated
// keeping the highest-similarity one so the identifier stays document-level.
type CuratedKBConnector struct {
	embedder      embedding.EmbeddingProvider
	embeddingRepo contract.DocumentEmbeddingRepository
	documentRepo  contract.DocumentRepository
	threshold     float64
	weight        float64
}

func NewCuratedKBConnector(
	embedder embedding.EmbeddingProvider,
	embeddingRepo contract.DocumentEmbeddingRepository,
	documentRepo contract.DocumentRepository,
	threshold float64,
) *CuratedKBConnector {
	if threshold <= 0 {
		threshold = 0.3
	}
	return &CuratedKBConnector{
		embedder:      embedder,
		embeddingRepo: embeddingRepo,
		documentRepo:  documentRepo,
		threshold:     threshold,
		weight:        0.95,
	}
}

func (c *CuratedKBConnector) ID() string {
	return IDCuratedKB
}

func (c *CuratedKBConnector) TrustWeight() float64 {
	return c.weight
}

func (c *CuratedKBConnector) Retrieve(ctx context.Context, query string, limit int) ([]SourceResult, error) {
	if limit <= 0 {
		limit = 5
	}

	embedResp, err := c.embedder.Generate(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch so document-level dedup can still fill the limit.
	scored, err := c.embeddingRepo.SearchSimilarWithScore(ctx, embedResp.Embedding.Values, limit*3, c.threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(scored))
	results := make([]SourceResult, 0, limit)
	for _, s := range scored {
		docID := s.Embedding.DocumentId.String()
		if seen[docID] {
			continue
		}
		seen[docID] = true

		title := ""
		doc, err := c.documentRepo.FindOne(ctx, specification.ByID{ID: s.Embedding.DocumentId})
		if err == nil && doc != nil {
			title = doc.Title
		}

		results = append(results, SourceResult{
			SourceID:    c.ID(),
			SourceType:  curatedSourceType,
			Identifier:  docID,
			Title:       title,
			Snippet:     s.Embedding.Chunk,
			TrustWeight: c.weight,
			Score:       s.Similarity,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
