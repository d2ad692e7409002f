package entity

import (
	"time"

	"github.com/google/uuid"
)

// DocumentEmbedding is one embedded chunk of a knowledge-base document.
type DocumentEmbedding struct {
	Id             uuid.UUID
	DocumentId     uuid.UUID
	ChunkIndex     int
	Chunk          string
	EmbeddingValue []float32
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}
