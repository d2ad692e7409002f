package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"mediquery-be/internal/entity"
	"mediquery-be/internal/repository/specification"
	"mediquery-be/internal/repository/unitofwork"
	"mediquery-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	// Verify Wiring
	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.DocumentRepository())
	assert.NotNil(t, uow.DocumentEmbeddingRepository())
	assert.NotNil(t, uow.PromptPresetRepository())

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	err = sqlDB.Ping()
	assert.NoError(t, err)
	t.Log("Successfully connected to DB and initialized UnitOfWork Factory")

	// Verify Data Access (implies columns exist)
	t.Run("Check Document Repository", func(t *testing.T) {
		count, err := uow.DocumentRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("Document count: %d", count)
	})

	t.Run("Check Document Embedding Repository", func(t *testing.T) {
		// Count implies the table and the vector column exist
		count, err := uow.DocumentEmbeddingRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("DocumentEmbedding count: %d", count)
	})

	t.Run("Check Prompt Preset Repository", func(t *testing.T) {
		count, err := uow.PromptPresetRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("PromptPreset count: %d", count)
	})

	t.Run("Check Transactional Document Delete", func(t *testing.T) {
		ctx := context.Background()

		documentId := uuid.New()
		document := &entity.Document{
			Id:        documentId,
			Title:     "Integration Test Document " + documentId.String(),
			Content:   "당뇨병 환자의 혈당 관리에 대한 통합 테스트 문서입니다.",
			Category:  "일반의학",
			CreatedAt: time.Now(),
		}
		err := uow.DocumentRepository().Create(ctx, document)
		assert.NoError(t, err)

		embedding := &entity.DocumentEmbedding{
			Id:             uuid.New(),
			DocumentId:     documentId,
			ChunkIndex:     0,
			Chunk:          document.Content,
			EmbeddingValue: make([]float32, 768),
			CreatedAt:      time.Now(),
		}
		err = uow.DocumentEmbeddingRepository().Create(ctx, embedding)
		assert.NoError(t, err)

		// Transaction Test: embeddings and document go together or not at all
		err = uow.Begin(ctx)
		assert.NoError(t, err)
		defer uow.Rollback()

		err = uow.DocumentEmbeddingRepository().DeleteByDocumentId(ctx, documentId)
		assert.NoError(t, err)
		err = uow.DocumentRepository().Delete(ctx, documentId)
		assert.NoError(t, err)

		err = uow.Commit()
		assert.NoError(t, err)

		// Deleted documents stay invisible to FindOne
		found, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: documentId})
		assert.NoError(t, err)
		assert.Nil(t, found)

		t.Log("Successfully deleted Document with Embeddings in Transaction")
	})
}
