package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediquery-be/internal/config"
	"mediquery-be/internal/dto"
	"mediquery-be/internal/pkg/logger"
	"mediquery-be/internal/repository/implementation"
	"mediquery-be/internal/repository/unitofwork"
	"mediquery-be/internal/service"
	"mediquery-be/pkg/database"
	"mediquery-be/pkg/embedding"
	"mediquery-be/pkg/embedding/jina"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bulk-loads a directory of .txt/.md files into the curated knowledge base.
// Each file becomes one document; embedding runs through the same consumer
// the REST process uses, so chunking and storage behave identically.
func main() {
	dir := flag.String("dir", "", "directory of .txt/.md files to ingest")
	category := flag.String("category", "", "force a category instead of inferring one")
	flag.Parse()

	if *dir == "" {
		log.Fatal("Usage: ingest -dir <path> [-category <name>]")
	}

	// 1. Configuration & Database
	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Error: Failed to connect to database: %v", err)
	}
	uowFactory := unitofwork.NewRepositoryFactory(db)

	// 2. Embedding Provider
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Embedding.Provider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Embedding.OllamaBaseURL, cfg.Embedding.OllamaModel)
	} else if cfg.Embedding.Provider == "jina" {
		embeddingProvider = jina.NewJinaProvider(cfg.Embedding.JinaAPIKey)
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Embedding.GeminiAPIKey)
	}

	// 3. In-Process Ingestion Bus
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	publisherService := service.NewPublisherService(cfg.App.DocumentEmbedTopic, pubSub)
	embedLogger := logger.NewZapLogger("logs/ingest.log", false)
	consumerService := service.NewConsumerService(pubSub, cfg.App.DocumentEmbedTopic, uowFactory, embeddingProvider, embedLogger)
	documentService := service.NewDocumentService(uowFactory, publisherService)

	ctx := context.Background()
	if err := consumerService.Consume(ctx); err != nil {
		log.Fatalf("Error: Failed to start embedding consumer: %v", err)
	}

	// 4. Walk the directory
	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatalf("Error: Failed to read directory %s: %v", *dir, err)
	}

	embeddingRepo := implementation.NewDocumentEmbeddingRepository(db)
	before, err := embeddingRepo.Count(ctx)
	if err != nil {
		log.Fatalf("Error: Failed to count embeddings: %v", err)
	}

	created := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}

		path := filepath.Join(*dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warn: Skipping %s: %v", entry.Name(), err)
			continue
		}
		if len(strings.TrimSpace(string(raw))) == 0 {
			log.Printf("Warn: Skipping %s: empty file", entry.Name())
			continue
		}

		res, err := documentService.Create(ctx, &dto.CreateDocumentRequest{
			Title:     strings.TrimSuffix(entry.Name(), ext),
			Content:   string(raw),
			Category:  *category,
			SourceRef: path,
		})
		if err != nil {
			log.Printf("Warn: Failed to ingest %s: %v", entry.Name(), err)
			continue
		}
		log.Printf("Queued: %s (id=%s, category=%s)", entry.Name(), res.Id, res.Category)
		created++
	}

	if created == 0 {
		log.Println("Nothing to ingest.")
		return
	}

	// 5. Wait for the consumer to drain. The embedding count stops moving
	// once every queued document has been processed.
	log.Printf("Waiting for %d documents to be embedded...", created)
	deadline := time.Now().Add(10 * time.Minute)
	last := before
	stable := 0
	for time.Now().Before(deadline) {
		time.Sleep(2 * time.Second)
		count, err := embeddingRepo.Count(ctx)
		if err != nil {
			log.Printf("Warn: Failed to count embeddings: %v", err)
			continue
		}
		if count == last && count > before {
			stable++
			if stable >= 3 {
				break
			}
		} else {
			stable = 0
		}
		last = count
	}

	log.Printf("✅ Success: Ingested %d documents (%d chunks embedded)", created, last-before)
}
