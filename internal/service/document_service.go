package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mediquery-be/internal/constant"
	"mediquery-be/internal/dto"
	"mediquery-be/internal/entity"
	"mediquery-be/internal/repository/specification"
	"mediquery-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

type IDocumentService interface {
	Create(ctx context.Context, req *dto.CreateDocumentRequest) (*dto.CreateDocumentResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.ShowDocumentResponse, error)
	List(ctx context.Context, category string, limit, offset int) (*dto.ListDocumentsResponse, error)
	Update(ctx context.Context, req *dto.UpdateDocumentRequest) (*dto.ShowDocumentResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentService struct {
	uowFactory       unitofwork.RepositoryFactory
	publisherService IPublisherService
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	publisherService IPublisherService,
) IDocumentService {
	return &documentService{
		uowFactory:       uowFactory,
		publisherService: publisherService,
	}
}

// PublishEmbedDocumentMessage is the bus payload that triggers chunking and
// embedding of one document.
type PublishEmbedDocumentMessage struct {
	DocumentId uuid.UUID `json:"document_id"`
}

// categoryKeywords drive category inference, probed in order so the more
// specific labels win. Keys and keywords follow the curated corpus naming.
var categoryKeywords = []struct {
	Category string
	Keywords []string
}{
	{"응급처치", []string{"응급", "emergency", "급성", "위급", "구급"}},
	{"약물정보", []string{"약물", "drug", "medication", "처방", "pharmacology"}},
	{"진단", []string{"진단", "diagnosis", "검사", "test", "examination"}},
	{"치료", []string{"치료", "treatment", "therapy", "수술", "surgery"}},
	{"간호", []string{"간호", "nursing", "care", "돌봄"}},
	{"내과", []string{"내과", "internal", "순환기", "호흡기", "소화기"}},
	{"외과", []string{"외과", "surgery", "수술", "정형외과", "신경외과"}},
	{"소아과", []string{"소아", "pediatric", "아동", "신생아"}},
	{"산부인과", []string{"산부인과", "obstetrics", "gynecology", "임신", "출산"}},
	{"가이드라인", []string{"guideline", "가이드", "지침", "프로토콜", "protocol"}},
	{"매뉴얼", []string{"manual", "매뉴얼", "안내서", "handbook"}},
}

// inferCategory guesses the category from the title, falling back to the
// leading content when the title gives nothing away.
func inferCategory(title, content string) string {
	probe := strings.ToLower(title)
	if len([]rune(content)) > 200 {
		probe += " " + strings.ToLower(string([]rune(content)[:200]))
	} else {
		probe += " " + strings.ToLower(content)
	}

	for _, entry := range categoryKeywords {
		for _, keyword := range entry.Keywords {
			if strings.Contains(probe, keyword) {
				return entry.Category
			}
		}
	}
	return constant.DefaultDocumentCategory
}

func (s *documentService) Create(ctx context.Context, req *dto.CreateDocumentRequest) (*dto.CreateDocumentResponse, error) {
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = inferCategory(req.Title, req.Content)
	} else if !constant.IsValidDocumentCategory(category) {
		return nil, fmt.Errorf("unknown document category %q", category)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	document := entity.Document{
		Id:        uuid.New(),
		Title:     req.Title,
		Content:   req.Content,
		Category:  category,
		SourceRef: req.SourceRef,
		CreatedAt: time.Now(),
	}

	if err := uow.DocumentRepository().Create(ctx, &document); err != nil {
		return nil, err
	}

	if err := s.publishEmbed(ctx, document.Id); err != nil {
		return nil, err
	}

	return &dto.CreateDocumentResponse{
		Id:       document.Id,
		Category: document.Category,
	}, nil
}

func (s *documentService) Show(ctx context.Context, id uuid.UUID) (*dto.ShowDocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	document, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, fmt.Errorf("document not found")
	}
	return toShowDocumentResponse(document), nil
}

func (s *documentService) List(ctx context.Context, category string, limit, offset int) (*dto.ListDocumentsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	specs := []specification.Specification{}
	if category != "" {
		specs = append(specs, specification.ByCategory{Category: category})
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	total, err := uow.DocumentRepository().Count(ctx, specs...)
	if err != nil {
		return nil, err
	}

	specs = append(specs,
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit, Offset: offset},
	)
	documents, err := uow.DocumentRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, err
	}

	items := make([]dto.DocumentListItem, 0, len(documents))
	for _, document := range documents {
		items = append(items, dto.DocumentListItem{
			Id:        document.Id,
			Title:     document.Title,
			Category:  document.Category,
			SourceRef: document.SourceRef,
			CreatedAt: document.CreatedAt,
			UpdatedAt: document.UpdatedAt,
		})
	}

	return &dto.ListDocumentsResponse{
		Documents: items,
		Total:     total,
	}, nil
}

func (s *documentService) Update(ctx context.Context, req *dto.UpdateDocumentRequest) (*dto.ShowDocumentResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	document, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: req.Id})
	if err != nil {
		return nil, err
	}
	if document == nil {
		return nil, fmt.Errorf("document not found")
	}

	contentChanged := false
	if req.Title != "" && req.Title != document.Title {
		document.Title = req.Title
		contentChanged = true
	}
	if req.Content != "" && req.Content != document.Content {
		document.Content = req.Content
		contentChanged = true
	}
	if req.Category != "" {
		if !constant.IsValidDocumentCategory(req.Category) {
			return nil, fmt.Errorf("unknown document category %q", req.Category)
		}
		document.Category = req.Category
	}

	if err := uow.DocumentRepository().Update(ctx, document); err != nil {
		return nil, err
	}

	// Re-embed only when searchable text changed.
	if contentChanged {
		if err := s.publishEmbed(ctx, document.Id); err != nil {
			return nil, err
		}
	}

	return toShowDocumentResponse(document), nil
}

func (s *documentService) Delete(ctx context.Context, id uuid.UUID) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	document, err := uow.DocumentRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return err
	}
	if document == nil {
		return fmt.Errorf("document not found")
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentEmbeddingRepository().DeleteByDocumentId(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return err
	}

	return uow.Commit()
}

func (s *documentService) publishEmbed(ctx context.Context, documentId uuid.UUID) error {
	payload, err := json.Marshal(PublishEmbedDocumentMessage{DocumentId: documentId})
	if err != nil {
		return err
	}
	return s.publisherService.Publish(ctx, payload)
}

func toShowDocumentResponse(document *entity.Document) *dto.ShowDocumentResponse {
	return &dto.ShowDocumentResponse{
		Id:        document.Id,
		Title:     document.Title,
		Content:   document.Content,
		Category:  document.Category,
		SourceRef: document.SourceRef,
		CreatedAt: document.CreatedAt,
		UpdatedAt: document.UpdatedAt,
	}
}
