package dto

import (
	"time"

	"github.com/google/uuid"
)

// --- Knowledge Base Documents ---

type CreateDocumentRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required"`
	// Category is optional; when empty it is inferred from title/content.
	Category  string `json:"category,omitempty"`
	SourceRef string `json:"source_ref,omitempty" validate:"max=512"`
}

type CreateDocumentResponse struct {
	Id       uuid.UUID `json:"id"`
	Category string    `json:"category"`
}

type UpdateDocumentRequest struct {
	Id       uuid.UUID `json:"-"`
	Title    string    `json:"title,omitempty" validate:"max=255"`
	Content  string    `json:"content,omitempty"`
	Category string    `json:"category,omitempty"`
}

type DocumentListItem struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Category  string     `json:"category"`
	SourceRef string     `json:"source_ref,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type ListDocumentsResponse struct {
	Documents []DocumentListItem `json:"documents"`
	Total     int64              `json:"total"`
}

type ShowDocumentResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Category  string     `json:"category"`
	SourceRef string     `json:"source_ref,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
