package entity

import (
	"time"

	"github.com/google/uuid"
)

// Document is one curated knowledge-base entry. SourceRef keeps the origin
// of ingested files (path or URL) for the REFERENCES listing.
type Document struct {
	Id        uuid.UUID
	Title     string
	Content   string
	Category  string
	SourceRef string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
