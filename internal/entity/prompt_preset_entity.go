package entity

import (
	"time"

	"github.com/google/uuid"
)

// PromptPreset is a named, timestamped bundle of stage templates. Name is
// the sanitized storage key; DisplayName keeps what the administrator typed
// so sanitization collisions stay visible.
type PromptPreset struct {
	Id          uuid.UUID
	Name        string
	DisplayName string
	Prompts     map[string]string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}
