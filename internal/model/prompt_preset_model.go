package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PromptPreset rows are hard-deleted: the name carries a unique index, and a
// soft-deleted row would block re-creating a preset under the same name.
type PromptPreset struct {
	Id          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name        string         `gorm:"type:varchar(128);not null;uniqueIndex"`
	DisplayName string         `gorm:"type:varchar(128);not null"`
	Prompts     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (PromptPreset) TableName() string {
	return "prompt_presets"
}
