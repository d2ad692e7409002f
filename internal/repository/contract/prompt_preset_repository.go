package contract

import (
	"context"
	"errors"

	"mediquery-be/internal/entity"
)

// ErrDuplicateName reports an insert that collided with an existing preset
// name. Callers that raced a concurrent first save can retry as an update.
var ErrDuplicateName = errors.New("preset name already exists")

// PromptPresetRepository persists named prompt bundles. Lookups use the
// sanitized name (the storage key), not the display name.
type PromptPresetRepository interface {
	// Create inserts a new preset and returns ErrDuplicateName when the
	// name is already taken.
	Create(ctx context.Context, preset *entity.PromptPreset) error
	Update(ctx context.Context, preset *entity.PromptPreset) error
	FindByName(ctx context.Context, name string) (*entity.PromptPreset, error)
	FindAllNewestFirst(ctx context.Context) ([]entity.PromptPreset, error)
	DeleteByName(ctx context.Context, name string) error
	Count(ctx context.Context) (int64, error)
}
