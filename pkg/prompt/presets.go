package prompt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mediquery-be/internal/entity"
	"mediquery-be/internal/repository/contract"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const presetListingKey = "presets:listing"

// SanitizeName derives the storage key for a preset: lower-cased, spaces
// replaced with underscores. Distinct display names can collide after this
// transform; Save keeps the overwrite semantics and logs a warning.
func SanitizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// PresetManager persists named bundles of stage templates. Listing results
// are cached and invalidated on every save/delete.
type PresetManager struct {
	repo    contract.PromptPresetRepository
	listing *gocache.Cache
	logger  *log.Logger
}

func NewPresetManager(repo contract.PromptPresetRepository, listingTTL time.Duration, logger *log.Logger) *PresetManager {
	if logger == nil {
		logger = log.Default()
	}
	return &PresetManager{
		repo:    repo,
		listing: gocache.New(listingTTL, listingTTL*2),
		logger:  logger,
	}
}

// Save stores prompts under the sanitized name. Saving over an existing key
// overwrites it and resets created_at, matching the store's file semantics.
func (m *PresetManager) Save(ctx context.Context, name string, prompts map[Stage]string) (*entity.PromptPreset, error) {
	key := SanitizeName(name)
	if key == "" {
		return nil, fmt.Errorf("preset name must not be empty")
	}

	textByStage := make(map[string]string, len(prompts))
	for stage, text := range prompts {
		if _, err := ParseStage(string(stage)); err != nil {
			return nil, err
		}
		textByStage[string(stage)] = text
	}

	existing, err := m.repo.FindByName(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup preset %s: %w", key, err)
	}

	preset := &entity.PromptPreset{
		Name:        key,
		DisplayName: strings.TrimSpace(name),
		Prompts:     textByStage,
		CreatedAt:   time.Now().UTC(),
	}

	if existing != nil {
		if existing.DisplayName != preset.DisplayName {
			m.logger.Printf("[PRESET] name collision: %q overwrites stored preset %q (key %s)",
				preset.DisplayName, existing.DisplayName, key)
		}
		preset.Id = existing.Id
		err = m.repo.Update(ctx, preset)
	} else {
		preset.Id = uuid.New()
		err = m.repo.Create(ctx, preset)
		if errors.Is(err, contract.ErrDuplicateName) {
			// Lost a concurrent first-save race; overwrite like any re-save.
			current, lookupErr := m.repo.FindByName(ctx, key)
			if lookupErr == nil && current != nil {
				preset.Id = current.Id
				err = m.repo.Update(ctx, preset)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("persist preset %s: %w", key, err)
	}

	m.listing.Flush()
	return preset, nil
}

// Load returns the stored preset for a (display or sanitized) name.
func (m *PresetManager) Load(ctx context.Context, name string) (*entity.PromptPreset, error) {
	key := SanitizeName(name)
	preset, err := m.repo.FindByName(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load preset %s: %w", key, err)
	}
	if preset == nil {
		return nil, fmt.Errorf("%w: %s", ErrPresetNotFound, key)
	}
	return preset, nil
}

// List returns all presets, newest first. The listing is cached until the
// next save/delete or TTL expiry.
func (m *PresetManager) List(ctx context.Context) ([]entity.PromptPreset, error) {
	if cached, ok := m.listing.Get(presetListingKey); ok {
		return cached.([]entity.PromptPreset), nil
	}

	presets, err := m.repo.FindAllNewestFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	m.listing.SetDefault(presetListingKey, presets)
	return presets, nil
}

// Delete removes a preset by name. Deleting a missing preset reports
// ErrPresetNotFound so the administrative caller sees the miss.
func (m *PresetManager) Delete(ctx context.Context, name string) error {
	key := SanitizeName(name)
	preset, err := m.repo.FindByName(ctx, key)
	if err != nil {
		return fmt.Errorf("lookup preset %s: %w", key, err)
	}
	if preset == nil {
		return fmt.Errorf("%w: %s", ErrPresetNotFound, key)
	}
	if err := m.repo.DeleteByName(ctx, key); err != nil {
		return fmt.Errorf("delete preset %s: %w", key, err)
	}
	m.listing.Flush()
	return nil
}

// InvalidateListing drops the cached listing so the next List hits storage.
// The administrative refresh calls this alongside the answer-cache flush.
func (m *PresetManager) InvalidateListing() {
	m.listing.Flush()
}

// StagePrompts converts a stored preset's stage→text map back to typed
// stages, skipping entries whose stage name is no longer known.
func StagePrompts(preset *entity.PromptPreset) map[Stage]string {
	out := make(map[Stage]string, len(preset.Prompts))
	for name, text := range preset.Prompts {
		stage, err := ParseStage(name)
		if err != nil {
			continue
		}
		out[stage] = text
	}
	return out
}
