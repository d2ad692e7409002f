package memory

import (
	"context"
	"sort"
	"sync"

	"mediquery-be/internal/entity"
	"mediquery-be/internal/repository/contract"
)

// PresetRepository is an in-memory PromptPresetRepository. It backs tests and
// deployments that run without Postgres; semantics match the gorm
// implementation (newest-first listing, nil on miss).
type PresetRepository struct {
	mu      sync.RWMutex
	presets map[string]entity.PromptPreset
}

func NewPresetRepository() contract.PromptPresetRepository {
	return &PresetRepository{
		presets: make(map[string]entity.PromptPreset),
	}
}

func (r *PresetRepository) Create(ctx context.Context, preset *entity.PromptPreset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.presets[preset.Name]; exists {
		return contract.ErrDuplicateName
	}
	r.presets[preset.Name] = clonePreset(*preset)
	return nil
}

func (r *PresetRepository) Update(ctx context.Context, preset *entity.PromptPreset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[preset.Name] = clonePreset(*preset)
	return nil
}

func (r *PresetRepository) FindByName(ctx context.Context, name string) (*entity.PromptPreset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	preset, ok := r.presets[name]
	if !ok {
		return nil, nil
	}
	out := clonePreset(preset)
	return &out, nil
}

func (r *PresetRepository) FindAllNewestFirst(ctx context.Context) ([]entity.PromptPreset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.PromptPreset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, clonePreset(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *PresetRepository) DeleteByName(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.presets, name)
	return nil
}

func (r *PresetRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.presets)), nil
}

// clonePreset copies the prompts map so callers cannot mutate stored state.
func clonePreset(p entity.PromptPreset) entity.PromptPreset {
	prompts := make(map[string]string, len(p.Prompts))
	for k, v := range p.Prompts {
		prompts[k] = v
	}
	p.Prompts = prompts
	return p
}
