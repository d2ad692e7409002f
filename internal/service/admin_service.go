package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"mediquery-be/internal/dto"
	"mediquery-be/internal/pkg/logger"
	"mediquery-be/pkg/answer"
	"mediquery-be/pkg/cache"
	"mediquery-be/pkg/prompt"
	"mediquery-be/pkg/sources"
)

const promptPreviewRunes = 80

type IAdminService interface {
	// Prompt Management
	ListPrompts(ctx context.Context) ([]*dto.PromptStageResponse, error)
	UpdatePrompt(ctx context.Context, stageName string, req *dto.UpdatePromptRequest) (*dto.UpdatePromptResponse, error)
	ActivateVersion(ctx context.Context, stageName string, req *dto.ActivateVersionRequest) (*dto.UpdatePromptResponse, error)

	// Preset Management
	SavePreset(ctx context.Context, req *dto.SavePresetRequest) (*dto.PresetResponse, error)
	ListPresets(ctx context.Context) ([]*dto.PresetResponse, error)
	GetPreset(ctx context.Context, name string) (*dto.PresetResponse, error)
	ApplyPreset(ctx context.Context, name string) (*dto.ApplyPresetResponse, error)
	DeletePreset(ctx context.Context, name string) error

	// Pipeline Components
	Refresh(ctx context.Context) (*dto.RefreshResponse, error)
	ConfigureSources(ctx context.Context, req *dto.ConfigureSourcesRequest) (*dto.ConfigureSourcesResponse, error)
}

// ConnectorBuilder re-creates the retrieval connectors from current prompt
// and configuration state. The assistant connector binds its template at
// construction, so prompt changes only reach it through a rebuild.
type ConnectorBuilder func() ([]sources.Connector, error)

type adminService struct {
	registry        *prompt.Registry
	presets         *prompt.PresetManager
	fleet           *sources.Fleet
	orchestrator    *answer.Orchestrator
	cache           *cache.Cache
	storePath       string
	buildConnectors ConnectorBuilder
	logger          logger.ILogger
}

func NewAdminService(
	registry *prompt.Registry,
	presets *prompt.PresetManager,
	fleet *sources.Fleet,
	orchestrator *answer.Orchestrator,
	store *cache.Cache,
	storePath string,
	buildConnectors ConnectorBuilder,
	logger logger.ILogger,
) IAdminService {
	return &adminService{
		registry:        registry,
		presets:         presets,
		fleet:           fleet,
		orchestrator:    orchestrator,
		cache:           store,
		storePath:       storePath,
		buildConnectors: buildConnectors,
		logger:          logger,
	}
}

// ============================================================================
// Prompt Management
// ============================================================================

func (s *adminService) ListPrompts(ctx context.Context) ([]*dto.PromptStageResponse, error) {
	stages := prompt.AllStages()
	out := make([]*dto.PromptStageResponse, 0, len(stages))
	for _, stage := range stages {
		active, err := s.registry.Resolve(stage)
		if err != nil {
			return nil, err
		}
		versions, err := s.registry.ListVersions(stage)
		if err != nil {
			return nil, err
		}
		labels := make([]string, 0, len(versions))
		for _, tpl := range versions {
			labels = append(labels, tpl.Version)
		}
		out = append(out, &dto.PromptStageResponse{
			Stage:         stage.String(),
			ActiveVersion: active.Version,
			Preview:       active.Preview(promptPreviewRunes),
			Versions:      labels,
		})
	}
	return out, nil
}

func (s *adminService) UpdatePrompt(ctx context.Context, stageName string, req *dto.UpdatePromptRequest) (*dto.UpdatePromptResponse, error) {
	stage, err := prompt.ParseStage(stageName)
	if err != nil {
		return nil, err
	}

	tpl, err := s.registry.UpdateActiveText(stage, req.Text)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin", "Prompt updated", map[string]interface{}{
		"stage":   stage.String(),
		"version": tpl.Version,
	})

	// The assistant connector renders this stage itself.
	if stage == prompt.StageAssistant {
		if err := s.rebuildConnectors(); err != nil {
			return nil, err
		}
	}

	return &dto.UpdatePromptResponse{
		Stage:         stage.String(),
		ActiveVersion: tpl.Version,
		Preview:       tpl.Preview(promptPreviewRunes),
	}, nil
}

func (s *adminService) ActivateVersion(ctx context.Context, stageName string, req *dto.ActivateVersionRequest) (*dto.UpdatePromptResponse, error) {
	stage, err := prompt.ParseStage(stageName)
	if err != nil {
		return nil, err
	}

	// Resolve before activating so an unknown version is rejected with the
	// template lookup error and the response can carry the activated text.
	tpl, err := s.registry.ResolveVersion(stage, req.Version)
	if err != nil {
		return nil, err
	}
	if err := s.registry.ActivateVersion(stage, req.Version); err != nil {
		return nil, err
	}

	s.logger.Info("admin", "Prompt version activated", map[string]interface{}{
		"stage":   stage.String(),
		"version": req.Version,
	})

	if stage == prompt.StageAssistant {
		if err := s.rebuildConnectors(); err != nil {
			return nil, err
		}
	}

	return &dto.UpdatePromptResponse{
		Stage:         stage.String(),
		ActiveVersion: tpl.Version,
		Preview:       tpl.Preview(promptPreviewRunes),
	}, nil
}

// ============================================================================
// Preset Management
// ============================================================================

func (s *adminService) SavePreset(ctx context.Context, req *dto.SavePresetRequest) (*dto.PresetResponse, error) {
	var prompts map[prompt.Stage]string
	if len(req.Prompts) > 0 {
		prompts = make(map[prompt.Stage]string, len(req.Prompts))
		for name, text := range req.Prompts {
			stage, err := prompt.ParseStage(name)
			if err != nil {
				return nil, err
			}
			prompts[stage] = text
		}
	} else {
		// No explicit prompts: capture the live configuration.
		prompts = s.registry.ActiveTexts()
	}

	preset, err := s.presets.Save(ctx, req.Name, prompts)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin", "Preset saved", map[string]interface{}{
		"name":   preset.Name,
		"stages": len(preset.Prompts),
	})

	return &dto.PresetResponse{
		Name:        preset.Name,
		DisplayName: preset.DisplayName,
		CreatedAt:   preset.CreatedAt,
		Prompts:     preset.Prompts,
	}, nil
}

func (s *adminService) ListPresets(ctx context.Context) ([]*dto.PresetResponse, error) {
	presets, err := s.presets.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.PresetResponse, 0, len(presets))
	for _, preset := range presets {
		out = append(out, &dto.PresetResponse{
			Name:        preset.Name,
			DisplayName: preset.DisplayName,
			CreatedAt:   preset.CreatedAt,
		})
	}
	return out, nil
}

func (s *adminService) GetPreset(ctx context.Context, name string) (*dto.PresetResponse, error) {
	preset, err := s.presets.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return &dto.PresetResponse{
		Name:        preset.Name,
		DisplayName: preset.DisplayName,
		CreatedAt:   preset.CreatedAt,
		Prompts:     preset.Prompts,
	}, nil
}

func (s *adminService) ApplyPreset(ctx context.Context, name string) (*dto.ApplyPresetResponse, error) {
	preset, err := s.presets.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(preset.Prompts))
	skipped := make(map[string]string)
	assistantChanged := false

	for stageName, text := range preset.Prompts {
		stage, err := prompt.ParseStage(stageName)
		if err != nil {
			// A preset can outlive a stage rename; report, don't fail.
			skipped[stageName] = "unknown stage"
			continue
		}
		if _, err := s.registry.UpdateActiveText(stage, text); err != nil {
			skipped[stageName] = err.Error()
			continue
		}
		applied = append(applied, stage.String())
		if stage == prompt.StageAssistant {
			assistantChanged = true
		}
	}
	sort.Strings(applied)

	if assistantChanged {
		if err := s.rebuildConnectors(); err != nil {
			return nil, err
		}
	}

	s.logger.Info("admin", "Preset applied", map[string]interface{}{
		"name":    preset.Name,
		"applied": applied,
		"skipped": len(skipped),
	})

	res := &dto.ApplyPresetResponse{
		Name:          preset.Name,
		AppliedStages: applied,
	}
	if len(skipped) > 0 {
		res.SkippedStages = skipped
	}
	return res, nil
}

func (s *adminService) DeletePreset(ctx context.Context, name string) error {
	if err := s.presets.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info("admin", "Preset deleted", map[string]interface{}{"name": name})
	return nil
}

// ============================================================================
// Pipeline Components
// ============================================================================

// Refresh re-reads the template store, swaps the registry contents
// atomically, rebuilds prompt-bound connectors and flushes derived caches.
// In-flight runs keep the snapshot they captured at entry. A store file
// that was never seeded is not an error: the in-memory registry stays and
// ReloadedFromStore reports false, same as at boot.
func (s *adminService) Refresh(ctx context.Context) (*dto.RefreshResponse, error) {
	reloaded := false
	if s.storePath != "" {
		fresh, err := prompt.LoadStore(s.storePath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reload prompt store: %w", err)
		}

		if err == nil {
			var templates []prompt.Template
			active := make(map[prompt.Stage]string, len(prompt.AllStages()))
			for _, stage := range prompt.AllStages() {
				versions, err := fresh.ListVersions(stage)
				if err != nil {
					return nil, err
				}
				templates = append(templates, versions...)
				version, err := fresh.ActiveVersion(stage)
				if err != nil {
					return nil, err
				}
				active[stage] = version
			}

			if err := s.registry.ReplaceAll(templates, active); err != nil {
				return nil, err
			}
			reloaded = true
		}
	}

	if err := s.rebuildConnectors(); err != nil {
		return nil, err
	}

	if err := s.cache.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush retrieval cache: %w", err)
	}
	s.presets.InvalidateListing()

	stages := make([]string, 0, len(prompt.AllStages()))
	for _, stage := range prompt.AllStages() {
		stages = append(stages, stage.String())
	}

	s.logger.Info("admin", "Pipeline refreshed", map[string]interface{}{
		"reloaded_from_store": reloaded,
	})

	return &dto.RefreshResponse{
		ReloadedFromStore: reloaded,
		Stages:            stages,
		CacheFlushed:      true,
	}, nil
}

func (s *adminService) ConfigureSources(ctx context.Context, req *dto.ConfigureSourcesRequest) (*dto.ConfigureSourcesResponse, error) {
	for id, on := range req.Sources {
		if err := s.fleet.SetEnabled(id, on); err != nil {
			return nil, fmt.Errorf("%w (registered: %s)", err, strings.Join(s.fleet.IDs(), ", "))
		}
	}
	s.orchestrator.SetConnectors(s.fleet.Active())

	s.logger.Info("admin", "Sources configured", map[string]interface{}{
		"sources": req.Sources,
	})

	return &dto.ConfigureSourcesResponse{Sources: s.fleet.States()}, nil
}

func (s *adminService) rebuildConnectors() error {
	connectors, err := s.buildConnectors()
	if err != nil {
		return fmt.Errorf("rebuild connectors: %w", err)
	}
	s.fleet.Replace(connectors)
	s.orchestrator.SetConnectors(s.fleet.Active())
	return nil
}
