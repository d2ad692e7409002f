package dto

import "time"

// --- Prompt Management ---

type PromptStageResponse struct {
	Stage         string   `json:"stage"`
	ActiveVersion string   `json:"active_version"`
	Preview       string   `json:"preview"`
	Versions      []string `json:"versions"`
}

type UpdatePromptRequest struct {
	Text string `json:"text" validate:"required,min=10"`
}

type UpdatePromptResponse struct {
	Stage         string `json:"stage"`
	ActiveVersion string `json:"active_version"`
	Preview       string `json:"preview"`
}

type ActivateVersionRequest struct {
	Version string `json:"version" validate:"required"`
}

// --- Presets ---

type SavePresetRequest struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
	// Prompts may be omitted; the current active texts are captured then.
	Prompts map[string]string `json:"prompts,omitempty"`
}

type PresetResponse struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	CreatedAt   time.Time         `json:"created_at"`
	Prompts     map[string]string `json:"prompts,omitempty"`
}

type ApplyPresetResponse struct {
	Name          string            `json:"name"`
	AppliedStages []string          `json:"applied_stages"`
	SkippedStages map[string]string `json:"skipped_stages,omitempty"`
}

// --- Source Toggles ---

type ConfigureSourcesRequest struct {
	Sources map[string]bool `json:"sources" validate:"required,min=1"`
}

type ConfigureSourcesResponse struct {
	Sources map[string]bool `json:"sources"`
}

// --- Refresh ---

type RefreshResponse struct {
	ReloadedFromStore bool     `json:"reloaded_from_store"`
	Stages            []string `json:"stages"`
	CacheFlushed      bool     `json:"cache_flushed"`
}
