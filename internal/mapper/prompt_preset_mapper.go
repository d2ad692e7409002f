package mapper

import (
	"encoding/json"
	"time"

	"mediquery-be/internal/entity"
	"mediquery-be/internal/model"

	"gorm.io/datatypes"
)

type PromptPresetMapper struct{}

func NewPromptPresetMapper() *PromptPresetMapper {
	return &PromptPresetMapper{}
}

func (m *PromptPresetMapper) ToEntity(p *model.PromptPreset) (*entity.PromptPreset, error) {
	if p == nil {
		return nil, nil
	}

	prompts := make(map[string]string)
	if len(p.Prompts) > 0 {
		if err := json.Unmarshal(p.Prompts, &prompts); err != nil {
			return nil, err
		}
	}

	var updatedAt *time.Time
	if !p.UpdatedAt.IsZero() {
		t := p.UpdatedAt
		updatedAt = &t
	}

	return &entity.PromptPreset{
		Id:          p.Id,
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Prompts:     prompts,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func (m *PromptPresetMapper) ToModel(p *entity.PromptPreset) (*model.PromptPreset, error) {
	if p == nil {
		return nil, nil
	}

	raw, err := json.Marshal(p.Prompts)
	if err != nil {
		return nil, err
	}

	var updatedAt time.Time
	if p.UpdatedAt != nil {
		updatedAt = *p.UpdatedAt
	}

	return &model.PromptPreset{
		Id:          p.Id,
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Prompts:     datatypes.JSON(raw),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   updatedAt,
	}, nil
}
