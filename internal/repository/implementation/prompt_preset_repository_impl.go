package implementation

import (
	"context"
	"errors"

	"mediquery-be/internal/entity"
	"mediquery-be/internal/mapper"
	"mediquery-be/internal/model"
	"mediquery-be/internal/repository/contract"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Postgres unique_violation, raised by the unique index on name.
const pgUniqueViolation = "23505"

type PromptPresetRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PromptPresetMapper
}

func NewPromptPresetRepository(db *gorm.DB) contract.PromptPresetRepository {
	return &PromptPresetRepositoryImpl{
		db:     db,
		mapper: mapper.NewPromptPresetMapper(),
	}
}

func (r *PromptPresetRepositoryImpl) Create(ctx context.Context, preset *entity.PromptPreset) error {
	m, err := r.mapper.ToModel(preset)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return contract.ErrDuplicateName
		}
		return err
	}
	mapped, err := r.mapper.ToEntity(m)
	if err != nil {
		return err
	}
	*preset = *mapped
	return nil
}

func (r *PromptPresetRepositoryImpl) Update(ctx context.Context, preset *entity.PromptPreset) error {
	m, err := r.mapper.ToModel(preset)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	mapped, err := r.mapper.ToEntity(m)
	if err != nil {
		return err
	}
	*preset = *mapped
	return nil
}

func (r *PromptPresetRepositoryImpl) FindByName(ctx context.Context, name string) (*entity.PromptPreset, error) {
	var m model.PromptPreset
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m)
}

func (r *PromptPresetRepositoryImpl) FindAllNewestFirst(ctx context.Context) ([]entity.PromptPreset, error) {
	var models []model.PromptPreset
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	presets := make([]entity.PromptPreset, 0, len(models))
	for i := range models {
		e, err := r.mapper.ToEntity(&models[i])
		if err != nil {
			return nil, err
		}
		presets = append(presets, *e)
	}
	return presets, nil
}

func (r *PromptPresetRepositoryImpl) DeleteByName(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Where("name = ?", name).Delete(&model.PromptPreset{}).Error
}

func (r *PromptPresetRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PromptPreset{}).Count(&count).Error
	return count, err
}
