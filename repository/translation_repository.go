package repository

import (
	"context"
	"errors"

	"github.com/matchops/fixturecast/models"
	"gorm.io/gorm"
)

// TranslationRepositoryImpl implements TranslationRepository
type TranslationRepositoryImpl struct {
	*BaseRepository[models.Translation, any]
}

func NewTranslationRepository(db *gorm.DB) TranslationRepository {
	return &TranslationRepositoryImpl{BaseRepository: NewBaseRepository[models.Translation, any](db)}
}

func (r *TranslationRepositoryImpl) BySourceName(ctx context.Context, sourceName string) (*models.Translation, error) {
	db := r.getDB(ctx)
	var row models.Translation
	if err := db.Where("source_name = ?", sourceName).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *TranslationRepositoryImpl) Save(ctx context.Context, translation *models.Translation) error {
	return r.BaseRepository.Save(ctx, translation)
}
