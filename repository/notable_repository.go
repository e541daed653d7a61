package repository

import (
	"context"

	"github.com/matchops/fixturecast/models"
	"gorm.io/gorm"
)

// NotableParticipantRepositoryImpl implements NotableParticipantRepository
type NotableParticipantRepositoryImpl struct {
	*BaseRepository[models.NotableParticipant, any]
}

func NewNotableParticipantRepository(db *gorm.DB) NotableParticipantRepository {
	return &NotableParticipantRepositoryImpl{BaseRepository: NewBaseRepository[models.NotableParticipant, any](db)}
}

func (r *NotableParticipantRepositoryImpl) ListActive(ctx context.Context) ([]*models.NotableParticipant, error) {
	db := r.getDB(ctx)
	var rows []*models.NotableParticipant
	if err := db.Where("is_active = ?", true).
		Order("canonical_name ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotableParticipantRepositoryImpl) Save(ctx context.Context, participant *models.NotableParticipant) error {
	return r.BaseRepository.Save(ctx, participant)
}
