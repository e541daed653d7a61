package repository

import (
	"context"

	"github.com/matchops/fixturecast/models"
	"gorm.io/gorm"
)

// ParticipantAliasRepositoryImpl implements ParticipantAliasRepository
type ParticipantAliasRepositoryImpl struct {
	*BaseRepository[models.ParticipantAlias, any]
}

func NewParticipantAliasRepository(db *gorm.DB) ParticipantAliasRepository {
	return &ParticipantAliasRepositoryImpl{BaseRepository: NewBaseRepository[models.ParticipantAlias, any](db)}
}

// ListAll returns aliases with the most specific (longest) patterns first so
// the pure matcher can consult them in order
func (r *ParticipantAliasRepositoryImpl) ListAll(ctx context.Context) ([]*models.ParticipantAlias, error) {
	db := r.getDB(ctx)
	var rows []*models.ParticipantAlias
	if err := db.Order("LENGTH(pattern) DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ParticipantAliasRepositoryImpl) Save(ctx context.Context, alias *models.ParticipantAlias) error {
	return r.BaseRepository.Save(ctx, alias)
}
