package repository

import (
	"context"

	"github.com/matchops/fixturecast/models"
	"gorm.io/gorm"
)

// RunOutcomeRepositoryImpl implements RunOutcomeRepository
type RunOutcomeRepositoryImpl struct {
	*BaseRepository[models.RunOutcome, models.RunOutcomeFilter]
}

func NewRunOutcomeRepository(db *gorm.DB) RunOutcomeRepository {
	return &RunOutcomeRepositoryImpl{BaseRepository: NewBaseRepository[models.RunOutcome, models.RunOutcomeFilter](db)}
}

func (r *RunOutcomeRepositoryImpl) Save(ctx context.Context, outcome *models.RunOutcome) error {
	return r.BaseRepository.Save(ctx, outcome)
}

func (r *RunOutcomeRepositoryImpl) SaveBatch(ctx context.Context, outcomes []*models.RunOutcome) error {
	return r.BaseRepository.SaveBatch(ctx, outcomes)
}

func (r *RunOutcomeRepositoryImpl) applyFilter(db *gorm.DB, f models.RunOutcomeFilter) *gorm.DB {
	if f.RunName != nil {
		db = db.Where("run_name = ?", *f.RunName)
	}
	if f.FixtureID != nil {
		db = db.Where("fixture_id = ?", *f.FixtureID)
	}
	if f.Outcome != nil {
		db = db.Where("outcome = ?", *f.Outcome)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *RunOutcomeRepositoryImpl) ByFilter(ctx context.Context, filter models.RunOutcomeFilter, orderBy string, limit, offset int) ([]*models.RunOutcome, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.RunOutcome{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.RunOutcome
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
