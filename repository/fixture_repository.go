package repository

import (
	"context"
	"errors"
	"time"

	"github.com/matchops/fixturecast/models"
	"gorm.io/gorm"
)

// FixtureRepositoryImpl implements FixtureRepository
type FixtureRepositoryImpl struct {
	*BaseRepository[models.Fixture, models.FixtureFilter]
}

func NewFixtureRepository(db *gorm.DB) FixtureRepository {
	return &FixtureRepositoryImpl{BaseRepository: NewBaseRepository[models.Fixture, models.FixtureFilter](db)}
}

func (r *FixtureRepositoryImpl) ByExternalID(ctx context.Context, externalID string) (*models.Fixture, error) {
	db := r.getDB(ctx)
	var row models.Fixture
	if err := db.Where("external_id = ?", externalID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListUpcoming returns not-yet-started fixtures with kickoff inside [from, to]
func (r *FixtureRepositoryImpl) ListUpcoming(ctx context.Context, from, to time.Time) ([]*models.Fixture, error) {
	db := r.getDB(ctx)
	var rows []*models.Fixture
	if err := db.Where("kickoff_at >= ? AND kickoff_at <= ? AND status IN ?",
		from, to, []models.FixtureStatus{models.FixtureStatusScheduled, models.FixtureStatusTimed}).
		Order("kickoff_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FixtureRepositoryImpl) applyFilter(db *gorm.DB, f models.FixtureFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ExternalID != nil {
		db = db.Where("external_id = ?", *f.ExternalID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Competition != nil {
		db = db.Where("competition = ?", *f.Competition)
	}
	if f.KickoffAfter != nil {
		db = db.Where("kickoff_at >= ?", *f.KickoffAfter)
	}
	if f.KickoffBefore != nil {
		db = db.Where("kickoff_at <= ?", *f.KickoffBefore)
	}
	if f.NotStarted != nil && *f.NotStarted {
		db = db.Where("status IN ?", []models.FixtureStatus{models.FixtureStatusScheduled, models.FixtureStatusTimed})
	}
	return db
}

func (r *FixtureRepositoryImpl) ByFilter(ctx context.Context, filter models.FixtureFilter, orderBy string, limit, offset int) ([]*models.Fixture, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Fixture{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Fixture
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FixtureRepositoryImpl) Count(ctx context.Context, filter models.FixtureFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Fixture{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *FixtureRepositoryImpl) Exists(ctx context.Context, filter models.FixtureFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
