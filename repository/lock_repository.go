package repository

import (
	"context"
	"errors"
	"time"

	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScheduleLockRepositoryImpl implements ScheduleLockRepository on a plain table
// with compare-and-swap style conditional writes. No in-memory state: runs are
// independent processes and the row is the single source of truth.
type ScheduleLockRepositoryImpl struct {
	db *gorm.DB
}

func NewScheduleLockRepository(db *gorm.DB) ScheduleLockRepository {
	return &ScheduleLockRepositoryImpl{db: db}
}

func (r *ScheduleLockRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// TryAcquire succeeds when no lock row exists or the existing one has expired.
// Insert and conditional takeover happen in one statement; zero rows affected
// means a live holder won. Never blocks.
func (r *ScheduleLockRepositoryImpl) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := utils.UTCNow()
	lock := models.ScheduleLock{
		Name:       name,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	db := r.getDB(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"holder":      holder,
			"acquired_at": now,
			"expires_at":  now.Add(ttl),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lte{Column: clause.Column{Table: "schedule_locks", Name: "expires_at"}, Value: now},
		}},
	}).Create(&lock)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// Release clears the lock only when the caller still holds it. A release by a
// stale token after an expiry takeover is a silent no-op.
func (r *ScheduleLockRepositoryImpl) Release(ctx context.Context, name, holder string) error {
	db := r.getDB(ctx)
	return db.Where("name = ? AND holder = ?", name, holder).
		Delete(&models.ScheduleLock{}).Error
}

func (r *ScheduleLockRepositoryImpl) Get(ctx context.Context, name string) (*models.ScheduleLock, error) {
	db := r.getDB(ctx)
	var row models.ScheduleLock
	if err := db.Where("name = ?", name).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
