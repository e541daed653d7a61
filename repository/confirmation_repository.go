package repository

import (
	"context"
	"time"

	"github.com/matchops/fixturecast/models"
	"gorm.io/gorm"
)

// DeliveryConfirmationRepositoryImpl implements DeliveryConfirmationRepository
type DeliveryConfirmationRepositoryImpl struct {
	*BaseRepository[models.DeliveryConfirmation, any]
}

func NewDeliveryConfirmationRepository(db *gorm.DB) DeliveryConfirmationRepository {
	return &DeliveryConfirmationRepositoryImpl{BaseRepository: NewBaseRepository[models.DeliveryConfirmation, any](db)}
}

func (r *DeliveryConfirmationRepositoryImpl) SaveBatch(ctx context.Context, confirmations []*models.DeliveryConfirmation) error {
	return r.BaseRepository.SaveBatch(ctx, confirmations)
}

func (r *DeliveryConfirmationRepositoryImpl) ExistsForLedger(ctx context.Context, ledgerID uint) (bool, error) {
	db := r.getDB(ctx)
	var count int64
	if err := db.Model(&models.DeliveryConfirmation{}).
		Where("ledger_id = ?", ledgerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountUnlinkedSince is the data-quality metric for correlation ambiguity
func (r *DeliveryConfirmationRepositoryImpl) CountUnlinkedSince(ctx context.Context, since time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := db.Model(&models.DeliveryConfirmation{}).
		Where("ledger_id IS NULL AND event_at >= ?", since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
