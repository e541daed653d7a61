package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/matchops/fixturecast/models"
	"github.com/matchops/fixturecast/utils"
	"gorm.io/gorm"
)

var activeStatuses = []models.LedgerStatus{models.LedgerStatusPending, models.LedgerStatusSent}

// NotificationLedgerRepositoryImpl implements NotificationLedgerRepository
type NotificationLedgerRepositoryImpl struct {
	*BaseRepository[models.NotificationLedger, models.NotificationLedgerFilter]
}

func NewNotificationLedgerRepository(db *gorm.DB) NotificationLedgerRepository {
	return &NotificationLedgerRepositoryImpl{BaseRepository: NewBaseRepository[models.NotificationLedger, models.NotificationLedgerFilter](db)}
}

func (r *NotificationLedgerRepositoryImpl) ActiveByFixtureID(ctx context.Context, fixtureID uint) (*models.NotificationLedger, error) {
	db := r.getDB(ctx)
	var row models.NotificationLedger
	if err := db.Where("fixture_id = ? AND status IN ?", fixtureID, activeStatuses).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *NotificationLedgerRepositoryImpl) ByRemoteScheduleID(ctx context.Context, remoteID string) (*models.NotificationLedger, error) {
	db := r.getDB(ctx)
	var row models.NotificationLedger
	if err := db.Where("remote_schedule_id = ?", remoteID).Last(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Reserve inserts a placeholder entry under the partial unique index. A
// duplicate-key error means another run holds the reservation; the caller
// treats that as "already being handled".
func (r *NotificationLedgerRepositoryImpl) Reserve(ctx context.Context, entry *models.NotificationLedger) error {
	db := r.getDB(ctx)
	if err := db.Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateActiveEntry
		}
		return err
	}
	return nil
}

func (r *NotificationLedgerRepositoryImpl) PromoteRemoteID(ctx context.Context, ledgerID uint, remoteID string) error {
	db := r.getDB(ctx)
	return db.Model(&models.NotificationLedger{}).
		Where("id = ?", ledgerID).
		Updates(map[string]any{
			"remote_schedule_id": remoteID,
			"updated_at":         utils.UTCNow(),
		}).Error
}

func (r *NotificationLedgerRepositoryImpl) UpdateConvergence(ctx context.Context, ledgerID uint, signature string, sendAt time.Time, audienceKeys []string) error {
	db := r.getDB(ctx)
	return db.Model(&models.NotificationLedger{}).
		Where("id = ?", ledgerID).
		Updates(map[string]any{
			"signature":     signature,
			"send_at":       sendAt,
			"audience_keys": pq.StringArray(audienceKeys),
			"updated_at":    utils.UTCNow(),
		}).Error
}

func (r *NotificationLedgerRepositoryImpl) DeleteByID(ctx context.Context, ledgerID uint) error {
	db := r.getDB(ctx)
	return db.Delete(&models.NotificationLedger{}, ledgerID).Error
}

// CancelByID moves a still-pending entry to cancelled; a row that already left
// pending is not touched
func (r *NotificationLedgerRepositoryImpl) CancelByID(ctx context.Context, ledgerID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.NotificationLedger{}).
		Where("id = ? AND status = ?", ledgerID, models.LedgerStatusPending).
		Updates(map[string]any{
			"status":     models.LedgerStatusCancelled,
			"updated_at": utils.UTCNow(),
		}).Error
}

func (r *NotificationLedgerRepositoryImpl) ListPending(ctx context.Context) ([]*models.NotificationLedger, error) {
	db := r.getDB(ctx)
	var rows []*models.NotificationLedger
	if err := db.Where("status = ?", models.LedgerStatusPending).
		Order("send_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotificationLedgerRepositoryImpl) ListActive(ctx context.Context) ([]*models.NotificationLedger, error) {
	db := r.getDB(ctx)
	var rows []*models.NotificationLedger
	if err := db.Where("status IN ?", activeStatuses).
		Order("send_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CandidatesForCorrelation fetches every entry a webhook batch could resolve to
// with one query: direct correlation-id matches plus the send-time window.
// Cancelled rows never absorb a delivery event and are excluded.
func (r *NotificationLedgerRepositoryImpl) CandidatesForCorrelation(ctx context.Context, dispatchIDs, sendIDs []string, windowStart, windowEnd time.Time) ([]*models.NotificationLedger, error) {
	db := r.getDB(ctx)
	match := db.Where("send_at >= ? AND send_at <= ?", windowStart, windowEnd)
	if len(dispatchIDs) > 0 {
		match = match.Or("remote_dispatch_id IN ?", dispatchIDs)
	}
	if len(sendIDs) > 0 {
		match = match.Or("remote_send_id IN ?", sendIDs)
	}

	var rows []*models.NotificationLedger
	if err := db.Model(&models.NotificationLedger{}).
		Where("status <> ?", models.LedgerStatusCancelled).
		Where(match).
		Order("send_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkSentIfPending transitions each entry to sent only if it is still pending,
// so re-delivered webhook events are harmless no-ops
func (r *NotificationLedgerRepositoryImpl) MarkSentIfPending(ctx context.Context, updates []LedgerSentUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	now := utils.UTCNow()
	for _, u := range updates {
		values := map[string]any{
			"status":     models.LedgerStatusSent,
			"updated_at": now,
		}
		if u.DispatchID != nil {
			values["remote_dispatch_id"] = *u.DispatchID
		}
		if u.SendID != nil {
			values["remote_send_id"] = *u.SendID
		}
		if err = db.Model(&models.NotificationLedger{}).
			Where("id = ? AND status = ?", u.LedgerID, models.LedgerStatusPending).
			Updates(values).Error; err != nil {
			return err
		}
	}
	return nil
}

// MarkSentBefore transitions pending entries whose send instant has passed,
// preserving them for audit instead of deleting
func (r *NotificationLedgerRepositoryImpl) MarkSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.NotificationLedger{}).
		Where("status = ? AND send_at < ?", models.LedgerStatusPending, cutoff).
		Updates(map[string]any{
			"status":     models.LedgerStatusSent,
			"updated_at": utils.UTCNow(),
		})
	return res.RowsAffected, res.Error
}

// PurgeTerminalOlderThan physically deletes sent/cancelled entries whose send
// instant is older than the retention horizon
func (r *NotificationLedgerRepositoryImpl) PurgeTerminalOlderThan(ctx context.Context, horizon time.Time) (int64, error) {
	db := r.getDB(ctx)
	res := db.Where("status IN ? AND send_at < ?",
		[]models.LedgerStatus{models.LedgerStatusSent, models.LedgerStatusCancelled}, horizon).
		Delete(&models.NotificationLedger{})
	return res.RowsAffected, res.Error
}

func (r *NotificationLedgerRepositoryImpl) applyFilter(db *gorm.DB, f models.NotificationLedgerFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.FixtureID != nil {
		db = db.Where("fixture_id = ?", *f.FixtureID)
	}
	if f.RemoteScheduleID != nil {
		db = db.Where("remote_schedule_id = ?", *f.RemoteScheduleID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.SendAfter != nil {
		db = db.Where("send_at >= ?", *f.SendAfter)
	}
	if f.SendBefore != nil {
		db = db.Where("send_at < ?", *f.SendBefore)
	}
	return db
}

func (r *NotificationLedgerRepositoryImpl) ByFilter(ctx context.Context, filter models.NotificationLedgerFilter, orderBy string, limit, offset int) ([]*models.NotificationLedger, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.NotificationLedger{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.NotificationLedger
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *NotificationLedgerRepositoryImpl) Count(ctx context.Context, filter models.NotificationLedgerFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.NotificationLedger{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *NotificationLedgerRepositoryImpl) Exists(ctx context.Context, filter models.NotificationLedgerFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
