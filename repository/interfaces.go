// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/matchops/fixturecast/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrDuplicateActiveEntry is returned by Reserve when another run already holds
// the non-terminal ledger row for the fixture
var ErrDuplicateActiveEntry = errors.New("active ledger entry already exists for fixture")

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// FixtureRepository defines read operations over the external fixture feed table
type FixtureRepository interface {
	Repository[models.Fixture, models.FixtureFilter]
	ByExternalID(ctx context.Context, externalID string) (*models.Fixture, error)
	ListUpcoming(ctx context.Context, from, to time.Time) ([]*models.Fixture, error)
}

// LedgerSentUpdate carries one conditional pending-to-sent transition
type LedgerSentUpdate struct {
	LedgerID   uint
	DispatchID *string
	SendID     *string
}

// NotificationLedgerRepository defines operations for the notification ledger
type NotificationLedgerRepository interface {
	Repository[models.NotificationLedger, models.NotificationLedgerFilter]
	ActiveByFixtureID(ctx context.Context, fixtureID uint) (*models.NotificationLedger, error)
	ByRemoteScheduleID(ctx context.Context, remoteID string) (*models.NotificationLedger, error)
	// Reserve inserts a placeholder row; returns ErrDuplicateActiveEntry when the
	// partial unique index rejects it
	Reserve(ctx context.Context, entry *models.NotificationLedger) error
	PromoteRemoteID(ctx context.Context, ledgerID uint, remoteID string) error
	UpdateConvergence(ctx context.Context, ledgerID uint, signature string, sendAt time.Time, audienceKeys []string) error
	DeleteByID(ctx context.Context, ledgerID uint) error
	// CancelByID moves a still-pending row to cancelled, releasing the
	// per-fixture uniqueness constraint
	CancelByID(ctx context.Context, ledgerID uint) error
	ListPending(ctx context.Context) ([]*models.NotificationLedger, error)
	ListActive(ctx context.Context) ([]*models.NotificationLedger, error)
	// CandidatesForCorrelation returns in one query every entry matching any of
	// the correlation ids or whose send instant falls inside [windowStart, windowEnd]
	CandidatesForCorrelation(ctx context.Context, dispatchIDs, sendIDs []string, windowStart, windowEnd time.Time) ([]*models.NotificationLedger, error)
	// MarkSentIfPending applies each transition only when the row is still pending
	MarkSentIfPending(ctx context.Context, updates []LedgerSentUpdate) error
	MarkSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeTerminalOlderThan(ctx context.Context, horizon time.Time) (int64, error)
}

// ScheduleLockRepository defines the conditional-write lock primitive
type ScheduleLockRepository interface {
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
	Get(ctx context.Context, name string) (*models.ScheduleLock, error)
}

// DeliveryConfirmationRepository defines operations for delivery confirmations
type DeliveryConfirmationRepository interface {
	SaveBatch(ctx context.Context, confirmations []*models.DeliveryConfirmation) error
	ExistsForLedger(ctx context.Context, ledgerID uint) (bool, error)
	CountUnlinkedSince(ctx context.Context, since time.Time) (int64, error)
}

// RunOutcomeRepository defines operations for the append-only outcome log
type RunOutcomeRepository interface {
	Save(ctx context.Context, outcome *models.RunOutcome) error
	SaveBatch(ctx context.Context, outcomes []*models.RunOutcome) error
	ByFilter(ctx context.Context, filter models.RunOutcomeFilter, orderBy string, limit, offset int) ([]*models.RunOutcome, error)
}

// NotableParticipantRepository defines operations for the notable-participant set
type NotableParticipantRepository interface {
	ListActive(ctx context.Context) ([]*models.NotableParticipant, error)
	Save(ctx context.Context, participant *models.NotableParticipant) error
}

// ParticipantAliasRepository defines operations for the canonicalization table
type ParticipantAliasRepository interface {
	ListAll(ctx context.Context) ([]*models.ParticipantAlias, error)
	Save(ctx context.Context, alias *models.ParticipantAlias) error
}

// TranslationRepository defines operations for localized participant names
type TranslationRepository interface {
	BySourceName(ctx context.Context, sourceName string) (*models.Translation, error)
	Save(ctx context.Context, translation *models.Translation) error
}
