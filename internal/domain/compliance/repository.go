package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RuleRepository defines the interface for penalty rule persistence.
// Rules are written by administrators out of band; the engine side is
// read-only.
type RuleRepository interface {
	// GetByID retrieves a rule by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*PenaltyRule, error)

	// FindActive retrieves all rules in force for a tax type on a date
	FindActive(ctx context.Context, taxType TaxType, asOf time.Time) ([]*PenaltyRule, error)

	// FindByRuleSetVersion retrieves a historical rule set, enabling
	// re-evaluation under the provisions in force at the time
	FindByRuleSetVersion(ctx context.Context, version string) ([]*PenaltyRule, error)

	// SaveAll replaces the stored rules for a rule-set version
	SaveAll(ctx context.Context, rules []*PenaltyRule) error
}

// TrackerRepository defines the interface for compliance tracker
// persistence.
type TrackerRepository interface {
	// GetByID retrieves a tracker by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Tracker, error)

	// ListIDs returns all tracker IDs, for batch partitioning
	ListIDs(ctx context.Context) ([]uuid.UUID, error)

	// Save persists a tracker. Returns ErrStaleTrackerVersion when the
	// stored version no longer matches the tracker's, in which case the
	// caller reloads and retries.
	Save(ctx context.Context, tracker *Tracker) error
}

// PenaltyRepository defines the interface for penalty ledger persistence.
type PenaltyRepository interface {
	// FindByTracker retrieves all penalties on a tracker's ledger,
	// oldest first
	FindByTracker(ctx context.Context, trackerID uuid.UUID) ([]Penalty, error)

	// ReplaceForTracker persists the reconciled ledger for a tracker
	ReplaceForTracker(ctx context.Context, trackerID uuid.UUID, penalties []Penalty) error
}

// Notifier consumes the alerts and actions an evaluation emits. Delivery
// (SMS, email, in-app) lives entirely behind this interface.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert, actions []Action) error
}
