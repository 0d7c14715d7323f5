package compliance

import (
	"time"

	"github.com/google/uuid"
)

// Tracker is the persisted root for one obligation's compliance state:
// the obligation snapshot, its last evaluation result, and the optimistic
// concurrency version that serializes recomputation against payment
// events. The engine never sees a Tracker; callers unwrap the snapshot.
type Tracker struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`

	Obligation Obligation `json:"obligation"`
	LastResult *Result    `json:"last_result,omitempty"`

	// Version increments on every persisted change. A stale version on
	// write means a concurrent payment or evaluation won; the caller
	// reloads and retries.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTracker creates a tracker for an obligation
func NewTracker(clientID uuid.UUID, obligation Obligation) *Tracker {
	now := time.Now().UTC()
	id := obligation.TrackerID
	if id == uuid.Nil {
		id = uuid.New()
		obligation.TrackerID = id
	}
	return &Tracker{
		ID:         id,
		ClientID:   clientID,
		Obligation: obligation,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// PreviousStatus returns the status of the last evaluation, or Compliant
// for a tracker that has never been evaluated.
func (t *Tracker) PreviousStatus() ComplianceStatus {
	if t.LastResult == nil {
		return StatusCompliant
	}
	return t.LastResult.Status
}
