package compliance

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// penaltyNamespace seeds deterministic penalty IDs. Recomputing the same
// penalty for the same tracker always yields the same ID, which is what
// lets the ledger replace instances instead of duplicating them.
var penaltyNamespace = uuid.MustParse("7b8a1f3c-9d42-4e6a-b0c5-2f1e8d7a6b94")

// Penalty is one accrued penalty instance on a tracker's ledger.
type Penalty struct {
	ID        uuid.UUID `json:"id"`
	TrackerID uuid.UUID `json:"tracker_id"`
	RuleID    uuid.UUID `json:"rule_id"`

	PenaltyType PenaltyType `json:"penalty_type"`

	Amount      values.Money `json:"amount"`
	BaseAmount  values.Money `json:"base_amount"`
	RateApplied *values.Rate `json:"rate_applied,omitempty"`
	DaysOverdue int          `json:"days_overdue"`

	AmountPaid   values.Money `json:"amount_paid"`
	Waived       bool         `json:"waived"`
	WaiverReason string       `json:"waiver_reason,omitempty"`

	PenaltyDate time.Time `json:"penalty_date"`
	DueDate     time.Time `json:"due_date"`

	// Breakdown records every computation step so the amount can be
	// audited without rerunning the engine.
	Breakdown string `json:"breakdown"`
}

// PenaltyKey identifies a penalty across recomputations.
type PenaltyKey struct {
	RuleID      uuid.UUID
	PenaltyType PenaltyType
	DueDate     string // date-only, UTC
}

// Key returns the identity used by the ledger to match fresh computations
// against existing instances.
func (p *Penalty) Key() PenaltyKey {
	return PenaltyKey{
		RuleID:      p.RuleID,
		PenaltyType: p.PenaltyType,
		DueDate:     p.DueDate.UTC().Format("2006-01-02"),
	}
}

// DeterministicPenaltyID derives the penalty ID from its ledger identity.
// No randomness: identical inputs must yield byte-identical results.
func DeterministicPenaltyID(trackerID uuid.UUID, key PenaltyKey) uuid.UUID {
	seed := fmt.Sprintf("%s|%s|%s|%s", trackerID, key.RuleID, key.PenaltyType, key.DueDate)
	return uuid.NewSHA1(penaltyNamespace, []byte(seed))
}

// Outstanding is the unpaid part of the penalty. Waived penalties keep
// their amount for the record but owe nothing.
func (p *Penalty) Outstanding() values.Money {
	if p.Waived {
		return values.Zero(p.Amount.Currency())
	}
	diff, err := p.Amount.Sub(p.AmountPaid)
	if err != nil || diff.IsNegative() {
		return values.Zero(p.Amount.Currency())
	}
	return diff
}

// IsSettled reports whether the penalty is immune to recomputation: fully
// paid or administratively waived.
func (p *Penalty) IsSettled() bool {
	return p.Waived || p.AmountPaid.Compare(p.Amount) >= 0
}

// ApplyPayment credits up to the outstanding amount against the penalty
// and returns what was actually applied. The remainder stays with the
// caller for allocation to the next penalty.
func (p *Penalty) ApplyPayment(payment values.Money) (values.Money, error) {
	if !payment.IsPositive() {
		return values.Money{}, errors.ErrNegativePayment
	}
	if payment.Currency() != p.Amount.Currency() {
		return values.Money{}, errors.ErrCurrencyMismatch
	}

	outstanding := p.Outstanding()
	applied := payment
	if applied.Compare(outstanding) > 0 {
		applied = outstanding
	}
	if applied.IsZero() {
		return values.Zero(p.Amount.Currency()), nil
	}

	paid, err := p.AmountPaid.Add(applied)
	if err != nil {
		return values.Money{}, err
	}
	p.AmountPaid = paid
	return applied, nil
}

// Waive cancels the penalty's liability without payment. The amount is
// kept unchanged for the audit trail.
func (p *Penalty) Waive(reason string) error {
	if p.Waived {
		return errors.NewConflictError("penalty is already waived")
	}
	if reason == "" {
		return errors.NewValidationError("MISSING_WAIVER_REASON", "A waiver requires a reason")
	}
	p.Waived = true
	p.WaiverReason = reason
	return nil
}
