package evaluation

import (
	"sort"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// LedgerTotals summarizes one tracker's penalty position. The
// conservation invariant TotalOwed - TotalPaid == Outstanding (floored at
// zero) holds for every Reconcile output; waived penalties are excluded
// from all three.
type LedgerTotals struct {
	TotalOwed   values.Money `json:"total_owed"`
	TotalPaid   values.Money `json:"total_paid"`
	Outstanding values.Money `json:"outstanding"`
}

// Ledger reconciles freshly computed penalties against a tracker's
// existing ledger. Stateless; the merged slice and totals are the only
// output.
type Ledger struct{}

// NewLedger creates a penalty ledger
func NewLedger() *Ledger {
	return &Ledger{}
}

// Reconcile merges fresh computations into the existing ledger. Identity
// is (ruleID, penaltyType, dueDate): a fresh computation replaces an
// unsettled instance of the same key (rules change over time) but never
// touches its paid amount or waiver state, and a settled instance is
// immutable. Existing penalties with no fresh counterpart stay on the
// ledger. Output order is oldest penalty date first, then ID, so repeated
// reconciliation is byte-stable.
func (l *Ledger) Reconcile(existing, fresh []compliance.Penalty, currency string) ([]compliance.Penalty, LedgerTotals) {
	byKey := make(map[compliance.PenaltyKey]int, len(existing))
	merged := make([]compliance.Penalty, len(existing))
	copy(merged, existing)
	for i := range merged {
		byKey[merged[i].Key()] = i
	}

	for _, f := range fresh {
		idx, ok := byKey[f.Key()]
		if !ok {
			merged = append(merged, f)
			byKey[f.Key()] = len(merged) - 1
			continue
		}

		prior := merged[idx]
		if prior.IsSettled() {
			continue
		}

		f.AmountPaid = prior.AmountPaid
		f.Waived = prior.Waived
		f.WaiverReason = prior.WaiverReason
		merged[idx] = f
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].PenaltyDate.Equal(merged[j].PenaltyDate) {
			return merged[i].PenaltyDate.Before(merged[j].PenaltyDate)
		}
		return merged[i].ID.String() < merged[j].ID.String()
	})

	return merged, l.Totals(merged, currency)
}

// Totals computes the conservation totals over a ledger
func (l *Ledger) Totals(penalties []compliance.Penalty, currency string) LedgerTotals {
	owed := values.Zero(currency)
	paid := values.Zero(currency)

	for i := range penalties {
		p := &penalties[i]
		if p.Waived {
			continue
		}
		owed, _ = owed.Add(p.Amount)
		paid, _ = paid.Add(p.AmountPaid)
	}

	outstanding, err := owed.Sub(paid)
	if err != nil || outstanding.IsNegative() {
		outstanding = values.Zero(currency)
	}

	return LedgerTotals{
		TotalOwed:   owed,
		TotalPaid:   paid,
		Outstanding: outstanding,
	}
}

// ApplyPayment allocates a payment across the ledger oldest penalty first
// (FIFO by penalty date). Returns the amount actually absorbed; any
// remainder beyond the total outstanding stays with the caller, typically
// to credit against the tax liability itself.
func (l *Ledger) ApplyPayment(penalties []compliance.Penalty, payment values.Money) ([]compliance.Penalty, values.Money, error) {
	if !payment.IsPositive() {
		return nil, values.Money{}, errors.ErrNegativePayment
	}

	out := make([]compliance.Penalty, len(penalties))
	copy(out, penalties)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PenaltyDate.Equal(out[j].PenaltyDate) {
			return out[i].PenaltyDate.Before(out[j].PenaltyDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	remaining := payment
	absorbed := values.Zero(payment.Currency())

	for i := range out {
		if !remaining.IsPositive() {
			break
		}
		if out[i].IsSettled() {
			continue
		}

		applied, err := out[i].ApplyPayment(remaining)
		if err != nil {
			return nil, values.Money{}, err
		}

		remaining, err = remaining.Sub(applied)
		if err != nil {
			return nil, values.Money{}, err
		}
		absorbed, err = absorbed.Add(applied)
		if err != nil {
			return nil, values.Money{}, err
		}
	}

	return out, absorbed, nil
}
