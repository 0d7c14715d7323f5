package evaluation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

func ledgerPenalty(ruleID uuid.UUID, penaltyType compliance.PenaltyType, amount float64, penaltyDate time.Time) compliance.Penalty {
	trackerID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	p := compliance.Penalty{
		TrackerID:   trackerID,
		RuleID:      ruleID,
		PenaltyType: penaltyType,
		Amount:      values.MustNewMoneyFromFloat(amount, values.SLE),
		BaseAmount:  values.MustNewMoneyFromFloat(100000, values.SLE),
		AmountPaid:  values.Zero(values.SLE),
		PenaltyDate: penaltyDate,
		DueDate:     date(2024, 1, 31),
	}
	p.ID = compliance.DeterministicPenaltyID(trackerID, p.Key())
	return p
}

func TestReconcileReplacesUnsettled(t *testing.T) {
	ledger := NewLedger()
	ruleID := uuid.New()

	existing := ledgerPenalty(ruleID, compliance.PenaltyTypeLateFiling, 5000, date(2024, 3, 1))
	existing.AmountPaid = values.MustNewMoneyFromFloat(1000, values.SLE)

	// recomputed under an updated rule: amount changed, payment survives
	fresh := ledgerPenalty(ruleID, compliance.PenaltyTypeLateFiling, 6000, date(2024, 4, 1))

	merged, totals := ledger.Reconcile(
		[]compliance.Penalty{existing}, []compliance.Penalty{fresh}, values.SLE)

	require.Len(t, merged, 1)
	assert.Equal(t, "6000.00 SLE", merged[0].Amount.String())
	assert.Equal(t, "1000.00 SLE", merged[0].AmountPaid.String())
	assert.Equal(t, "6000.00 SLE", totals.TotalOwed.String())
	assert.Equal(t, "5000.00 SLE", totals.Outstanding.String())
}

func TestReconcileSettledIsImmutable(t *testing.T) {
	ledger := NewLedger()
	paidRule := uuid.New()
	waivedRule := uuid.New()

	paid := ledgerPenalty(paidRule, compliance.PenaltyTypeLateFiling, 5000, date(2024, 3, 1))
	paid.AmountPaid = paid.Amount

	waived := ledgerPenalty(waivedRule, compliance.PenaltyTypeLatePayment, 2000, date(2024, 3, 1))
	require.NoError(t, waived.Waive("appeal upheld"))

	fresh := []compliance.Penalty{
		ledgerPenalty(paidRule, compliance.PenaltyTypeLateFiling, 9000, date(2024, 4, 1)),
		ledgerPenalty(waivedRule, compliance.PenaltyTypeLatePayment, 9000, date(2024, 4, 1)),
	}

	merged, totals := ledger.Reconcile([]compliance.Penalty{paid, waived}, fresh, values.SLE)

	require.Len(t, merged, 2)
	for _, p := range merged {
		assert.NotEqual(t, "9000.00 SLE", p.Amount.String())
	}

	// waived penalties drop out of all totals
	assert.Equal(t, "5000.00 SLE", totals.TotalOwed.String())
	assert.Equal(t, "5000.00 SLE", totals.TotalPaid.String())
	assert.True(t, totals.Outstanding.IsZero())
}

func TestReconcileKeepsHistoricalPenalties(t *testing.T) {
	ledger := NewLedger()

	historical := ledgerPenalty(uuid.New(), compliance.PenaltyTypeNonFiling, 3000, date(2024, 2, 1))
	fresh := ledgerPenalty(uuid.New(), compliance.PenaltyTypeLatePayment, 2000, date(2024, 4, 1))

	merged, totals := ledger.Reconcile(
		[]compliance.Penalty{historical}, []compliance.Penalty{fresh}, values.SLE)

	require.Len(t, merged, 2)
	assert.Equal(t, "5000.00 SLE", totals.TotalOwed.String())

	// oldest first
	assert.Equal(t, compliance.PenaltyTypeNonFiling, merged[0].PenaltyType)
}

func TestReconcileConservation(t *testing.T) {
	ledger := NewLedger()

	penalties := []compliance.Penalty{
		ledgerPenalty(uuid.New(), compliance.PenaltyTypeLateFiling, 5000, date(2024, 2, 1)),
		ledgerPenalty(uuid.New(), compliance.PenaltyTypeLatePayment, 2000, date(2024, 3, 1)),
	}
	penalties[0].AmountPaid = values.MustNewMoneyFromFloat(1500, values.SLE)

	merged, totals := ledger.Reconcile(penalties, nil, values.SLE)

	diff, err := totals.TotalOwed.Sub(totals.TotalPaid)
	require.NoError(t, err)
	assert.True(t, diff.Equal(totals.Outstanding))
	assert.False(t, totals.Outstanding.IsNegative())
	assert.Len(t, merged, 2)
}

// Scenario: a payment of 3,000 against penalties of 2,000 and 4,000
// (oldest first): the first settles in full, the second drops to 3,000
// outstanding.
func TestApplyPaymentFIFO(t *testing.T) {
	ledger := NewLedger()

	older := ledgerPenalty(uuid.New(), compliance.PenaltyTypeLateFiling, 2000, date(2024, 2, 1))
	newer := ledgerPenalty(uuid.New(), compliance.PenaltyTypeLatePayment, 4000, date(2024, 3, 1))

	// order handed in does not matter, penalty date does
	out, absorbed, err := ledger.ApplyPayment(
		[]compliance.Penalty{newer, older},
		values.MustNewMoneyFromFloat(3000, values.SLE))
	require.NoError(t, err)

	assert.Equal(t, "3000.00 SLE", absorbed.String())
	require.Len(t, out, 2)
	assert.True(t, out[0].IsSettled())
	assert.True(t, out[0].Outstanding().IsZero())
	assert.Equal(t, "3000.00 SLE", out[1].Outstanding().String())
}

func TestApplyPaymentOverpayment(t *testing.T) {
	ledger := NewLedger()

	only := ledgerPenalty(uuid.New(), compliance.PenaltyTypeLateFiling, 2000, date(2024, 2, 1))

	out, absorbed, err := ledger.ApplyPayment(
		[]compliance.Penalty{only},
		values.MustNewMoneyFromFloat(5000, values.SLE))
	require.NoError(t, err)

	// only the outstanding 2,000 is absorbed; the rest is the caller's
	assert.Equal(t, "2000.00 SLE", absorbed.String())
	assert.True(t, out[0].IsSettled())
}

func TestApplyPaymentSkipsWaived(t *testing.T) {
	ledger := NewLedger()

	waived := ledgerPenalty(uuid.New(), compliance.PenaltyTypeLateFiling, 2000, date(2024, 2, 1))
	require.NoError(t, waived.Waive("relief granted"))
	open := ledgerPenalty(uuid.New(), compliance.PenaltyTypeLatePayment, 4000, date(2024, 3, 1))

	out, absorbed, err := ledger.ApplyPayment(
		[]compliance.Penalty{waived, open},
		values.MustNewMoneyFromFloat(1000, values.SLE))
	require.NoError(t, err)

	assert.Equal(t, "1000.00 SLE", absorbed.String())
	assert.True(t, out[0].AmountPaid.IsZero())
	assert.Equal(t, "3000.00 SLE", out[1].Outstanding().String())
}

func TestApplyPaymentRejectsNonPositive(t *testing.T) {
	ledger := NewLedger()

	_, _, err := ledger.ApplyPayment(nil, values.Zero(values.SLE))
	assert.Error(t, err)
}
