package compliance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

func testPenalty(amount float64) *Penalty {
	trackerID := uuid.New()
	p := &Penalty{
		TrackerID:   trackerID,
		RuleID:      uuid.New(),
		PenaltyType: PenaltyTypeLateFiling,
		Amount:      values.MustNewMoneyFromFloat(amount, values.SLE),
		BaseAmount:  values.MustNewMoneyFromFloat(100000, values.SLE),
		AmountPaid:  values.Zero(values.SLE),
		PenaltyDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	p.ID = DeterministicPenaltyID(trackerID, p.Key())
	return p
}

func TestPenaltyOutstanding(t *testing.T) {
	p := testPenalty(5000)
	assert.Equal(t, "5000.00 SLE", p.Outstanding().String())

	p.AmountPaid = values.MustNewMoneyFromFloat(2000, values.SLE)
	assert.Equal(t, "3000.00 SLE", p.Outstanding().String())

	// waived penalties keep their amount but owe nothing
	require.NoError(t, p.Waive("hardship relief"))
	assert.True(t, p.Outstanding().IsZero())
	assert.Equal(t, "5000.00 SLE", p.Amount.String())
}

func TestPenaltyApplyPayment(t *testing.T) {
	p := testPenalty(5000)

	applied, err := p.ApplyPayment(values.MustNewMoneyFromFloat(2000, values.SLE))
	require.NoError(t, err)
	assert.Equal(t, "2000.00 SLE", applied.String())
	assert.Equal(t, "3000.00 SLE", p.Outstanding().String())

	// overpayment only absorbs what is outstanding
	applied, err = p.ApplyPayment(values.MustNewMoneyFromFloat(10000, values.SLE))
	require.NoError(t, err)
	assert.Equal(t, "3000.00 SLE", applied.String())
	assert.True(t, p.IsSettled())

	// settled penalties absorb nothing further
	applied, err = p.ApplyPayment(values.MustNewMoneyFromFloat(100, values.SLE))
	require.NoError(t, err)
	assert.True(t, applied.IsZero())

	_, err = p.ApplyPayment(values.MustNewMoneyFromFloat(-5, values.SLE))
	assert.Error(t, err)

	_, err = p.ApplyPayment(values.MustNewMoneyFromFloat(5, values.USD))
	assert.Error(t, err)
}

func TestPenaltyWaive(t *testing.T) {
	p := testPenalty(5000)

	assert.Error(t, p.Waive(""))
	require.NoError(t, p.Waive("assessment under appeal"))
	assert.True(t, p.Waived)
	assert.Error(t, p.Waive("again"))
}

func TestDeterministicPenaltyID(t *testing.T) {
	trackerID := uuid.New()
	key := PenaltyKey{
		RuleID:      uuid.New(),
		PenaltyType: PenaltyTypeLatePayment,
		DueDate:     "2024-03-01",
	}

	a := DeterministicPenaltyID(trackerID, key)
	b := DeterministicPenaltyID(trackerID, key)
	assert.Equal(t, a, b)

	other := key
	other.DueDate = "2024-03-02"
	assert.NotEqual(t, a, DeterministicPenaltyID(trackerID, other))
	assert.NotEqual(t, a, DeterministicPenaltyID(uuid.New(), key))
}

func TestPenaltyKeyTruncatesToDate(t *testing.T) {
	p := testPenalty(5000)
	q := *p
	q.DueDate = p.DueDate.Add(5 * time.Hour)

	assert.Equal(t, p.Key(), q.Key())
}
