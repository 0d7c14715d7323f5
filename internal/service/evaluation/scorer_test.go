package evaluation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

func zeroTotals() LedgerTotals {
	return LedgerTotals{
		TotalOwed:   values.Zero(values.SLE),
		TotalPaid:   values.Zero(values.SLE),
		Outstanding: values.Zero(values.SLE),
	}
}

func outstandingTotals(amount float64) LedgerTotals {
	owed := values.MustNewMoneyFromFloat(amount, values.SLE)
	return LedgerTotals{
		TotalOwed:   owed,
		TotalPaid:   values.Zero(values.SLE),
		Outstanding: owed,
	}
}

func TestScorePerfectCompliance(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())

	obligation := incomeTaxObligation()
	filed := date(2024, 1, 20)
	obligation.FiledDate = &filed
	obligation.AmountPaid = obligation.TaxLiability
	obligation.DocumentationComplete = true

	score, risk, status := scorer.Score(&obligation, zeroTotals(), date(2024, 6, 1))

	assert.True(t, score.Equal(decimal.NewFromInt(100)), "score = %s", score)
	assert.Equal(t, compliance.RiskLow, risk)
	assert.Equal(t, compliance.StatusCompliant, status)
}

func TestScoreDecay(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())

	// unfiled, unpaid, undocumented, 45 of 90 decay days elapsed:
	// filing = payment = 50, documentation = 0, timeliness = 50
	// score = 0.3*50 + 0.3*50 + 0.2*0 + 0.2*50 = 40
	obligation := incomeTaxObligation()
	score, risk, status := scorer.Score(&obligation, zeroTotals(), date(2024, 3, 16))

	assert.True(t, score.Equal(decimal.NewFromInt(40)), "score = %s", score)
	assert.Equal(t, compliance.RiskHigh, risk)
	assert.Equal(t, compliance.StatusNonCompliant, status)
}

func TestScoreFloorsAtZero(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())

	// two years overdue: every decayed sub-score bottoms out
	obligation := incomeTaxObligation()
	score, risk, _ := scorer.Score(&obligation, zeroTotals(), date(2026, 1, 31))

	assert.True(t, score.Equal(decimal.Zero), "score = %s", score)
	assert.Equal(t, compliance.RiskCritical, risk)
}

func TestScoreLatePaymentSettledScoresFull(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())

	obligation := incomeTaxObligation()
	filed := date(2024, 1, 20)
	paid := date(2024, 3, 15)
	obligation.FiledDate = &filed
	obligation.PaidDate = &paid
	obligation.AmountPaid = obligation.TaxLiability
	obligation.DocumentationComplete = true

	// nothing outstanding: payment sub-score is 100 even though payment
	// arrived late
	score, _, status := scorer.Score(&obligation, zeroTotals(), date(2024, 6, 1))
	assert.True(t, score.Equal(decimal.NewFromInt(100)), "score = %s", score)
	assert.Equal(t, compliance.StatusCompliant, status)
}

func TestScoreRiskBuckets(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())

	tests := []struct {
		score int64
		want  compliance.RiskLevel
	}{
		{100, compliance.RiskLow},
		{80, compliance.RiskLow},
		{79, compliance.RiskMedium},
		{60, compliance.RiskMedium},
		{59, compliance.RiskHigh},
		{40, compliance.RiskHigh},
		{39, compliance.RiskCritical},
		{0, compliance.RiskCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, scorer.riskLevel(decimal.NewFromInt(tt.score)),
			"score %d", tt.score)
	}
}

// Scenario: an active exemption overrides everything, overdue days and
// outstanding penalties included.
func TestStatusExemptionOverridesAll(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())

	obligation := incomeTaxObligation()
	obligation.HasExemption = true

	_, _, status := scorer.Score(&obligation, outstandingTotals(9000), date(2025, 6, 1))
	assert.Equal(t, compliance.StatusExempted, status)
}

func TestStatusDerivation(t *testing.T) {
	scorer := NewScorer(DefaultScorerConfig())
	filed := date(2024, 1, 20)

	tests := []struct {
		name   string
		mutate func(*compliance.Obligation)
		totals LedgerTotals
		asOf   time.Time
		want   compliance.ComplianceStatus
	}{
		{
			name: "outstanding penalties",
			mutate: func(o *compliance.Obligation) {
				o.FiledDate = &filed
				o.AmountPaid = o.TaxLiability
			},
			totals: outstandingTotals(5000),
			asOf:   date(2024, 6, 1),
			want:   compliance.StatusPenaltyApplied,
		},
		{
			name:   "unfiled past due, no penalty computed yet",
			mutate: func(o *compliance.Obligation) {},
			totals: zeroTotals(),
			asOf:   date(2024, 2, 15),
			want:   compliance.StatusNonCompliant,
		},
		{
			name: "unpaid past due, filed on time",
			mutate: func(o *compliance.Obligation) {
				o.FiledDate = &filed
			},
			totals: zeroTotals(),
			asOf:   date(2024, 2, 15),
			want:   compliance.StatusNonCompliant,
		},
		{
			name:   "within seven days of due dates",
			mutate: func(o *compliance.Obligation) {},
			totals: zeroTotals(),
			asOf:   date(2024, 1, 27),
			want:   compliance.StatusAtRisk,
		},
		{
			name:   "well before due dates",
			mutate: func(o *compliance.Obligation) {},
			totals: zeroTotals(),
			asOf:   date(2024, 1, 2),
			want:   compliance.StatusCompliant,
		},
		{
			name: "everything settled",
			mutate: func(o *compliance.Obligation) {
				o.FiledDate = &filed
				o.AmountPaid = o.TaxLiability
			},
			totals: zeroTotals(),
			asOf:   date(2024, 6, 1),
			want:   compliance.StatusCompliant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obligation := incomeTaxObligation()
			tt.mutate(&obligation)
			_, _, status := scorer.Score(&obligation, tt.totals, tt.asOf)
			assert.Equal(t, tt.want, status)
		})
	}
}
