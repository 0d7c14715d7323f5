package compliance

import (
	"fmt"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// BasisEnvelope is the serialized form of a penalty basis. PenaltyRule
// keeps its basis out of plain JSON so an invalid combination can never
// round-trip into the engine; stores that need a lossless encoding carry
// the kind tag explicitly through this envelope.
type BasisEnvelope struct {
	Kind        BasisKind     `json:"kind"`
	Rate        *values.Rate  `json:"rate,omitempty"`
	Amount      *values.Money `json:"amount,omitempty"`
	DailyRate   *values.Rate  `json:"daily_rate,omitempty"`
	MonthlyRate *values.Rate  `json:"monthly_rate,omitempty"`
	MaximumDays *int          `json:"maximum_days,omitempty"`
}

// EncodeBasis wraps a basis in its envelope form
func EncodeBasis(b PenaltyBasis) (BasisEnvelope, error) {
	switch basis := b.(type) {
	case FixedRateBasis:
		rate := basis.Rate
		return BasisEnvelope{Kind: BasisFixedRate, Rate: &rate}, nil
	case FixedAmountBasis:
		amount := basis.Amount
		return BasisEnvelope{Kind: BasisFixedAmount, Amount: &amount}, nil
	case TimeAccrualBasis:
		return BasisEnvelope{
			Kind:        BasisTimeAccrual,
			DailyRate:   basis.DailyRate,
			MonthlyRate: basis.MonthlyRate,
			MaximumDays: basis.MaximumDays,
		}, nil
	default:
		return BasisEnvelope{}, fmt.Errorf("unknown penalty basis %T", b)
	}
}

// Decode rebuilds the tagged basis from its envelope form
func (e BasisEnvelope) Decode() (PenaltyBasis, error) {
	switch e.Kind {
	case BasisFixedRate:
		if e.Rate == nil {
			return nil, fmt.Errorf("fixed rate basis missing rate")
		}
		return FixedRateBasis{Rate: *e.Rate}, nil
	case BasisFixedAmount:
		if e.Amount == nil {
			return nil, fmt.Errorf("fixed amount basis missing amount")
		}
		return FixedAmountBasis{Amount: *e.Amount}, nil
	case BasisTimeAccrual:
		return TimeAccrualBasis{
			DailyRate:   e.DailyRate,
			MonthlyRate: e.MonthlyRate,
			MaximumDays: e.MaximumDays,
		}, nil
	default:
		return nil, fmt.Errorf("unknown basis kind %q", e.Kind)
	}
}
