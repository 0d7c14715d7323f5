package compliance

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// PenaltyRule is one immutable Finance Act provision: the conditions under
// which a penalty applies and the basis on which its amount is computed.
// Rules are versioned configuration; the engine only ever reads them.
type PenaltyRule struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Reference   string      `json:"reference"` // statute citation, e.g. "FA 2024 s.97(2)"
	TaxType     TaxType     `json:"tax_type"`
	PenaltyType PenaltyType `json:"penalty_type"`

	// Category is nil for wildcard rules that apply to every taxpayer.
	Category *TaxpayerCategory `json:"category,omitempty"`

	// Basis decides how the amount is computed. Exactly one concrete basis
	// is populated per rule; the loader rejects ambiguous definitions.
	Basis PenaltyBasis `json:"-"`

	MinimumAmount *values.Money `json:"minimum_amount,omitempty"`
	MaximumAmount *values.Money `json:"maximum_amount,omitempty"`

	GracePeriodDays int           `json:"grace_period_days"`
	ThresholdDays   *int          `json:"threshold_days,omitempty"`
	ThresholdAmount *values.Money `json:"threshold_amount,omitempty"`

	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Active        bool       `json:"active"`

	// Priority breaks ties between rules matching the same obligation;
	// lower values win.
	Priority int `json:"priority"`

	RuleSetVersion string `json:"rule_set_version"`
}

// PenaltyBasis is the tagged union over penalty-calculation strategies.
// The wide-entity model this replaces let FixedRate, FixedAmount, and the
// time-based fields coexist as nullables; here an invalid combination is
// unrepresentable.
type PenaltyBasis interface {
	basis()
	Kind() BasisKind
}

// BasisKind names a penalty-calculation strategy
type BasisKind string

const (
	BasisFixedRate   BasisKind = "fixed_rate"
	BasisFixedAmount BasisKind = "fixed_amount"
	BasisTimeAccrual BasisKind = "time_accrual"
)

// FixedRateBasis applies a flat percentage of the base amount once.
type FixedRateBasis struct {
	Rate values.Rate `json:"rate"`
}

func (FixedRateBasis) basis()          {}
func (FixedRateBasis) Kind() BasisKind { return BasisFixedRate }

// FixedAmountBasis applies a flat statutory amount regardless of base.
type FixedAmountBasis struct {
	Amount values.Money `json:"amount"`
}

func (FixedAmountBasis) basis()          {}
func (FixedAmountBasis) Kind() BasisKind { return BasisFixedAmount }

// TimeAccrualBasis accrues linearly per day overdue, after the grace
// period, at a daily rate or a monthly rate spread over 30-day months.
// Exactly one of DailyRate or MonthlyRate is set.
type TimeAccrualBasis struct {
	DailyRate   *values.Rate `json:"daily_rate,omitempty"`
	MonthlyRate *values.Rate `json:"monthly_rate,omitempty"`

	// MaximumDays caps the accrual window; nil accrues without bound.
	MaximumDays *int `json:"maximum_days,omitempty"`
}

func (TimeAccrualBasis) basis()          {}
func (TimeAccrualBasis) Kind() BasisKind { return BasisTimeAccrual }

// PerDay resolves the accrual rate to its per-day figure.
func (b TimeAccrualBasis) PerDay() values.Rate {
	if b.DailyRate != nil {
		return *b.DailyRate
	}
	return b.MonthlyRate.DailyFromMonthly()
}

// Validate checks the accrual basis is unambiguous
func (b TimeAccrualBasis) Validate() error {
	if (b.DailyRate == nil) == (b.MonthlyRate == nil) {
		return fmt.Errorf("time accrual basis requires exactly one of daily_rate or monthly_rate")
	}
	if b.MaximumDays != nil && *b.MaximumDays <= 0 {
		return fmt.Errorf("maximum_days must be positive when set")
	}
	return nil
}

// AppliesTo reports whether the rule matches an obligation's tax type and
// taxpayer category and is in force on the evaluation date. The effective
// window is half-open: from inclusive, to exclusive.
func (r *PenaltyRule) AppliesTo(taxType TaxType, category TaxpayerCategory, asOf time.Time) bool {
	if !r.Active {
		return false
	}
	if r.TaxType != taxType {
		return false
	}
	if r.Category != nil && *r.Category != category {
		return false
	}
	if asOf.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !asOf.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// IsCategorySpecific reports whether the rule targets one taxpayer
// category rather than all of them.
func (r *PenaltyRule) IsCategorySpecific() bool {
	return r.Category != nil
}

// Validate checks the rule's internal consistency. Called at rule-set load
// time so the engine never has to second-guess a rule mid-computation.
func (r *PenaltyRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if !r.TaxType.IsValid() {
		return fmt.Errorf("invalid tax type: %s", r.TaxType)
	}
	if !r.PenaltyType.IsValid() {
		return fmt.Errorf("invalid penalty type: %s", r.PenaltyType)
	}
	if r.Category != nil && !r.Category.IsValid() {
		return fmt.Errorf("invalid taxpayer category: %s", *r.Category)
	}
	if r.Basis == nil {
		return fmt.Errorf("rule must define a penalty basis")
	}
	if b, ok := r.Basis.(TimeAccrualBasis); ok {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	if r.GracePeriodDays < 0 {
		return fmt.Errorf("grace period cannot be negative")
	}
	if r.ThresholdDays != nil && *r.ThresholdDays < 0 {
		return fmt.Errorf("threshold days cannot be negative")
	}
	if r.EffectiveFrom.IsZero() {
		return fmt.Errorf("rule must have an effective date")
	}
	if r.EffectiveTo != nil && !r.EffectiveTo.After(r.EffectiveFrom) {
		return fmt.Errorf("effective_to must be after effective_from")
	}
	if r.MinimumAmount != nil && r.MaximumAmount != nil &&
		r.MinimumAmount.Compare(*r.MaximumAmount) > 0 {
		return fmt.Errorf("minimum amount exceeds maximum amount")
	}
	return nil
}
