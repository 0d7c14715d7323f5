package evaluation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// maxRepresentable bounds computed penalty amounts. Anything past 10^15
// Leones is an arithmetic fault, not a statute.
var maxRepresentable = decimal.New(1, 15)

// Calculator computes a single penalty from a matched rule and an
// obligation snapshot. Pure: identical inputs always produce identical
// output, and no call leaves the process.
type Calculator struct{}

// NewCalculator creates a penalty calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute applies a rule to an obligation as of the evaluation date.
// Returns (nil, nil) when the rule yields no penalty: inside grace, under
// a threshold, or nothing overdue. Every arithmetic step lands in the
// penalty's Breakdown for later audit.
func (c *Calculator) Compute(rule *compliance.PenaltyRule, obligation *compliance.Obligation, asOf time.Time) (*compliance.Penalty, error) {
	daysOverdue := c.daysOverdue(rule.PenaltyType, obligation, asOf)
	dueDate := c.relevantDueDate(rule.PenaltyType, obligation)

	if rule.ThresholdDays != nil && daysOverdue < *rule.ThresholdDays {
		return nil, nil
	}
	if daysOverdue <= rule.GracePeriodDays {
		return nil, nil
	}

	base := c.baseAmount(rule.PenaltyType, obligation)
	if rule.ThresholdAmount != nil && base.Compare(*rule.ThresholdAmount) < 0 {
		return nil, nil
	}
	if rule.PenaltyType == compliance.PenaltyTypeUnderDeclaration && !base.IsPositive() {
		return nil, nil
	}

	var steps []string
	steps = append(steps, fmt.Sprintf("rule %s (%s), %d days overdue vs due date %s, grace %d days",
		rule.Name, rule.Reference, daysOverdue, dueDate.Format("2006-01-02"), rule.GracePeriodDays))

	raw, rateApplied, err := c.rawAmount(rule, base, daysOverdue, &steps)
	if err != nil {
		return nil, err
	}

	clamped := raw.ClampBetween(rule.MinimumAmount, rule.MaximumAmount)
	if !clamped.Equal(raw) {
		steps = append(steps, fmt.Sprintf("clamped %s into [%s, %s] -> %s",
			raw, boundString(rule.MinimumAmount, "0"), boundString(rule.MaximumAmount, "inf"), clamped))
	}

	amount := clamped.RoundHalfUp()
	if !amount.Equal(clamped) {
		steps = append(steps, fmt.Sprintf("rounded half-up to %s", amount))
	}

	if amount.Amount().Abs().GreaterThan(maxRepresentable) {
		return nil, errors.NewCalculationError("clamp",
			fmt.Sprintf("penalty amount %s exceeds representable range", amount))
	}

	steps = append(steps, fmt.Sprintf("final amount %s", amount))

	key := compliance.PenaltyKey{
		RuleID:      rule.ID,
		PenaltyType: rule.PenaltyType,
		DueDate:     dueDate.UTC().Format("2006-01-02"),
	}

	return &compliance.Penalty{
		ID:          compliance.DeterministicPenaltyID(obligation.TrackerID, key),
		TrackerID:   obligation.TrackerID,
		RuleID:      rule.ID,
		PenaltyType: rule.PenaltyType,
		Amount:      amount,
		BaseAmount:  base,
		RateApplied: rateApplied,
		DaysOverdue: daysOverdue,
		AmountPaid:  values.Zero(amount.Currency()),
		PenaltyDate: truncateToDate(asOf),
		DueDate:     truncateToDate(dueDate),
		Breakdown:   strings.Join(steps, "; "),
	}, nil
}

// rawAmount dispatches on the rule's basis strategy
func (c *Calculator) rawAmount(rule *compliance.PenaltyRule, base values.Money, daysOverdue int, steps *[]string) (values.Money, *values.Rate, error) {
	switch b := rule.Basis.(type) {
	case compliance.FixedRateBasis:
		raw := b.Rate.ApplyTo(base)
		*steps = append(*steps, fmt.Sprintf("fixed rate: %s x %s = %s", base, b.Rate, raw))
		rate := b.Rate
		return raw, &rate, nil

	case compliance.FixedAmountBasis:
		*steps = append(*steps, fmt.Sprintf("fixed amount: %s", b.Amount))
		return b.Amount, nil, nil

	case compliance.TimeAccrualBasis:
		effectiveDays := daysOverdue - rule.GracePeriodDays
		if b.MaximumDays != nil && effectiveDays > *b.MaximumDays {
			effectiveDays = *b.MaximumDays
		}
		perDay := b.PerDay()
		raw := perDay.ApplyTo(base).Mul(decimal.NewFromInt(int64(effectiveDays)))
		*steps = append(*steps, fmt.Sprintf("time accrual: %s x %s/day x %d days = %s",
			base, perDay, effectiveDays, raw))
		return raw, &perDay, nil

	default:
		return values.Money{}, nil, errors.NewCalculationError("basis",
			fmt.Sprintf("unknown penalty basis %T", rule.Basis))
	}
}

// daysOverdue picks the clock the penalty type runs against
func (c *Calculator) daysOverdue(penaltyType compliance.PenaltyType, obligation *compliance.Obligation, asOf time.Time) int {
	if penaltyType.UsesFilingDueDate() {
		return obligation.DaysOverdueFiling(asOf)
	}
	return obligation.DaysOverduePayment(asOf)
}

func (c *Calculator) relevantDueDate(penaltyType compliance.PenaltyType, obligation *compliance.Obligation) time.Time {
	if penaltyType.UsesFilingDueDate() {
		return obligation.FilingDueDate
	}
	return obligation.PaymentDueDate
}

// baseAmount is the liability, except for under-declaration penalties
// which bite on the shortfall only.
func (c *Calculator) baseAmount(penaltyType compliance.PenaltyType, obligation *compliance.Obligation) values.Money {
	if penaltyType == compliance.PenaltyTypeUnderDeclaration {
		return obligation.UnderDeclaredAmount()
	}
	return obligation.TaxLiability
}

func boundString(m *values.Money, open string) string {
	if m == nil {
		return open
	}
	return m.String()
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
