package compliance

import (
	"time"

	"github.com/google/uuid"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// Obligation is one taxpayer's filing-and-payment duty for a single tax
// type and tax year. It is an immutable snapshot handed to the engine; the
// tracker it came from is owned by the persistence layer.
type Obligation struct {
	TrackerID uuid.UUID `json:"tracker_id"`
	ClientID  uuid.UUID `json:"client_id"`

	TaxType TaxType          `json:"tax_type"`
	TaxYear int              `json:"tax_year"`
	Category TaxpayerCategory `json:"category"`

	FilingDueDate  time.Time  `json:"filing_due_date"`
	PaymentDueDate time.Time  `json:"payment_due_date"`
	FiledDate      *time.Time `json:"filed_date,omitempty"`
	PaidDate       *time.Time `json:"paid_date,omitempty"`

	TaxLiability values.Money `json:"tax_liability"`
	AmountPaid   values.Money `json:"amount_paid"`

	DocumentationComplete bool `json:"documentation_complete"`
	HasExtension          bool `json:"has_extension"`
	HasExemption          bool `json:"has_exemption"`
}

// Validate fails fast on obligations the engine cannot evaluate. A partial
// result is never produced for an invalid obligation.
func (o *Obligation) Validate() error {
	if o.TrackerID == uuid.Nil {
		return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
			"field": "tracker_id",
		})
	}
	if !o.TaxType.IsValid() {
		return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
			"field": "tax_type", "value": o.TaxType.String(),
		})
	}
	if o.FilingDueDate.IsZero() || o.PaymentDueDate.IsZero() {
		return errors.ErrMissingDueDate
	}
	if o.TaxLiability.Currency() == "" {
		return errors.ErrMissingLiability
	}
	if o.TaxLiability.IsNegative() {
		return errors.ErrInvalidInput.WithDetails(map[string]interface{}{
			"field": "tax_liability", "reason": "negative",
		})
	}
	if o.AmountPaid.Currency() != "" && o.AmountPaid.Currency() != o.TaxLiability.Currency() {
		return errors.ErrCurrencyMismatch
	}
	return nil
}

// Currency returns the obligation's currency, taken from its liability
func (o *Obligation) Currency() string {
	return o.TaxLiability.Currency()
}

// IsFiled reports whether a return has been lodged
func (o *Obligation) IsFiled() bool {
	return o.FiledDate != nil
}

// IsFullyPaid reports whether the liability is settled
func (o *Obligation) IsFullyPaid() bool {
	return o.AmountPaid.Compare(o.TaxLiability) >= 0
}

// DaysOverdueFiling measures whole calendar days past the filing due date.
// For filed obligations the clock stops at the filed date; otherwise it
// runs to asOf. Never negative.
func (o *Obligation) DaysOverdueFiling(asOf time.Time) int {
	end := asOf
	if o.FiledDate != nil && o.FiledDate.Before(asOf) {
		end = *o.FiledDate
	}
	return daysBetween(o.FilingDueDate, end)
}

// DaysOverduePayment measures whole calendar days past the payment due
// date, stopping at the paid date once the liability is fully settled.
func (o *Obligation) DaysOverduePayment(asOf time.Time) int {
	end := asOf
	if o.PaidDate != nil && o.IsFullyPaid() && o.PaidDate.Before(asOf) {
		end = *o.PaidDate
	}
	return daysBetween(o.PaymentDueDate, end)
}

// OutstandingLiability is the unpaid part of the tax itself, floored at 0
func (o *Obligation) OutstandingLiability() values.Money {
	diff, err := o.TaxLiability.Sub(o.AmountPaid)
	if err != nil || diff.IsNegative() {
		return values.Zero(o.Currency())
	}
	return diff
}

// UnderDeclaredAmount is the shortfall between declared liability and what
// was actually paid, used as the base for under-declaration penalties.
// Only meaningful once the return is filed.
func (o *Obligation) UnderDeclaredAmount() values.Money {
	if !o.IsFiled() {
		return values.Zero(o.Currency())
	}
	return o.OutstandingLiability()
}

// daysBetween counts whole calendar days from a to b, truncating both to
// their UTC date so time-of-day never shifts a penalty by a day. Returns 0
// when b is not after a.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(bd.Sub(ad).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
