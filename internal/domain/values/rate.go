package values

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rate represents a statutory percentage rate (e.g., a 5% late-filing
// penalty or a 3% monthly interest rate). Stored as the percentage figure,
// not the fraction: a 5% rate holds 5, not 0.05.
type Rate struct {
	percent decimal.Decimal
}

// NewRate creates a Rate from a percentage figure. Negative rates are
// rejected; statutes do not refund via penalty rates.
func NewRate(percent decimal.Decimal) (Rate, error) {
	if percent.IsNegative() {
		return Rate{}, fmt.Errorf("rate cannot be negative: %s", percent)
	}
	return Rate{percent: percent}, nil
}

// NewRateFromFloat creates a Rate from a float64 percentage figure
func NewRateFromFloat(percent float64) (Rate, error) {
	return NewRate(decimal.NewFromFloat(percent))
}

// NewRateFromString creates a Rate from a string percentage figure
func NewRateFromString(percent string) (Rate, error) {
	dec, err := decimal.NewFromString(percent)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate: %w", err)
	}
	return NewRate(dec)
}

// MustNewRate creates a Rate and panics on error (for constants/tests)
func MustNewRate(percent float64) Rate {
	r, err := NewRateFromFloat(percent)
	if err != nil {
		panic(err)
	}
	return r
}

// Percent returns the percentage figure (5 for a 5% rate)
func (r Rate) Percent() decimal.Decimal {
	return r.percent
}

// Fraction returns the rate as a multiplier (0.05 for a 5% rate)
func (r Rate) Fraction() decimal.Decimal {
	return r.percent.Div(decimal.NewFromInt(100))
}

// DailyFromMonthly converts a monthly rate to its per-day equivalent using
// the statutory 30-day month convention.
func (r Rate) DailyFromMonthly() Rate {
	return Rate{percent: r.percent.Div(decimal.NewFromInt(30))}
}

// ApplyTo multiplies an amount by the rate fraction
func (r Rate) ApplyTo(m Money) Money {
	return m.Mul(r.Fraction())
}

// IsZero checks if the rate is zero
func (r Rate) IsZero() bool {
	return r.percent.IsZero()
}

// Equal checks if two rates are equal
func (r Rate) Equal(other Rate) bool {
	return r.percent.Equal(other.percent)
}

// String returns the rate as a percentage string (e.g., "5%")
func (r Rate) String() string {
	return r.percent.String() + "%"
}

// MarshalJSON encodes the percentage figure as a JSON string
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.percent.String() + `"`), nil
}

// UnmarshalJSON decodes a percentage figure from a JSON string or number
func (r *Rate) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	percent, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid rate: %w", err)
	}

	rate, err := NewRate(percent)
	if err != nil {
		return err
	}

	*r = rate
	return nil
}

// Scan implements sql.Scanner
func (r *Rate) Scan(value interface{}) error {
	if value == nil {
		*r = Rate{}
		return nil
	}

	var s string
	switch v := value.(type) {
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("cannot scan %T into Rate", value)
	}

	percent, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid rate format: %w", err)
	}

	rate, err := NewRate(percent)
	if err != nil {
		return err
	}

	*r = rate
	return nil
}

// Value implements driver.Valuer
func (r Rate) Value() (driver.Value, error) {
	return r.percent.String(), nil
}
