package ruleset

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// ruleSetFile is the YAML shape of a versioned rule set. Amount and rate
// fields are nullable on the wire; Load folds them into the domain's
// tagged penalty basis and refuses ambiguous rows, so the engine never
// sees an invalid combination.
type ruleSetFile struct {
	Version  string     `koanf:"version" validate:"required"`
	Currency string     `koanf:"currency" validate:"required,len=3"`
	Rules    []ruleSpec `koanf:"rules" validate:"required,min=1,dive"`
}

type ruleSpec struct {
	ID          string `koanf:"id" validate:"required,uuid"`
	Name        string `koanf:"name" validate:"required"`
	Reference   string `koanf:"reference"`
	TaxType     string `koanf:"tax_type" validate:"required"`
	PenaltyType string `koanf:"penalty_type" validate:"required"`
	Category    string `koanf:"category"`

	FixedRate   *float64 `koanf:"fixed_rate"`
	FixedAmount *float64 `koanf:"fixed_amount"`
	DailyRate   *float64 `koanf:"daily_rate"`
	MonthlyRate *float64 `koanf:"monthly_rate"`
	MaximumDays *int     `koanf:"maximum_days"`

	MinimumAmount   *float64 `koanf:"minimum_amount"`
	MaximumAmount   *float64 `koanf:"maximum_amount"`
	GracePeriodDays int      `koanf:"grace_period_days"`
	ThresholdDays   *int     `koanf:"threshold_days"`
	ThresholdAmount *float64 `koanf:"threshold_amount"`

	EffectiveFrom string `koanf:"effective_from" validate:"required"`
	EffectiveTo   string `koanf:"effective_to"`
	Active        bool   `koanf:"active"`
	Priority      int    `koanf:"priority"`
}

// RuleSet is a loaded, validated rule-set version
type RuleSet struct {
	Version  string
	Currency string
	Rules    []*compliance.PenaltyRule
}

// Loader reads versioned rule-set files
type Loader struct {
	validate *validator.Validate
}

// NewLoader creates a rule-set loader
func NewLoader() *Loader {
	return &Loader{validate: validator.New()}
}

// Load parses and validates the rule-set file at path
func (l *Loader) Load(path string) (*RuleSet, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("reading rule set %s: %w", path, err)
	}

	var spec ruleSetFile
	if err := k.Unmarshal("", &spec); err != nil {
		return nil, fmt.Errorf("unmarshaling rule set: %w", err)
	}
	if err := l.validate.Struct(&spec); err != nil {
		return nil, fmt.Errorf("validating rule set: %w", err)
	}

	rules := make([]*compliance.PenaltyRule, 0, len(spec.Rules))
	for i, rs := range spec.Rules {
		rule, err := l.toDomain(rs, spec.Version, spec.Currency)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rs.Name, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rs.Name, err)
		}
		rules = append(rules, rule)
	}

	return &RuleSet{
		Version:  spec.Version,
		Currency: spec.Currency,
		Rules:    rules,
	}, nil
}

func (l *Loader) toDomain(rs ruleSpec, version, currency string) (*compliance.PenaltyRule, error) {
	basis, err := l.basis(rs, currency)
	if err != nil {
		return nil, err
	}

	effectiveFrom, err := parseDate(rs.EffectiveFrom)
	if err != nil {
		return nil, fmt.Errorf("effective_from: %w", err)
	}

	rule := &compliance.PenaltyRule{
		ID:              uuid.MustParse(rs.ID),
		Name:            rs.Name,
		Reference:       rs.Reference,
		TaxType:         compliance.TaxType(rs.TaxType),
		PenaltyType:     compliance.PenaltyType(rs.PenaltyType),
		Basis:           basis,
		GracePeriodDays: rs.GracePeriodDays,
		ThresholdDays:   rs.ThresholdDays,
		EffectiveFrom:   effectiveFrom,
		Active:          rs.Active,
		Priority:        rs.Priority,
		RuleSetVersion:  version,
	}

	if rs.Category != "" {
		cat := compliance.TaxpayerCategory(rs.Category)
		rule.Category = &cat
	}
	if rs.EffectiveTo != "" {
		to, err := parseDate(rs.EffectiveTo)
		if err != nil {
			return nil, fmt.Errorf("effective_to: %w", err)
		}
		rule.EffectiveTo = &to
	}
	if rs.MinimumAmount != nil {
		m, err := values.NewMoneyFromFloat(*rs.MinimumAmount, currency)
		if err != nil {
			return nil, err
		}
		rule.MinimumAmount = &m
	}
	if rs.MaximumAmount != nil {
		m, err := values.NewMoneyFromFloat(*rs.MaximumAmount, currency)
		if err != nil {
			return nil, err
		}
		rule.MaximumAmount = &m
	}
	if rs.ThresholdAmount != nil {
		m, err := values.NewMoneyFromFloat(*rs.ThresholdAmount, currency)
		if err != nil {
			return nil, err
		}
		rule.ThresholdAmount = &m
	}

	return rule, nil
}

// basis folds the nullable rate/amount columns into exactly one strategy.
// A row populating more than one is a data-entry error and is rejected
// here rather than resolved by runtime precedence.
func (l *Loader) basis(rs ruleSpec, currency string) (compliance.PenaltyBasis, error) {
	hasFixedRate := rs.FixedRate != nil
	hasFixedAmount := rs.FixedAmount != nil
	hasAccrual := rs.DailyRate != nil || rs.MonthlyRate != nil

	set := 0
	for _, h := range []bool{hasFixedRate, hasFixedAmount, hasAccrual} {
		if h {
			set++
		}
	}
	if set == 0 {
		return nil, fmt.Errorf("rule defines no penalty basis")
	}
	if set > 1 {
		return nil, fmt.Errorf("rule defines more than one penalty basis")
	}

	switch {
	case hasFixedRate:
		rate, err := values.NewRateFromFloat(*rs.FixedRate)
		if err != nil {
			return nil, err
		}
		return compliance.FixedRateBasis{Rate: rate}, nil

	case hasFixedAmount:
		amount, err := values.NewMoneyFromFloat(*rs.FixedAmount, currency)
		if err != nil {
			return nil, err
		}
		return compliance.FixedAmountBasis{Amount: amount}, nil

	default:
		b := compliance.TimeAccrualBasis{MaximumDays: rs.MaximumDays}
		if rs.DailyRate != nil && rs.MonthlyRate != nil {
			return nil, fmt.Errorf("time accrual basis requires exactly one of daily_rate or monthly_rate")
		}
		if rs.DailyRate != nil {
			rate, err := values.NewRateFromFloat(*rs.DailyRate)
			if err != nil {
				return nil, err
			}
			b.DailyRate = &rate
		}
		if rs.MonthlyRate != nil {
			rate, err := values.NewRateFromFloat(*rs.MonthlyRate)
			if err != nil {
				return nil, err
			}
			b.MonthlyRate = &rate
		}
		return b, nil
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
