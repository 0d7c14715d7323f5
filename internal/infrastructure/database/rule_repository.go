package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// RuleRepository implements compliance.RuleRepository against Postgres.
// Queryable attributes live in columns; the penalty basis is stored as a
// JSONB envelope so the tagged union survives the round trip.
type RuleRepository struct {
	pool *Pool
}

// NewRuleRepository creates a rule repository
func NewRuleRepository(pool *Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

const ruleColumns = `id, name, reference, tax_type, penalty_type, category, basis,
	minimum_amount, maximum_amount, grace_period_days, threshold_days,
	threshold_amount, effective_from, effective_to, active, priority,
	rule_set_version`

// GetByID retrieves a rule by its ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*compliance.PenaltyRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM penalty_rules WHERE id = $1`

	rule, err := scanRule(r.pool.Pgx().QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying rule %s: %w", id, err)
	}
	return rule, nil
}

// FindActive retrieves all rules in force for a tax type on a date
func (r *RuleRepository) FindActive(ctx context.Context, taxType compliance.TaxType, asOf time.Time) ([]*compliance.PenaltyRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM penalty_rules
		WHERE tax_type = $1
		  AND active
		  AND effective_from <= $2
		  AND (effective_to IS NULL OR effective_to > $2)
		ORDER BY priority, effective_from DESC, id`

	rows, err := r.pool.Pgx().Query(ctx, query, string(taxType), asOf)
	if err != nil {
		return nil, fmt.Errorf("querying active rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// FindByRuleSetVersion retrieves a stored rule-set version in full
func (r *RuleRepository) FindByRuleSetVersion(ctx context.Context, version string) ([]*compliance.PenaltyRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM penalty_rules
		WHERE rule_set_version = $1
		ORDER BY priority, effective_from DESC, id`

	rows, err := r.pool.Pgx().Query(ctx, query, version)
	if err != nil {
		return nil, fmt.Errorf("querying rule set %s: %w", version, err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// SaveAll replaces the stored rules for the rule-set version the rules
// carry. All rules in one call must belong to the same version.
func (r *RuleRepository) SaveAll(ctx context.Context, rules []*compliance.PenaltyRule) error {
	if len(rules) == 0 {
		return nil
	}
	version := rules[0].RuleSetVersion
	for _, rule := range rules {
		if rule.RuleSetVersion != version {
			return errors.NewValidationError("MIXED_RULE_SET_VERSIONS",
				"All rules in one save must share a rule-set version")
		}
	}

	return r.pool.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM penalty_rules WHERE rule_set_version = $1`, version); err != nil {
			return fmt.Errorf("clearing rule set %s: %w", version, err)
		}

		batch := &pgx.Batch{}
		for _, rule := range rules {
			env, err := compliance.EncodeBasis(rule.Basis)
			if err != nil {
				return fmt.Errorf("encoding basis for rule %s: %w", rule.ID, err)
			}
			basis, err := json.Marshal(env)
			if err != nil {
				return fmt.Errorf("marshaling basis for rule %s: %w", rule.ID, err)
			}

			batch.Queue(`INSERT INTO penalty_rules (`+ruleColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
				rule.ID,
				rule.Name,
				rule.Reference,
				string(rule.TaxType),
				string(rule.PenaltyType),
				categoryString(rule.Category),
				basis,
				moneyString(rule.MinimumAmount),
				moneyString(rule.MaximumAmount),
				rule.GracePeriodDays,
				rule.ThresholdDays,
				moneyString(rule.ThresholdAmount),
				rule.EffectiveFrom,
				rule.EffectiveTo,
				rule.Active,
				rule.Priority,
				rule.RuleSetVersion,
			)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range rules {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("inserting rule: %w", err)
			}
		}
		return nil
	})
}

func scanRule(row pgx.Row) (*compliance.PenaltyRule, error) {
	var (
		rule          compliance.PenaltyRule
		taxType       string
		penaltyType   string
		category      *string
		basisJSON     []byte
		minAmount     *string
		maxAmount     *string
		thresholdAmt  *string
	)

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Reference,
		&taxType,
		&penaltyType,
		&category,
		&basisJSON,
		&minAmount,
		&maxAmount,
		&rule.GracePeriodDays,
		&rule.ThresholdDays,
		&thresholdAmt,
		&rule.EffectiveFrom,
		&rule.EffectiveTo,
		&rule.Active,
		&rule.Priority,
		&rule.RuleSetVersion,
	)
	if err != nil {
		return nil, err
	}

	rule.TaxType = compliance.TaxType(taxType)
	rule.PenaltyType = compliance.PenaltyType(penaltyType)
	if category != nil {
		cat := compliance.TaxpayerCategory(*category)
		rule.Category = &cat
	}

	var env compliance.BasisEnvelope
	if err := json.Unmarshal(basisJSON, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling basis for rule %s: %w", rule.ID, err)
	}
	rule.Basis, err = env.Decode()
	if err != nil {
		return nil, fmt.Errorf("decoding basis for rule %s: %w", rule.ID, err)
	}

	if rule.MinimumAmount, err = moneyFromColumn(minAmount); err != nil {
		return nil, err
	}
	if rule.MaximumAmount, err = moneyFromColumn(maxAmount); err != nil {
		return nil, err
	}
	if rule.ThresholdAmount, err = moneyFromColumn(thresholdAmt); err != nil {
		return nil, err
	}
	return &rule, nil
}

func collectRules(rows pgx.Rows) ([]*compliance.PenaltyRule, error) {
	var rules []*compliance.PenaltyRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

func categoryString(c *compliance.TaxpayerCategory) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

// Amounts are stored as plain numerics; the ledger currency is uniform,
// so the scan side restores the default currency.
func moneyString(m *values.Money) *string {
	if m == nil {
		return nil
	}
	s := m.Amount().String()
	return &s
}

func moneyFromColumn(s *string) (*values.Money, error) {
	if s == nil {
		return nil, nil
	}
	m, err := values.NewMoneyFromString(*s, values.SLE)
	if err != nil {
		return nil, fmt.Errorf("parsing stored amount: %w", err)
	}
	return &m, nil
}
