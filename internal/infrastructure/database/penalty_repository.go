package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// PenaltyRepository implements compliance.PenaltyRepository against
// Postgres. The ledger for a tracker is replaced wholesale after each
// reconciliation; individual rows are never updated in place.
type PenaltyRepository struct {
	pool *Pool
}

// NewPenaltyRepository creates a penalty repository
func NewPenaltyRepository(pool *Pool) *PenaltyRepository {
	return &PenaltyRepository{pool: pool}
}

const penaltyColumns = `id, tracker_id, rule_id, penalty_type, amount, base_amount,
	rate_applied, days_overdue, amount_paid, waived, waiver_reason,
	penalty_date, due_date, breakdown`

// FindByTracker retrieves a tracker's ledger, oldest first
func (r *PenaltyRepository) FindByTracker(ctx context.Context, trackerID uuid.UUID) ([]compliance.Penalty, error) {
	query := `SELECT ` + penaltyColumns + ` FROM penalties
		WHERE tracker_id = $1
		ORDER BY penalty_date, id`

	rows, err := r.pool.Pgx().Query(ctx, query, trackerID)
	if err != nil {
		return nil, fmt.Errorf("querying penalties for tracker %s: %w", trackerID, err)
	}
	defer rows.Close()

	var penalties []compliance.Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, err
		}
		penalties = append(penalties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating penalties: %w", err)
	}
	return penalties, nil
}

// ReplaceForTracker persists the reconciled ledger for a tracker
func (r *PenaltyRepository) ReplaceForTracker(ctx context.Context, trackerID uuid.UUID, penalties []compliance.Penalty) error {
	return r.pool.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM penalties WHERE tracker_id = $1`, trackerID); err != nil {
			return fmt.Errorf("clearing ledger for tracker %s: %w", trackerID, err)
		}
		if len(penalties) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i := range penalties {
			p := &penalties[i]
			batch.Queue(`INSERT INTO penalties (`+penaltyColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				p.ID,
				p.TrackerID,
				p.RuleID,
				string(p.PenaltyType),
				p.Amount.Amount().String(),
				p.BaseAmount.Amount().String(),
				rateString(p.RateApplied),
				p.DaysOverdue,
				p.AmountPaid.Amount().String(),
				p.Waived,
				p.WaiverReason,
				p.PenaltyDate,
				p.DueDate,
				p.Breakdown,
			)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range penalties {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("inserting penalty: %w", err)
			}
		}
		return nil
	})
}

func scanPenalty(row pgx.Row) (compliance.Penalty, error) {
	var (
		p           compliance.Penalty
		penaltyType string
		amount      string
		baseAmount  string
		rateApplied *string
		amountPaid  string
	)

	err := row.Scan(
		&p.ID,
		&p.TrackerID,
		&p.RuleID,
		&penaltyType,
		&amount,
		&baseAmount,
		&rateApplied,
		&p.DaysOverdue,
		&amountPaid,
		&p.Waived,
		&p.WaiverReason,
		&p.PenaltyDate,
		&p.DueDate,
		&p.Breakdown,
	)
	if err != nil {
		return compliance.Penalty{}, err
	}

	p.PenaltyType = compliance.PenaltyType(penaltyType)
	if p.Amount, err = values.NewMoneyFromString(amount, values.SLE); err != nil {
		return compliance.Penalty{}, fmt.Errorf("parsing penalty amount: %w", err)
	}
	if p.BaseAmount, err = values.NewMoneyFromString(baseAmount, values.SLE); err != nil {
		return compliance.Penalty{}, fmt.Errorf("parsing base amount: %w", err)
	}
	if p.AmountPaid, err = values.NewMoneyFromString(amountPaid, values.SLE); err != nil {
		return compliance.Penalty{}, fmt.Errorf("parsing amount paid: %w", err)
	}
	if rateApplied != nil {
		rate, err := values.NewRateFromString(*rateApplied)
		if err != nil {
			return compliance.Penalty{}, fmt.Errorf("parsing applied rate: %w", err)
		}
		p.RateApplied = &rate
	}
	return p, nil
}

func rateString(r *values.Rate) *string {
	if r == nil {
		return nil
	}
	s := r.Percent().String()
	return &s
}
