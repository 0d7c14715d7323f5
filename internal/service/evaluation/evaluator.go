package evaluation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/telemetry"
)

// Input is everything one evaluation needs. The engine owns no storage:
// rules, existing penalties, and the previous result all arrive as
// immutable snapshots and the caller persists whatever comes back.
type Input struct {
	Obligation        compliance.Obligation
	Rules             []*compliance.PenaltyRule
	ExistingPenalties []compliance.Penalty
	Previous          *compliance.Result
	AsOf              time.Time
}

// Evaluator composes the rule catalog, penalty calculator, ledger,
// scorer, and alert engine into the single Evaluate operation. It is pure
// and synchronous: safe to call from any number of workers concurrently,
// deterministic for identical inputs.
type Evaluator struct {
	calculator *Calculator
	ledger     *Ledger
	scorer     *Scorer
	alerts     *AlertEngine
	logger     *zap.Logger
}

// NewEvaluator creates a compliance evaluator
func NewEvaluator(logger *zap.Logger, scorerCfg ScorerConfig) *Evaluator {
	return &Evaluator{
		calculator: NewCalculator(),
		ledger:     NewLedger(),
		scorer:     NewScorer(scorerCfg),
		alerts:     NewAlertEngine(),
		logger:     logger,
	}
}

// Evaluate runs one full compliance evaluation. The context carries only
// logging/tracing concerns; the engine itself never blocks on I/O.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (*compliance.Result, error) {
	if in.AsOf.IsZero() {
		return nil, errors.ErrInvalidInput.WithDetails(map[string]interface{}{
			"field": "as_of",
		})
	}
	obligation := in.Obligation
	if err := obligation.Validate(); err != nil {
		return nil, err
	}

	logger := telemetry.WithTrace(ctx, e.logger)

	fresh, err := e.computePenalties(&obligation, in.Rules, in.AsOf)
	if err != nil {
		logger.Error("penalty computation aborted",
			zap.String("tracker_id", obligation.TrackerID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	merged, totals := e.ledger.Reconcile(in.ExistingPenalties, fresh, obligation.Currency())

	score, risk, status := e.scorer.Score(&obligation, totals, in.AsOf)

	alerts, actions, openActions := e.alerts.DetectTransitions(in.Previous, status, risk, &obligation, totals)

	logger.Debug("evaluation complete",
		zap.String("tracker_id", obligation.TrackerID.String()),
		zap.String("status", status.String()),
		zap.String("risk", risk.String()),
		zap.String("score", score.String()),
		zap.Int("penalties", len(merged)),
		zap.Int("alerts", len(alerts)),
	)

	return &compliance.Result{
		TrackerID:   obligation.TrackerID,
		Status:      status,
		RiskLevel:   risk,
		Score:       score,
		Penalties:   merged,
		TotalOwed:   totals.TotalOwed,
		TotalPaid:   totals.TotalPaid,
		Outstanding: totals.Outstanding,
		Alerts:      alerts,
		Actions:     actions,
		OpenActions: openActions,
		EvaluatedAt: truncateToDate(in.AsOf),
	}, nil
}

// computePenalties walks the penalty types the obligation's state exposes
// it to, picks the highest-precedence rule for each, and computes. One
// penalty per type at most; an empty rule match is the normal
// "no penalty applies" outcome.
func (e *Evaluator) computePenalties(obligation *compliance.Obligation, rules []*compliance.PenaltyRule, asOf time.Time) ([]compliance.Penalty, error) {
	if obligation.HasExemption {
		return nil, nil
	}

	catalog := NewRuleCatalog(rules)
	var penalties []compliance.Penalty

	for _, penaltyType := range e.candidateTypes(obligation, asOf) {
		rule := catalog.Best(obligation.TaxType, penaltyType, obligation.Category, asOf)
		if rule == nil {
			continue
		}

		penalty, err := e.calculator.Compute(rule, obligation, asOf)
		if err != nil {
			return nil, err
		}
		if penalty != nil {
			penalties = append(penalties, *penalty)
		}
	}

	return penalties, nil
}

// candidateTypes lists the penalty grounds the obligation is exposed to
// as of the evaluation date, in deterministic order. An approved
// extension suppresses the filing grounds; the thresholds and grace
// periods on the rules themselves make the final call.
func (e *Evaluator) candidateTypes(obligation *compliance.Obligation, asOf time.Time) []compliance.PenaltyType {
	var types []compliance.PenaltyType

	if !obligation.HasExtension && obligation.DaysOverdueFiling(asOf) > 0 {
		types = append(types, compliance.PenaltyTypeLateFiling)
		if !obligation.IsFiled() {
			types = append(types, compliance.PenaltyTypeNonFiling)
		}
	}

	// a settled liability accrues nothing further even when the paid
	// date was never recorded
	if obligation.OutstandingLiability().IsPositive() && obligation.DaysOverduePayment(asOf) > 0 {
		types = append(types, compliance.PenaltyTypeLatePayment, compliance.PenaltyTypeInterest)
	}

	if obligation.IsFiled() && obligation.UnderDeclaredAmount().IsPositive() {
		types = append(types, compliance.PenaltyTypeUnderDeclaration)
	}

	return types
}
