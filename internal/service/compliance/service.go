package compliance

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
	"github.com/saloneworks/tax-compliance-backend/internal/metrics"
	"github.com/saloneworks/tax-compliance-backend/internal/service/evaluation"
)

// saveRetries bounds optimistic-concurrency retries before giving up.
const saveRetries = 3

// RuleSnapshotCache caches rule snapshots keyed by tax type and rule-set
// version. A nil-slice return is a miss.
type RuleSnapshotCache interface {
	Get(ctx context.Context, taxType compliance.TaxType, version string) ([]*compliance.PenaltyRule, error)
	Set(ctx context.Context, taxType compliance.TaxType, version string, rules []*compliance.PenaltyRule) error
}

// ServiceConfig holds the orchestration settings
type ServiceConfig struct {
	RuleSetVersion string
}

// Service orchestrates compliance evaluation: it loads tracker state and
// rule snapshots, runs the pure evaluation engine, persists what comes
// back under optimistic concurrency, and hands alerts to the notifier.
type Service struct {
	trackers  compliance.TrackerRepository
	penalties compliance.PenaltyRepository
	rules     compliance.RuleRepository
	cache     RuleSnapshotCache
	notifier  compliance.Notifier
	evaluator *evaluation.Evaluator
	ledger    *evaluation.Ledger
	logger    *zap.Logger
	config    ServiceConfig
}

// NewService creates the compliance orchestration service
func NewService(
	trackers compliance.TrackerRepository,
	penalties compliance.PenaltyRepository,
	rules compliance.RuleRepository,
	cache RuleSnapshotCache,
	notifier compliance.Notifier,
	evaluator *evaluation.Evaluator,
	logger *zap.Logger,
	config ServiceConfig,
) *Service {
	return &Service{
		trackers:  trackers,
		penalties: penalties,
		rules:     rules,
		cache:     cache,
		notifier:  notifier,
		evaluator: evaluator,
		ledger:    evaluation.NewLedger(),
		logger:    logger,
		config:    config,
	}
}

// RegisterObligation creates a tracker for a new obligation and runs its
// first evaluation.
func (s *Service) RegisterObligation(ctx context.Context, clientID uuid.UUID, obligation compliance.Obligation) (*compliance.Tracker, error) {
	if err := obligation.Validate(); err != nil {
		return nil, err
	}
	obligation.ClientID = clientID

	tracker := compliance.NewTracker(clientID, obligation)
	if err := s.trackers.Save(ctx, tracker); err != nil {
		return nil, err
	}

	if _, err := s.EvaluateTracker(ctx, tracker.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.trackers.GetByID(ctx, tracker.ID)
}

// EvaluateTracker runs a full evaluation for one tracker as of a date and
// persists the result. Concurrent writers are handled by reloading and
// re-evaluating on a stale version.
func (s *Service) EvaluateTracker(ctx context.Context, trackerID uuid.UUID, asOf time.Time) (*compliance.Result, error) {
	var result *compliance.Result

	err := s.withStaleRetry(func() error {
		tracker, err := s.trackers.GetByID(ctx, trackerID)
		if err != nil {
			return err
		}

		result, err = s.evaluate(ctx, tracker, asOf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetCompliance returns the last persisted evaluation for a tracker
func (s *Service) GetCompliance(ctx context.Context, trackerID uuid.UUID) (*compliance.Result, error) {
	tracker, err := s.trackers.GetByID(ctx, trackerID)
	if err != nil {
		return nil, err
	}
	if tracker.LastResult == nil {
		return s.EvaluateTracker(ctx, trackerID, time.Now().UTC())
	}
	return tracker.LastResult, nil
}

// evaluate runs the engine for one loaded tracker and persists the
// outcome under the tracker's current version.
func (s *Service) evaluate(ctx context.Context, tracker *compliance.Tracker, asOf time.Time) (*compliance.Result, error) {
	start := time.Now()

	rules, err := s.activeRules(ctx, tracker.Obligation.TaxType, asOf)
	if err != nil {
		return nil, err
	}

	existing, err := s.penalties.FindByTracker(ctx, tracker.ID)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluator.Evaluate(ctx, evaluation.Input{
		Obligation:        tracker.Obligation,
		Rules:             rules,
		ExistingPenalties: existing,
		Previous:          tracker.LastResult,
		AsOf:              asOf,
	})
	if err != nil {
		metrics.RecordEvaluation(tracker.Obligation.TaxType.String(), "error", time.Since(start))
		return nil, err
	}

	if err := s.penalties.ReplaceForTracker(ctx, tracker.ID, result.Penalties); err != nil {
		return nil, err
	}

	tracker.LastResult = result
	if err := s.trackers.Save(ctx, tracker); err != nil {
		return nil, err
	}

	s.dispatch(ctx, result)

	metrics.RecordEvaluation(tracker.Obligation.TaxType.String(), result.Status.String(), time.Since(start))
	for i := range result.Penalties {
		metrics.RecordPenaltyComputed(result.Penalties[i].PenaltyType.String())
	}

	return result, nil
}

// ApplyPayment credits a payment against a tracker: penalties first,
// oldest first, with any remainder going to the tax liability itself.
// The tracker is re-evaluated so its status reflects the payment.
func (s *Service) ApplyPayment(ctx context.Context, trackerID uuid.UUID, payment values.Money, paidAt time.Time) (*compliance.Result, error) {
	if !payment.IsPositive() {
		return nil, errors.ErrNegativePayment
	}

	var result *compliance.Result

	err := s.withStaleRetry(func() error {
		tracker, err := s.trackers.GetByID(ctx, trackerID)
		if err != nil {
			return err
		}
		if payment.Currency() != tracker.Obligation.Currency() {
			return errors.ErrCurrencyMismatch
		}

		existing, err := s.penalties.FindByTracker(ctx, trackerID)
		if err != nil {
			return err
		}

		updated, absorbed, err := s.ledger.ApplyPayment(existing, payment)
		if err != nil {
			return err
		}

		remainder, err := payment.Sub(absorbed)
		if err != nil {
			return err
		}
		if remainder.IsPositive() {
			paid, err := tracker.Obligation.AmountPaid.Add(remainder)
			if err != nil {
				// a fresh obligation has no paid amount yet
				paid = remainder
			}
			tracker.Obligation.AmountPaid = paid
			if tracker.Obligation.IsFullyPaid() && tracker.Obligation.PaidDate == nil {
				at := paidAt.UTC()
				tracker.Obligation.PaidDate = &at
			}
		}

		if err := s.penalties.ReplaceForTracker(ctx, trackerID, updated); err != nil {
			return err
		}
		if err := s.trackers.Save(ctx, tracker); err != nil {
			return err
		}

		metrics.RecordPaymentApplied()

		result, err = s.EvaluateTracker(ctx, trackerID, paidAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WaivePenalty administratively cancels one penalty on a tracker's
// ledger and re-evaluates.
func (s *Service) WaivePenalty(ctx context.Context, trackerID, penaltyID uuid.UUID, reason string) (*compliance.Result, error) {
	var result *compliance.Result

	err := s.withStaleRetry(func() error {
		existing, err := s.penalties.FindByTracker(ctx, trackerID)
		if err != nil {
			return err
		}

		found := false
		for i := range existing {
			if existing[i].ID == penaltyID {
				if err := existing[i].Waive(reason); err != nil {
					return err
				}
				found = true
				break
			}
		}
		if !found {
			return errors.NewNotFoundError("penalty")
		}

		if err := s.penalties.ReplaceForTracker(ctx, trackerID, existing); err != nil {
			return err
		}

		result, err = s.EvaluateTracker(ctx, trackerID, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// activeRules loads the rule snapshot for a tax type, cache first
func (s *Service) activeRules(ctx context.Context, taxType compliance.TaxType, asOf time.Time) ([]*compliance.PenaltyRule, error) {
	if s.cache != nil {
		rules, err := s.cache.Get(ctx, taxType, s.config.RuleSetVersion)
		if err != nil {
			s.logger.Warn("rule snapshot cache read failed",
				zap.String("tax_type", taxType.String()),
				zap.Error(err))
		} else if rules != nil {
			metrics.RecordRuleSnapshotLookup("hit")
			return rules, nil
		}
		metrics.RecordRuleSnapshotLookup("miss")
	}

	rules, err := s.rules.FindActive(ctx, taxType, asOf)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, taxType, s.config.RuleSetVersion, rules); err != nil {
			s.logger.Warn("rule snapshot cache write failed",
				zap.String("tax_type", taxType.String()),
				zap.Error(err))
		}
	}
	return rules, nil
}

// dispatch hands alerts and actions to the notifier. Delivery failure is
// logged, not surfaced; the evaluation itself already succeeded.
func (s *Service) dispatch(ctx context.Context, result *compliance.Result) {
	if s.notifier == nil || (len(result.Alerts) == 0 && len(result.Actions) == 0) {
		return
	}

	for i := range result.Alerts {
		metrics.RecordAlertEmitted(string(result.Alerts[i].Severity))
	}

	if err := s.notifier.Notify(ctx, result.Alerts, result.Actions); err != nil {
		s.logger.Error("alert delivery failed",
			zap.String("tracker_id", result.TrackerID.String()),
			zap.Int("alerts", len(result.Alerts)),
			zap.Error(err))
	}
}

// withStaleRetry retries fn when a concurrent writer invalidated the
// tracker version mid-flight.
func (s *Service) withStaleRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < saveRetries; attempt++ {
		err = fn()
		if !stderrors.Is(err, errors.ErrStaleTrackerVersion) {
			return err
		}
		s.logger.Debug("stale tracker version, retrying", zap.Int("attempt", attempt+1))
	}
	return err
}
