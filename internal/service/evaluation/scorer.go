package evaluation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
)

// ScorerConfig tunes the thresholds the statute leaves to administration.
// The sub-score weights themselves are fixed by the scoring model, not
// configuration.
type ScorerConfig struct {
	// DecayDays is the overdue window over which a sub-score decays
	// linearly from 100 to 0.
	DecayDays int `koanf:"decay_days" validate:"gt=0"`

	// AtRiskWindowDays flags obligations approaching a due date.
	AtRiskWindowDays int `koanf:"at_risk_window_days" validate:"gte=0"`

	// GraceDays is the administrative grace before an overdue obligation
	// with no penalty yet computed turns NonCompliant.
	GraceDays int `koanf:"grace_days" validate:"gte=0"`
}

// DefaultScorerConfig returns the standard thresholds
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		DecayDays:        90,
		AtRiskWindowDays: 7,
		GraceDays:        0,
	}
}

// Sub-score weights: filing 30%, payment 30%, documentation 20%,
// timeliness 20%.
var (
	weightFiling        = decimal.NewFromFloat(0.3)
	weightPayment       = decimal.NewFromFloat(0.3)
	weightDocumentation = decimal.NewFromFloat(0.2)
	weightTimeliness    = decimal.NewFromFloat(0.2)

	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Scorer aggregates filing, payment, documentation, and timeliness
// signals into a 0-100 score, a risk bucket, and a headline status.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a compliance scorer
func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.DecayDays <= 0 {
		cfg = DefaultScorerConfig()
	}
	return &Scorer{cfg: cfg}
}

// Score computes the weighted compliance score and derives the risk level
// and status for one obligation given its reconciled ledger totals.
func (s *Scorer) Score(obligation *compliance.Obligation, totals LedgerTotals, asOf time.Time) (decimal.Decimal, compliance.RiskLevel, compliance.ComplianceStatus) {
	filing := s.decayScore(obligation.DaysOverdueFiling(asOf))
	payment := s.paymentScore(obligation, asOf)
	documentation := decimal.Zero
	if obligation.DocumentationComplete {
		documentation = hundred
	}
	timeliness := filing.Add(payment).Div(two)

	score := filing.Mul(weightFiling).
		Add(payment.Mul(weightPayment)).
		Add(documentation.Mul(weightDocumentation)).
		Add(timeliness.Mul(weightTimeliness)).
		Round(2)

	return score, s.riskLevel(score), s.status(obligation, totals, asOf)
}

// decayScore is 100 at zero days overdue, falling linearly to 0 over the
// decay window.
func (s *Scorer) decayScore(daysOverdue int) decimal.Decimal {
	if daysOverdue <= 0 {
		return hundred
	}
	if daysOverdue >= s.cfg.DecayDays {
		return decimal.Zero
	}
	ratio := decimal.NewFromInt(int64(daysOverdue)).Div(decimal.NewFromInt(int64(s.cfg.DecayDays)))
	return hundred.Mul(decimal.NewFromInt(1).Sub(ratio))
}

// paymentScore decays like the filing score but only while a balance is
// actually outstanding; a settled liability scores full marks even if it
// was settled late.
func (s *Scorer) paymentScore(obligation *compliance.Obligation, asOf time.Time) decimal.Decimal {
	if !obligation.OutstandingLiability().IsPositive() {
		return hundred
	}
	return s.decayScore(obligation.DaysOverduePayment(asOf))
}

func (s *Scorer) riskLevel(score decimal.Decimal) compliance.RiskLevel {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return compliance.RiskLow
	case score.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return compliance.RiskMedium
	case score.GreaterThanOrEqual(decimal.NewFromInt(40)):
		return compliance.RiskHigh
	default:
		return compliance.RiskCritical
	}
}

// status derives the headline state. Exemption overrides everything, then
// outstanding penalties, then overdue-beyond-grace, then the at-risk
// window, else compliant.
func (s *Scorer) status(obligation *compliance.Obligation, totals LedgerTotals, asOf time.Time) compliance.ComplianceStatus {
	if obligation.HasExemption {
		return compliance.StatusExempted
	}

	if totals.Outstanding.IsPositive() {
		return compliance.StatusPenaltyApplied
	}

	filingOverdue := !obligation.IsFiled() && obligation.DaysOverdueFiling(asOf) > s.cfg.GraceDays
	paymentOverdue := obligation.OutstandingLiability().IsPositive() &&
		obligation.DaysOverduePayment(asOf) > s.cfg.GraceDays
	if filingOverdue || paymentOverdue {
		return compliance.StatusNonCompliant
	}

	if s.withinAtRiskWindow(obligation, asOf) {
		return compliance.StatusAtRisk
	}

	return compliance.StatusCompliant
}

// withinAtRiskWindow reports whether an incomplete duty is inside the
// warning window before its due date.
func (s *Scorer) withinAtRiskWindow(obligation *compliance.Obligation, asOf time.Time) bool {
	window := time.Duration(s.cfg.AtRiskWindowDays) * 24 * time.Hour

	if !obligation.IsFiled() {
		until := obligation.FilingDueDate.Sub(asOf)
		if until >= 0 && until <= window {
			return true
		}
	}
	if obligation.OutstandingLiability().IsPositive() {
		until := obligation.PaymentDueDate.Sub(asOf)
		if until >= 0 && until <= window {
			return true
		}
	}
	return false
}
