package compliance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// Result is the full output of one evaluation: headline status, risk,
// score, the reconciled penalty ledger, and the alerts/actions handed to
// the notifier. The engine computes it; persistence and delivery are the
// caller's concern.
type Result struct {
	TrackerID uuid.UUID `json:"tracker_id"`

	Status    ComplianceStatus `json:"status"`
	RiskLevel RiskLevel        `json:"risk_level"`

	// Score is 0-100, exact decimal so repeated evaluation is
	// byte-identical.
	Score decimal.Decimal `json:"score"`

	Penalties []Penalty `json:"penalties"`

	TotalOwed   values.Money `json:"total_owed"`
	TotalPaid   values.Money `json:"total_paid"`
	Outstanding values.Money `json:"outstanding"`

	Alerts  []Alert  `json:"alerts"`
	Actions []Action `json:"actions"`

	// OpenActions is the full set of still-open remediation steps, not
	// just the ones first emitted by this evaluation. The next
	// evaluation dedupes new actions against it, so an action stays
	// suppressed for as long as it remains open.
	OpenActions []Action `json:"open_actions,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// HasOutstandingPenalties reports whether any unpaid, unwaived penalty
// remains on the ledger.
func (r *Result) HasOutstandingPenalties() bool {
	return r != nil && r.Outstanding.IsPositive()
}

// AlertType classifies a compliance alert for the notifier
type AlertType string

const (
	AlertStatusChange   AlertType = "status_change"
	AlertPenaltyApplied AlertType = "penalty_applied"
	AlertResolved       AlertType = "resolved"
)

// Alert is a structured signal for the notifier. It carries no delivery
// detail and no generated ID; the notifier assigns identity on ingestion.
type Alert struct {
	Type       AlertType        `json:"type"`
	Severity   AlertSeverity    `json:"severity"`
	TrackerID  uuid.UUID        `json:"tracker_id"`
	FromStatus ComplianceStatus `json:"from_status"`
	ToStatus   ComplianceStatus `json:"to_status"`
	Message    string           `json:"message"`
}

// Action is a remediation step the taxpayer should take. Actions are
// idempotent on (Type, TrackerID): an open action is never duplicated.
type Action struct {
	Type        ActionType `json:"type"`
	TrackerID   uuid.UUID  `json:"tracker_id"`
	Description string     `json:"description"`
}

// Key is the idempotency key for open-action deduplication
func (a Action) Key() string {
	return fmt.Sprintf("%s|%s", a.Type, a.TrackerID)
}
