package evaluation

import (
	"fmt"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
)

// AlertEngine detects status transitions between two evaluations and
// turns them into alerts and remediation actions for the notifier. It
// holds no state; idempotency comes from keying actions against the open
// actions of the previous result.
type AlertEngine struct{}

// NewAlertEngine creates an alert engine
func NewAlertEngine() *AlertEngine {
	return &AlertEngine{}
}

// DetectTransitions compares the previous result with the current status
// and risk. An alert is emitted on every forward transition along
// Compliant -> AtRisk -> NonCompliant -> PenaltyApplied and on first
// entry to PenaltyApplied, including entry from a side state; a resolved
// signal on any transition back to Compliant. Other transitions involving
// the side states (UnderReview, Exempted) are silent.
//
// The second return value holds the newly emitted actions, the third the
// full set of currently open actions for carrying on the result.
func (a *AlertEngine) DetectTransitions(previous *compliance.Result, status compliance.ComplianceStatus, risk compliance.RiskLevel, obligation *compliance.Obligation, totals LedgerTotals) ([]compliance.Alert, []compliance.Action, []compliance.Action) {
	prevStatus := compliance.StatusCompliant
	if previous != nil {
		prevStatus = previous.Status
	}

	alerts := a.alerts(prevStatus, status, risk, obligation)
	actions, open := a.actions(previous, status, obligation, totals)
	return alerts, actions, open
}

func (a *AlertEngine) alerts(prev, curr compliance.ComplianceStatus, risk compliance.RiskLevel, obligation *compliance.Obligation) []compliance.Alert {
	if prev == curr {
		return nil
	}

	// back to compliant from anywhere resolves the episode
	if curr == compliance.StatusCompliant {
		return []compliance.Alert{{
			Type:       compliance.AlertResolved,
			Severity:   compliance.SeverityInfo,
			TrackerID:  obligation.TrackerID,
			FromStatus: prev,
			ToStatus:   curr,
			Message: fmt.Sprintf("%s %d obligation is back in compliance",
				obligation.TaxType, obligation.TaxYear),
		}}
	}

	// entering a side state is administrative, not an escalation
	if curr.Rank() < 0 {
		return nil
	}
	// leaving a side state alerts only when penalties land
	if prev.Rank() < 0 && curr != compliance.StatusPenaltyApplied {
		return nil
	}
	if prev.Rank() >= 0 && curr.Rank() <= prev.Rank() {
		return nil
	}

	alertType := compliance.AlertStatusChange
	message := fmt.Sprintf("%s %d obligation moved from %s to %s",
		obligation.TaxType, obligation.TaxYear, prev, curr)
	if curr == compliance.StatusPenaltyApplied {
		alertType = compliance.AlertPenaltyApplied
		message = fmt.Sprintf("%s %d obligation has accrued penalties",
			obligation.TaxType, obligation.TaxYear)
	}

	return []compliance.Alert{{
		Type:       alertType,
		Severity:   compliance.SeverityForRisk(risk),
		TrackerID:  obligation.TrackerID,
		FromStatus: prev,
		ToStatus:   curr,
		Message:    message,
	}}
}

// actions generates remediation steps. Candidates reflect what the
// obligation currently requires; any candidate whose key was already open
// on the previous result is carried but not re-emitted, so an open action
// is never duplicated no matter how many evaluations run in between.
func (a *AlertEngine) actions(previous *compliance.Result, status compliance.ComplianceStatus, obligation *compliance.Obligation, totals LedgerTotals) (emitted, open []compliance.Action) {
	if status == compliance.StatusExempted {
		return nil, nil
	}

	alreadyOpen := make(map[string]bool)
	if previous != nil {
		for _, act := range previous.OpenActions {
			alreadyOpen[act.Key()] = true
		}
		// results persisted before open-action tracking carried only
		// the emitted subset
		for _, act := range previous.Actions {
			alreadyOpen[act.Key()] = true
		}
	}

	var candidates []compliance.Action

	if !obligation.IsFiled() {
		candidates = append(candidates, compliance.Action{
			Type:      compliance.ActionFileReturn,
			TrackerID: obligation.TrackerID,
			Description: fmt.Sprintf("File the %s return for %d",
				obligation.TaxType, obligation.TaxYear),
		})
	}
	if obligation.OutstandingLiability().IsPositive() {
		candidates = append(candidates, compliance.Action{
			Type:      compliance.ActionMakePayment,
			TrackerID: obligation.TrackerID,
			Description: fmt.Sprintf("Pay the outstanding %s liability of %s",
				obligation.TaxType, obligation.OutstandingLiability()),
		})
	}
	if totals.Outstanding.IsPositive() {
		candidates = append(candidates, compliance.Action{
			Type:      compliance.ActionSettlePenalty,
			TrackerID: obligation.TrackerID,
			Description: fmt.Sprintf("Settle outstanding penalties of %s",
				totals.Outstanding),
		})
	}
	if !obligation.DocumentationComplete && status != compliance.StatusCompliant {
		candidates = append(candidates, compliance.Action{
			Type:      compliance.ActionUploadDocs,
			TrackerID: obligation.TrackerID,
			Description: fmt.Sprintf("Complete supporting documentation for the %s %d filing",
				obligation.TaxType, obligation.TaxYear),
		})
	}

	for _, c := range candidates {
		if alreadyOpen[c.Key()] {
			continue
		}
		emitted = append(emitted, c)
	}
	return emitted, candidates
}
