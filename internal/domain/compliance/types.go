package compliance

// TaxType identifies the tax head an obligation or rule belongs to
type TaxType string

const (
	TaxTypeIncomeTax  TaxType = "income_tax"
	TaxTypeGST        TaxType = "gst"
	TaxTypePayrollTax TaxType = "payroll_tax"
	TaxTypeExciseDuty TaxType = "excise_duty"
)

// String returns the string representation of TaxType
func (t TaxType) String() string {
	return string(t)
}

// IsValid checks if the tax type is valid
func (t TaxType) IsValid() bool {
	switch t {
	case TaxTypeIncomeTax, TaxTypeGST, TaxTypePayrollTax, TaxTypeExciseDuty:
		return true
	default:
		return false
	}
}

// PenaltyType identifies the statutory ground for a penalty
type PenaltyType string

const (
	PenaltyTypeLateFiling       PenaltyType = "late_filing"
	PenaltyTypeLatePayment      PenaltyType = "late_payment"
	PenaltyTypeNonFiling        PenaltyType = "non_filing"
	PenaltyTypeUnderDeclaration PenaltyType = "under_declaration"
	PenaltyTypeInterest         PenaltyType = "interest"
	PenaltyTypeAdministrative   PenaltyType = "administrative"
	PenaltyTypeCriminal         PenaltyType = "criminal"
)

// String returns the string representation of PenaltyType
func (p PenaltyType) String() string {
	return string(p)
}

// IsValid checks if the penalty type is valid
func (p PenaltyType) IsValid() bool {
	switch p {
	case PenaltyTypeLateFiling, PenaltyTypeLatePayment, PenaltyTypeNonFiling,
		PenaltyTypeUnderDeclaration, PenaltyTypeInterest,
		PenaltyTypeAdministrative, PenaltyTypeCriminal:
		return true
	default:
		return false
	}
}

// UsesFilingDueDate reports whether days overdue for this penalty type are
// measured against the filing due date rather than the payment due date.
func (p PenaltyType) UsesFilingDueDate() bool {
	switch p {
	case PenaltyTypeLateFiling, PenaltyTypeNonFiling, PenaltyTypeUnderDeclaration:
		return true
	default:
		return false
	}
}

// TaxpayerCategory segments taxpayers for rule applicability. A nil
// category on a rule is a wildcard that matches every taxpayer.
type TaxpayerCategory string

const (
	CategoryIndividual    TaxpayerCategory = "individual"
	CategorySmallBusiness TaxpayerCategory = "small_business"
	CategoryCorporate     TaxpayerCategory = "corporate"
	CategoryNGO           TaxpayerCategory = "ngo"
	CategoryGovernment    TaxpayerCategory = "government"
)

// String returns the string representation of TaxpayerCategory
func (c TaxpayerCategory) String() string {
	return string(c)
}

// IsValid checks if the taxpayer category is valid
func (c TaxpayerCategory) IsValid() bool {
	switch c {
	case CategoryIndividual, CategorySmallBusiness, CategoryCorporate,
		CategoryNGO, CategoryGovernment:
		return true
	default:
		return false
	}
}

// ComplianceStatus is the headline state of one obligation
type ComplianceStatus string

const (
	StatusCompliant      ComplianceStatus = "compliant"
	StatusAtRisk         ComplianceStatus = "at_risk"
	StatusNonCompliant   ComplianceStatus = "non_compliant"
	StatusPenaltyApplied ComplianceStatus = "penalty_applied"
	StatusUnderReview    ComplianceStatus = "under_review"
	StatusExempted       ComplianceStatus = "exempted"
)

// String returns the string representation of ComplianceStatus
func (s ComplianceStatus) String() string {
	return string(s)
}

// Rank orders the main-line statuses for transition detection. Side states
// (UnderReview, Exempted) are reachable from anywhere and rank as -1.
func (s ComplianceStatus) Rank() int {
	switch s {
	case StatusCompliant:
		return 0
	case StatusAtRisk:
		return 1
	case StatusNonCompliant:
		return 2
	case StatusPenaltyApplied:
		return 3
	default:
		return -1
	}
}

// RiskLevel is the coarse bucket derived from the compliance score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// String returns the string representation of RiskLevel
func (r RiskLevel) String() string {
	return string(r)
}

// AlertSeverity maps from risk level for notifier consumption
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
	SeverityUrgent   AlertSeverity = "urgent"
)

// SeverityForRisk maps a risk level to the alert severity the notifier
// should use for it.
func SeverityForRisk(r RiskLevel) AlertSeverity {
	switch r {
	case RiskLow:
		return SeverityInfo
	case RiskMedium:
		return SeverityWarning
	case RiskHigh:
		return SeverityCritical
	case RiskCritical:
		return SeverityUrgent
	default:
		return SeverityInfo
	}
}

// ActionType identifies a remediation action generated for an obligation
type ActionType string

const (
	ActionFileReturn    ActionType = "file_return"
	ActionMakePayment   ActionType = "make_payment"
	ActionSettlePenalty ActionType = "settle_penalty"
	ActionUploadDocs    ActionType = "upload_documents"
)

// String returns the string representation of ActionType
func (a ActionType) String() string {
	return string(a)
}
