package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

// ComplianceService is the orchestration surface the API exposes
type ComplianceService interface {
	RegisterObligation(ctx context.Context, clientID uuid.UUID, obligation compliance.Obligation) (*compliance.Tracker, error)
	EvaluateTracker(ctx context.Context, trackerID uuid.UUID, asOf time.Time) (*compliance.Result, error)
	GetCompliance(ctx context.Context, trackerID uuid.UUID) (*compliance.Result, error)
	ApplyPayment(ctx context.Context, trackerID uuid.UUID, payment values.Money, paidAt time.Time) (*compliance.Result, error)
	WaivePenalty(ctx context.Context, trackerID, penaltyID uuid.UUID, reason string) (*compliance.Result, error)
}

// Handler holds the API handlers
type Handler struct {
	service  ComplianceService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates the API handler set
func NewHandler(service ComplianceService, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

type createTrackerRequest struct {
	ClientID       string     `json:"client_id" validate:"required,uuid"`
	TaxType        string     `json:"tax_type" validate:"required"`
	TaxYear        int        `json:"tax_year" validate:"required,gte=2000"`
	Category       string     `json:"category" validate:"required"`
	FilingDueDate  time.Time  `json:"filing_due_date" validate:"required"`
	PaymentDueDate time.Time  `json:"payment_due_date" validate:"required"`
	FiledDate      *time.Time `json:"filed_date,omitempty"`
	PaidDate       *time.Time `json:"paid_date,omitempty"`

	TaxLiability string `json:"tax_liability" validate:"required"`
	AmountPaid   string `json:"amount_paid,omitempty"`
	Currency     string `json:"currency" validate:"required,len=3"`

	DocumentationComplete bool `json:"documentation_complete"`
	HasExtension          bool `json:"has_extension"`
	HasExemption          bool `json:"has_exemption"`
}

func (req *createTrackerRequest) toObligation() (compliance.Obligation, error) {
	liability, err := values.NewMoneyFromString(req.TaxLiability, req.Currency)
	if err != nil {
		return compliance.Obligation{}, errors.NewValidationError("INVALID_AMOUNT", err.Error())
	}
	paid := values.Zero(req.Currency)
	if req.AmountPaid != "" {
		if paid, err = values.NewMoneyFromString(req.AmountPaid, req.Currency); err != nil {
			return compliance.Obligation{}, errors.NewValidationError("INVALID_AMOUNT", err.Error())
		}
	}

	return compliance.Obligation{
		TaxType:               compliance.TaxType(req.TaxType),
		TaxYear:               req.TaxYear,
		Category:              compliance.TaxpayerCategory(req.Category),
		FilingDueDate:         req.FilingDueDate,
		PaymentDueDate:        req.PaymentDueDate,
		FiledDate:             req.FiledDate,
		PaidDate:              req.PaidDate,
		TaxLiability:          liability,
		AmountPaid:            paid,
		DocumentationComplete: req.DocumentationComplete,
		HasExtension:          req.HasExtension,
		HasExemption:          req.HasExemption,
	}, nil
}

type evaluateRequest struct {
	TrackerID string     `json:"tracker_id" validate:"required,uuid"`
	AsOf      *time.Time `json:"as_of,omitempty"`
}

type paymentRequest struct {
	Amount   string     `json:"amount" validate:"required"`
	Currency string     `json:"currency" validate:"required,len=3"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`
}

type waiveRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleCreateTracker(w http.ResponseWriter, r *http.Request) {
	var req createTrackerRequest
	if !h.decode(w, r, &req) {
		return
	}

	obligation, err := req.toObligation()
	if err != nil {
		writeError(w, err)
		return
	}

	tracker, err := h.service.RegisterObligation(r.Context(), uuid.MustParse(req.ClientID), obligation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tracker)
}

func (h *Handler) handleGetCompliance(w http.ResponseWriter, r *http.Request) {
	trackerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.GetCompliance(r.Context(), trackerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	result, err := h.service.EvaluateTracker(r.Context(), uuid.MustParse(req.TrackerID), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	trackerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	payment, err := values.NewMoneyFromString(req.Amount, req.Currency)
	if err != nil {
		writeError(w, errors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}
	paidAt := time.Now().UTC()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	result, err := h.service.ApplyPayment(r.Context(), trackerID, payment, paidAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleWaivePenalty(w http.ResponseWriter, r *http.Request) {
	trackerID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	penaltyID, ok := pathUUID(w, r, "penaltyID")
	if !ok {
		return
	}

	var req waiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.WaivePenalty(r.Context(), trackerID, penaltyID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode parses and validates a JSON request body, responding on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, errors.NewValidationError("INVALID_JSON", "Request body is not valid JSON"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, errors.NewValidationError("INVALID_ID", "Path segment "+name+" must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}
