package lending

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prestana/prestana/internal/observability"
	"github.com/prestana/prestana/internal/platform/httpx"
)

// Handler exposes the lending service over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers lending routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/loans", h.createLoan)
	r.Get("/loans", h.listLoans)
	r.Get("/loans/{id}", h.getLoan)
	r.Get("/loans/{id}/penalty", h.penaltyPreview)
	r.Post("/loans/{id}/payments", h.registerPayment)
	r.Post("/loans/{id}/bad-debt", h.markBadDebt)
	r.Post("/payments/{id}/reverse", h.reversePayment)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, ErrPaymentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrStateInconsistent):
		httpx.Problem(w, http.StatusConflict, "State Inconsistent", err.Error())
	default:
		h.logger.Error("lending handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type createLoanRequest struct {
	BusinessID          string          `json:"business_id" validate:"required,uuid"`
	Amount              decimal.Decimal `json:"amount" validate:"required"`
	InterestRateMonthly decimal.Decimal `json:"interest_rate_monthly" validate:"required"`
	Duration            int             `json:"duration" validate:"gte=0"`
	Frequency           string          `json:"frequency" validate:"required,oneof=daily weekly biweekly monthly"`
	LendingType         string          `json:"lending_type" validate:"required,oneof=redito fixed amortization"`
	StartDate           string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	FirstPaymentDate    string          `json:"first_payment_date" validate:"required,datetime=2006-01-02"`
	RoundToFive         bool            `json:"round_to_five"`
	Penalty             penaltyRequest  `json:"penalty"`
}

type penaltyRequest struct {
	Basis               string           `json:"basis" validate:"omitempty,oneof=fixed percent"`
	Value               decimal.Decimal  `json:"value"`
	GracePeriod         int              `json:"grace_period" validate:"gte=0"`
	PeriodMode          string           `json:"period_mode" validate:"omitempty,oneof=daily weekly biweekly monthly"`
	ApplyOn             string           `json:"apply_on" validate:"omitempty,oneof=quota capital interest balance"`
	ApplyPerInstallment bool             `json:"apply_per_installment"`
	MaxPenalty          *decimal.Decimal `json:"max_penalty"`
}

func (p penaltyRequest) toConfig() PenaltyConfig {
	cfg := PenaltyConfig{
		Basis:               PenaltyBasis(p.Basis),
		Value:               p.Value,
		GracePeriod:         p.GracePeriod,
		PeriodMode:          PeriodMode(p.PeriodMode),
		ApplyOn:             PenaltyApplyOn(p.ApplyOn),
		ApplyPerInstallment: p.ApplyPerInstallment,
		MaxPenalty:          p.MaxPenalty,
		PaidPenalty:         decimal.Zero,
	}
	if cfg.Basis == "" {
		cfg.Basis = PenaltyFixed
	}
	if cfg.PeriodMode == "" {
		cfg.PeriodMode = PeriodDaily
	}
	if cfg.ApplyOn == "" {
		cfg.ApplyOn = PenaltyOnQuota
	}
	return cfg
}

func (h *Handler) createLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	businessID, _ := uuid.Parse(req.BusinessID)
	startDate, _ := time.Parse("2006-01-02", req.StartDate)
	firstPayment, _ := time.Parse("2006-01-02", req.FirstPaymentDate)

	loan, err := h.service.CreateLoan(r.Context(), CreateLoanInput{
		BusinessID:          businessID,
		Amount:              req.Amount,
		InterestRateMonthly: req.InterestRateMonthly,
		Duration:            req.Duration,
		Frequency:           Frequency(req.Frequency),
		LendingType:         LendingType(req.LendingType),
		StartDate:           startDate,
		FirstPaymentDate:    firstPayment,
		RoundToFive:         req.RoundToFive,
		Penalty:             req.Penalty.toConfig(),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(r.URL.Query().Get("business_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "business_id is required")
		return
	}
	loans, err := h.service.ListLoans(r.Context(), businessID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loans)
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) penaltyPreview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid as_of (use YYYY-MM-DD)")
			return
		}
	}
	result, err := h.service.PenaltyPreview(r.Context(), id, asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type registerPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
	PaidAt string          `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}
	var req registerPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	var paidAt time.Time
	if req.PaidAt != "" {
		paidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}
	payment, err := h.service.RegisterPayment(r.Context(), RegisterPaymentInput{
		LoanID: loanID,
		Amount: req.Amount,
		PaidAt: paidAt,
	})
	if err != nil {
		h.metrics.RecordPayment("rejected")
		h.respondError(w, err)
		return
	}
	h.metrics.RecordPayment("applied")
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	loan, err := h.service.ReversePayment(r.Context(), paymentID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.RecordPayment("reversed")
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) markBadDebt(w http.ResponseWriter, r *http.Request) {
	loanID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}
	loan, err := h.service.MarkBadDebt(r.Context(), loanID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}
