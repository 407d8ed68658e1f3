package payments

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/reelhouse/reelhouse/internal/observability"
	"github.com/reelhouse/reelhouse/internal/platform/httpx"
	"github.com/reelhouse/reelhouse/internal/rbac"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// Handler manages ledger and settlement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
	metrics   *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac, metrics: metrics}
}

// MountRoutes attaches payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAdmin()).Post("/payments/manual", h.createManual)
	r.With(h.rbac.RequireAdmin()).Post("/payments/{paymentID}/paid", h.markPaid)
	r.With(h.rbac.RequireAdmin()).Post("/payments/{paymentID}/received", h.markReceived)
	r.Get("/payments/{paymentID}", h.get)
	r.Get("/projects/{projectID}/payments", h.listByProject)
	r.With(h.rbac.RequireAdmin()).Post("/settlements", h.settle)
}

type manualRequest struct {
	Type                string  `json:"type" validate:"required,oneof=editor_payout client_charge bonus deduction"`
	Amount              float64 `json:"amount" validate:"required"`
	Description         string  `json:"description"`
	ProjectID           int64   `json:"project_id"`
	EditorID            int64   `json:"editor_id"`
	ClientID            int64   `json:"client_id"`
	Currency            string  `json:"currency" validate:"required"`
	MarkPaidImmediately bool    `json:"mark_paid_immediately"`
}

type markPaidRequest struct {
	Proof string `json:"proof"`
}

type settleRequest struct {
	Kind            string  `json:"kind" validate:"required,oneof=editor client"`
	PaymentIDs      []int64 `json:"payment_ids"`
	Proof           string  `json:"proof"`
	BonusAmount     float64 `json:"bonus_amount" validate:"gte=0"`
	DeductionAmount float64 `json:"deduction_amount" validate:"gte=0"`
	Notes           string  `json:"notes"`
}

type paymentResponse struct {
	ID                int64      `json:"id"`
	Type              string     `json:"type"`
	ProjectID         int64      `json:"project_id,omitempty"`
	WorkItemID        int64      `json:"work_item_id,omitempty"`
	EditorID          int64      `json:"editor_id,omitempty"`
	ClientID          int64      `json:"client_id,omitempty"`
	Description       string     `json:"description,omitempty"`
	OriginalAmount    float64    `json:"original_amount"`
	PenaltyAmount     float64    `json:"penalty_amount"`
	FinalAmount       float64    `json:"final_amount"`
	Currency          string     `json:"currency"`
	Paid              bool       `json:"paid"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	Received          bool       `json:"received"`
	ReceivedAt        *time.Time `json:"received_at,omitempty"`
	PaymentScreenshot string     `json:"payment_screenshot,omitempty"`
	DeadlineCrossed   bool       `json:"deadline_crossed"`
	DaysLate          int        `json:"days_late"`
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID,
		Type:              string(p.Type),
		ProjectID:         p.ProjectID,
		WorkItemID:        p.WorkItemID,
		EditorID:          p.EditorID,
		ClientID:          p.ClientID,
		Description:       p.Description,
		OriginalAmount:    p.OriginalAmount,
		PenaltyAmount:     p.PenaltyAmount,
		FinalAmount:       p.FinalAmount,
		Currency:          p.Currency,
		Paid:              p.Paid,
		PaidAt:            p.PaidAt,
		Received:          p.Received,
		ReceivedAt:        p.ReceivedAt,
		PaymentScreenshot: p.PaymentScreenshot,
		DeadlineCrossed:   p.DeadlineCrossed,
		DaysLate:          p.DaysLate,
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	payment, err := h.service.CreateManual(r.Context(), actor, ManualInput{
		Type:                PaymentType(req.Type),
		Amount:              req.Amount,
		Description:         req.Description,
		ProjectID:           req.ProjectID,
		EditorID:            req.EditorID,
		ClientID:            req.ClientID,
		Currency:            req.Currency,
		MarkPaidImmediately: req.MarkPaidImmediately,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "paymentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	// An empty body means no proof attached.
	var req markPaidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	payment, err := h.service.MarkPaid(r.Context(), actor, id, req.Proof)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) markReceived(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "paymentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	payment, err := h.service.MarkReceived(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "paymentID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	payment, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) listByProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	records, err := h.service.ListByProject(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(records))
	for _, p := range records {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	result, err := h.service.Settle(r.Context(), actor, SettleInput{
		Kind:            SettlementKind(req.Kind),
		PaymentIDs:      req.PaymentIDs,
		Proof:           req.Proof,
		BonusAmount:     req.BonusAmount,
		DeductionAmount: req.DeductionAmount,
		Notes:           req.Notes,
	})
	h.metrics.ObserveSettlement(req.Kind, err)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
