package projects

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/reelhouse/reelhouse/internal/platform/httpx"
	"github.com/reelhouse/reelhouse/internal/rbac"
	"github.com/reelhouse/reelhouse/internal/shared"
)

// Handler manages project lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes attaches project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAdmin()).Post("/projects", h.create)
	r.Get("/projects", h.list)
	r.Get("/projects/{projectID}", h.get)
	r.With(h.rbac.RequireAdmin()).Patch("/projects/{projectID}/amounts", h.updateAmounts)
	r.With(h.rbac.RequireAdmin()).Post("/projects/{projectID}/accept", h.accept)
	r.With(h.rbac.RequireAdmin()).Post("/projects/{projectID}/close", h.close)
}

type createRequest struct {
	ClientID     int64     `json:"client_id" validate:"required"`
	Title        string    `json:"title" validate:"required"`
	Currency     string    `json:"currency" validate:"required"`
	ClientAmount float64   `json:"client_amount" validate:"gte=0"`
	Amount       float64   `json:"amount" validate:"gte=0"`
	Deadline     time.Time `json:"deadline"`
}

type updateAmountsRequest struct {
	ClientAmount *float64 `json:"client_amount"`
	Amount       *float64 `json:"amount"`
}

type projectResponse struct {
	ID           int64      `json:"id"`
	ClientID     int64      `json:"client_id"`
	Title        string     `json:"title"`
	Currency     string     `json:"currency"`
	ClientAmount float64    `json:"client_amount"`
	Amount       float64    `json:"amount"`
	Accepted     bool       `json:"accepted"`
	Closed       bool       `json:"closed"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Deadline     time.Time  `json:"deadline"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toProjectResponse(p Project) projectResponse {
	return projectResponse{
		ID:           p.ID,
		ClientID:     p.ClientID,
		Title:        p.Title,
		Currency:     p.Currency,
		ClientAmount: p.ClientAmount,
		Amount:       p.Amount,
		Accepted:     p.Accepted,
		Closed:       p.Closed,
		ClosedAt:     p.ClosedAt,
		Deadline:     p.Deadline,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	project, err := h.service.Create(r.Context(), actor, CreateProjectInput{
		ClientID:     req.ClientID,
		Title:        req.Title,
		Currency:     req.Currency,
		ClientAmount: req.ClientAmount,
		Amount:       req.Amount,
		Deadline:     req.Deadline,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProjectResponse(project))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	records, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]projectResponse, 0, len(records))
	for _, p := range records {
		out = append(out, toProjectResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	project, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(project))
}

func (h *Handler) updateAmounts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	var req updateAmountsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	project, err := h.service.UpdateAmounts(r.Context(), actor, UpdateAmountsInput{
		ProjectID:    id,
		ClientAmount: req.ClientAmount,
		Amount:       req.Amount,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(project))
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	project, err := h.service.Accept(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(project))
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	project, err := h.service.Close(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(project))
}
