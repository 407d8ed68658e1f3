package breakdown

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

// Handler manages work breakdown endpoints.
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

// MountRoutes attaches breakdown routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAdmin()).Post("/projects/{projectID}/items", h.addItem)
	r.Get("/projects/{projectID}/items", h.listItems)
	r.Get("/projects/{projectID}/progress", h.progress)
	r.With(h.rbac.RequireAdmin()).Patch("/items/{itemID}", h.updateItem)
	r.With(h.rbac.RequireAdmin()).Delete("/items/{itemID}", h.removeItem)
	r.With(h.rbac.RequireRole(shared.RoleAdmin, shared.RoleClient)).Post("/items/{itemID}/approve", h.approve)
	r.With(h.rbac.RequireRole(shared.RoleEditor)).Post("/items/{itemID}/decline", h.decline)
	r.With(h.rbac.RequireRole(shared.RoleEditor)).Post("/items/{itemID}/start", h.start)
}

type addItemRequest struct {
	WorkType       string    `json:"work_type" validate:"required"`
	AssignedEditor int64     `json:"assigned_editor"`
	Percentage     float64   `json:"percentage" validate:"required,gt=0,lte=100"`
	Deadline       time.Time `json:"deadline"`
	ShareDetails   string    `json:"share_details"`
	Links          []string  `json:"links"`
}

type updateItemRequest struct {
	WorkType       *string    `json:"work_type"`
	AssignedEditor *int64     `json:"assigned_editor"`
	Percentage     *float64   `json:"percentage" validate:"omitempty,gt=0,lte=100"`
	Deadline       *time.Time `json:"deadline"`
	ShareDetails   *string    `json:"share_details"`
	Links          []string   `json:"links"`
}

type itemResponse struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	WorkType       string    `json:"work_type"`
	AssignedEditor int64     `json:"assigned_editor"`
	Percentage     float64   `json:"percentage"`
	Amount         float64   `json:"amount"`
	Deadline       time.Time `json:"deadline"`
	AdminApproved  bool      `json:"admin_approved"`
	ClientApproved bool      `json:"client_approved"`
	Status         string    `json:"status"`
	ShareDetails   string    `json:"share_details,omitempty"`
	Links          []string  `json:"links,omitempty"`
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:             item.ID,
		ProjectID:      item.ProjectID,
		WorkType:       item.WorkType,
		AssignedEditor: item.AssignedEditor,
		Percentage:     item.Percentage,
		Amount:         item.Amount,
		Deadline:       item.Deadline,
		AdminApproved:  item.AdminApproved,
		ClientApproved: item.ClientApproved,
		Status:         string(item.Status),
		ShareDetails:   item.ShareDetails,
		Links:          item.Links,
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	item, err := h.service.AddItem(r.Context(), actor, AddItemInput{
		ProjectID:      projectID,
		WorkType:       req.WorkType,
		AssignedEditor: req.AssignedEditor,
		Percentage:     req.Percentage,
		Deadline:       req.Deadline,
		ShareDetails:   req.ShareDetails,
		Links:          req.Links,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	items, err := h.service.ListItems(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(r, "projectID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return
	}
	progress, err := h.service.Progress(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"progress": progress})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	item, err := h.service.UpdateItem(r.Context(), actor, UpdateItemInput{
		ItemID:         itemID,
		WorkType:       req.WorkType,
		AssignedEditor: req.AssignedEditor,
		Percentage:     req.Percentage,
		Deadline:       req.Deadline,
		ShareDetails:   req.ShareDetails,
		Links:          req.Links,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	if err := h.service.RemoveItem(r.Context(), actor, itemID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	item, err := h.service.Approve(r.Context(), actor, itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) decline(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	item, err := h.service.Decline(r.Context(), actor, itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	item, err := h.service.StartWork(r.Context(), actor, itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toItemResponse(item))
}
