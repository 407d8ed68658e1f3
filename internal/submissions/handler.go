package submissions

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

// Handler manages delivery and correction endpoints.
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

// MountRoutes attaches submission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireRole(shared.RoleEditor)).Post("/items/{itemID}/submissions", h.submit)
	r.Get("/items/{itemID}/submissions", h.list)
	r.With(h.rbac.RequireRole(shared.RoleAdmin, shared.RoleClient)).Post("/items/{itemID}/corrections", h.addCorrection)
	r.Get("/items/{itemID}/corrections", h.listCorrections)
	r.With(h.rbac.RequireRole(shared.RoleEditor)).Post("/corrections/{correctionID}/resolve", h.resolveCorrection)
}

type submitRequest struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=file link"`
	FileURL  string `json:"file_url" validate:"required"`
	FileName string `json:"file_name"`
	Message  string `json:"message"`
}

type correctionRequest struct {
	Detail     string   `json:"detail" validate:"required"`
	VoiceFile  string   `json:"voice_file"`
	MediaFiles []string `json:"media_files"`
}

type submissionResponse struct {
	ID          int64     `json:"id"`
	WorkItemID  int64     `json:"work_item_id"`
	ProjectID   int64     `json:"project_id"`
	EditorID    int64     `json:"editor_id"`
	Kind        string    `json:"kind"`
	FileURL     string    `json:"file_url"`
	FileName    string    `json:"file_name,omitempty"`
	Message     string    `json:"message,omitempty"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Late        bool      `json:"late"`
	DaysLate    int       `json:"days_late"`
}

type correctionResponse struct {
	ID         int64      `json:"id"`
	WorkItemID int64      `json:"work_item_id"`
	AuthorID   int64      `json:"author_id"`
	Detail     string     `json:"detail"`
	VoiceFile  string     `json:"voice_file,omitempty"`
	MediaFiles []string   `json:"media_files,omitempty"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toSubmissionResponse(s Submission) submissionResponse {
	return submissionResponse{
		ID:          s.ID,
		WorkItemID:  s.WorkItemID,
		ProjectID:   s.ProjectID,
		EditorID:    s.EditorID,
		Kind:        string(s.Kind),
		FileURL:     s.FileURL,
		FileName:    s.FileName,
		Message:     s.Message,
		Status:      string(s.Status),
		SubmittedAt: s.SubmittedAt,
		Late:        s.Late,
		DaysLate:    s.DaysLate,
	}
}

func toCorrectionResponse(c Correction) correctionResponse {
	return correctionResponse{
		ID:         c.ID,
		WorkItemID: c.WorkItemID,
		AuthorID:   c.AuthorID,
		Detail:     c.Detail,
		VoiceFile:  c.VoiceFile,
		MediaFiles: c.MediaFiles,
		Resolved:   c.Resolved,
		ResolvedAt: c.ResolvedAt,
		CreatedAt:  c.CreatedAt,
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	sub, err := h.service.Submit(r.Context(), actor, SubmitInput{
		WorkItemID: itemID,
		Kind:       Kind(req.Kind),
		FileURL:    req.FileURL,
		FileName:   req.FileName,
		Message:    req.Message,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSubmissionResponse(sub))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	records, err := h.service.List(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]submissionResponse, 0, len(records))
	for _, s := range records {
		out = append(out, toSubmissionResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) addCorrection(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	var req correctionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	c, err := h.service.AddCorrection(r.Context(), actor, CorrectionInput{
		WorkItemID: itemID,
		Detail:     req.Detail,
		VoiceFile:  req.VoiceFile,
		MediaFiles: req.MediaFiles,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCorrectionResponse(c))
}

func (h *Handler) listCorrections(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid item id")
		return
	}
	records, err := h.service.ListCorrections(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]correctionResponse, 0, len(records))
	for _, c := range records {
		out = append(out, toCorrectionResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) resolveCorrection(w http.ResponseWriter, r *http.Request) {
	correctionID, ok := pathID(r, "correctionID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid correction id")
		return
	}
	actor, _ := shared.IdentityFromContext(r.Context())
	c, err := h.service.ResolveCorrection(r.Context(), actor, correctionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCorrectionResponse(c))
}
