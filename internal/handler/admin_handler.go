package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"synxronmarket/internal/domain"
)

const defaultPendingLimit = 50

type Reviewer interface {
	ListPending(ctx context.Context, limit, offset int) ([]domain.PluginVersion, error)
	Decide(ctx context.Context, versionID uuid.UUID, req domain.ReviewRequest) (*domain.PluginDetails, error)
	Flag(ctx context.Context, versionID uuid.UUID, reason string) (*domain.PluginDetails, error)
	Unflag(ctx context.Context, versionID uuid.UUID) (*domain.PluginDetails, error)
}

type AdminHandler struct {
	reviewer Reviewer
	catalog  Catalog
	log      *zap.Logger
}

type flagRequest struct {
	Reason string `json:"reason"`
}

func NewAdminHandler(reviewer Reviewer, catalog Catalog, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		reviewer: reviewer,
		catalog:  catalog,
		log:      log,
	}
}

// Routes административные маршруты ревью
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/versions/pending", h.ListPending)
	r.Route("/versions/{id}", func(r chi.Router) {
		r.Post("/review", h.Review)
		r.Post("/flag", h.Flag)
		r.Post("/unflag", h.Unflag)
	})
	r.Delete("/plugins/{id}", h.DeletePlugin)
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPendingLimit)
	if err != nil {
		badRequest(w, h.log, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		badRequest(w, h.log, "invalid offset")
		return
	}

	versions, err := h.reviewer.ListPending(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, versions)
}

// Review решение по ожидающей версии: {"decision": "PUBLISH"|"REJECT", "reason", "reviewer_id"}
func (h *AdminHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, h.log, "invalid request body")
		return
	}
	req.Decision = domain.ReviewDecision(strings.ToUpper(strings.TrimSpace(string(req.Decision))))
	if strings.TrimSpace(req.ReviewerID) == "" {
		badRequest(w, h.log, "reviewer_id is required")
		return
	}

	details, err := h.reviewer.Decide(r.Context(), id, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, details)
}

func (h *AdminHandler) Flag(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, h.log, "invalid request body")
		return
	}

	details, err := h.reviewer.Flag(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, details)
}

func (h *AdminHandler) Unflag(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	details, err := h.reviewer.Unflag(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, details)
}

func (h *AdminHandler) DeletePlugin(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.catalog.DeletePlugin(r.Context(), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
