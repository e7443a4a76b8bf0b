package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"synxronmarket/internal/domain"
	"synxronmarket/internal/service"
)

const multipartMemory = 32 << 20

type Submitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*domain.PluginDetails, error)
}

type Catalog interface {
	GetPlugin(ctx context.Context, id uuid.UUID, appVersion string) (*domain.PluginDetails, error)
	ListPlugins(ctx context.Context, filter domain.PluginFilter, appVersion string) ([]domain.PluginDetails, error)
	ListVersions(ctx context.Context, pluginID uuid.UUID) ([]domain.PluginVersion, error)
	ResolveDownload(ctx context.Context, pluginID uuid.UUID, appVersion string) (*domain.PluginDetails, error)
	DeletePlugin(ctx context.Context, pluginID uuid.UUID) error
}

type PluginHandler struct {
	submitter      Submitter
	catalog        Catalog
	maxPackageSize int64
	log            *zap.Logger
}

func NewPluginHandler(submitter Submitter, catalog Catalog, maxPackageSize int64, log *zap.Logger) *PluginHandler {
	return &PluginHandler{
		submitter:      submitter,
		catalog:        catalog,
		maxPackageSize: maxPackageSize,
		log:            log,
	}
}

// Routes публичные маршруты каталога
func (h *PluginHandler) Routes(r chi.Router) {
	r.Post("/plugins", h.SubmitPackage)
	r.Get("/plugins", h.ListPlugins)
	r.Route("/plugins/{id}", func(r chi.Router) {
		r.Get("/", h.GetPlugin)
		r.Get("/versions", h.ListVersions)
		r.Get("/download", h.Download)
	})
}

// SubmitPackage принимает multipart-форму: package (файл), package_id, release_notes
func (h *PluginHandler) SubmitPackage(w http.ResponseWriter, r *http.Request) {
	if h.maxPackageSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxPackageSize+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		badRequest(w, h.log, "failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	packageID := strings.TrimSpace(r.FormValue("package_id"))
	if packageID == "" {
		badRequest(w, h.log, "package_id is required")
		return
	}

	file, _, err := r.FormFile("package")
	if err != nil {
		badRequest(w, h.log, "package file is required")
		return
	}
	defer file.Close()

	reader := io.Reader(file)
	if h.maxPackageSize > 0 {
		reader = io.LimitReader(file, h.maxPackageSize+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		badRequest(w, h.log, "failed to read package")
		return
	}

	details, err := h.submitter.Submit(r.Context(), service.SubmitRequest{
		PackageID:    packageID,
		Data:         data,
		ReleaseNotes: r.FormValue("release_notes"),
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, details)
}

func (h *PluginHandler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		badRequest(w, h.log, "invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		badRequest(w, h.log, "invalid offset")
		return
	}

	status := domain.PluginStatus(strings.ToUpper(q.Get("status")))
	switch status {
	case "", domain.PluginStatusSubmitted, domain.PluginStatusPendingReview,
		domain.PluginStatusPublished, domain.PluginStatusRejected:
	default:
		badRequest(w, h.log, "invalid status")
		return
	}

	plugins, err := h.catalog.ListPlugins(r.Context(), domain.PluginFilter{
		Status:   status,
		Category: q.Get("category"),
		Limit:    limit,
		Offset:   offset,
	}, q.Get("app_version"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, plugins)
}

func (h *PluginHandler) GetPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	details, err := h.catalog.GetPlugin(r.Context(), id, r.URL.Query().Get("app_version"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, details)
}

func (h *PluginHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	versions, err := h.catalog.ListVersions(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, versions)
}

// Download выбирает версию для версии приложения и выдает подписанную ссылку
func (h *PluginHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	details, err := h.catalog.ResolveDownload(r.Context(), id, r.URL.Query().Get("app_version"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, details)
}

func (h *PluginHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return uuid.Nil, false
	}
	return id, true
}

// parseID некорректный идентификатор не может ссылаться на существующий ресурс
func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id %q", domain.ErrResourceNotFound, raw)
	}
	return id, nil
}
