package http

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"taxipulse/internal/config"
	"taxipulse/internal/dataprocessing"
	apierrors "taxipulse/internal/errors"
	"taxipulse/internal/exporter"
	customMiddleware "taxipulse/internal/middleware"
)

// multipartOverhead is allowed on top of the upload cap for form framing
const multipartOverhead = 64 << 10

// analysisBody is the JSON body of a single analysis request
type analysisBody struct {
	Kind string `json:"kind" validate:"required,slug"`
	N    int    `json:"n" validate:"omitempty,min=1,max=1000"`
}

// batchBody is the JSON body of a batch request; an empty list runs the catalog
type batchBody struct {
	Analyses []analysisBody `json:"analyses" validate:"omitempty,max=64,dive"`
}

type uploadName struct {
	Name string `validate:"filename"`
}

// DatasetHandler handles dataset, analysis and export requests
type DatasetHandler struct {
	service        DatasetServiceInterface
	validator      *customMiddleware.RequestValidator
	queryValidator *customMiddleware.QueryParamValidator
	errorHandler   *apierrors.ErrorHandler
	maxUpload      int64
	defaultFormat  string
	logger         *slog.Logger
}

// NewDatasetHandler creates a dataset handler. maxUpload bounds request
// bodies; defaultFormat is used when an export names no format.
func NewDatasetHandler(service DatasetServiceInterface, maxUpload int64, defaultFormat string,
	logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DatasetHandler {
	if defaultFormat == "" {
		defaultFormat = config.ExportFormatXLSX
	}
	return &DatasetHandler{
		service:        service,
		validator:      customMiddleware.NewRequestValidator(logger),
		queryValidator: customMiddleware.NewQueryParamValidator(errorHandler),
		errorHandler:   errorHandler,
		maxUpload:      maxUpload,
		defaultFormat:  defaultFormat,
		logger:         logger.With(slog.String("component", "dataset_handler")),
	}
}

// Routes returns the dataset routes
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListDatasets)
	r.Post("/", h.UploadDataset)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetDataset)
		r.Delete("/", h.DeleteDataset)
		r.Post("/analyses", h.RunAnalysis)
		r.Post("/analyses/batch", h.RunBatch)
		r.Get("/export", h.ExportResult)
		r.Post("/report", h.BuildReport)
	})

	return r
}

// CatalogRoutes returns the analysis catalog routes
func (h *DatasetHandler) CatalogRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListAnalyses)
	return r
}

func (h *DatasetHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.errorHandler.HandleError(w, r, toAPIError(err))
}

// UploadDataset handles POST /api/datasets. The body is either a
// multipart form with a "file" part or a raw CSV document.
func (h *DatasetHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	name, body, err := h.uploadSource(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(uploadName{Name: name}); err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "upload received",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("name", name))

	info, err := h.service.Upload(r.Context(), name, body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, info)
}

// uploadSource locates the CSV stream and its display name
func (h *DatasetHandler) uploadSource(r *http.Request) (string, io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload.csv"
		}
		return name, r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, apierrors.InvalidRequestWithError(err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, apierrors.ErrValidation("file", "file is required")
		}
		if err != nil {
			return "", nil, apierrors.InvalidRequestWithError(err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		name := filepath.Base(part.FileName())
		if name == "." || name == string(filepath.Separator) {
			name = "upload.csv"
		}
		return name, part, nil
	}
}

// ListDatasets handles GET /api/datasets
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := h.service.List(r.Context())
	render.JSON(w, r, map[string]interface{}{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

// GetDataset handles GET /api/datasets/{id}
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

// DeleteDataset handles DELETE /api/datasets/{id}
func (h *DatasetHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAnalyses handles GET /api/analyses
func (h *DatasetHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Catalog()
	render.JSON(w, r, map[string]interface{}{
		"analyses": catalog,
		"count":    len(catalog),
	})
}

func (b analysisBody) request() (dataprocessing.AnalysisRequest, error) {
	kind, err := dataprocessing.ParseKind(b.Kind)
	if err != nil {
		return dataprocessing.AnalysisRequest{}, err
	}
	return dataprocessing.AnalysisRequest{Kind: kind, N: b.N}, nil
}

// RunAnalysis handles POST /api/datasets/{id}/analyses
func (h *DatasetHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	var body analysisBody
	if err := h.validator.DecodeAndValidate(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := body.request()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.service.Analyze(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

// RunBatch handles POST /api/datasets/{id}/analyses/batch. Analysis
// failures are returned per item with a 200 status.
func (h *DatasetHandler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var body batchBody
	if r.ContentLength != 0 {
		if err := h.validator.DecodeAndValidate(r, &body); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	reqs := make([]dataprocessing.AnalysisRequest, 0, len(body.Analyses))
	for _, a := range body.Analyses {
		req, err := a.request()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		reqs = append(reqs, req)
	}

	items, err := h.service.AnalyzeBatch(r.Context(), chi.URLParam(r, "id"), reqs)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	failed := 0
	for _, it := range items {
		if it.Error != nil {
			failed++
		}
	}
	render.JSON(w, r, map[string]interface{}{
		"results": items,
		"count":   len(items),
		"failed":  failed,
	})
}

// ExportResult handles GET /api/datasets/{id}/export?kind=&format=&n=
func (h *DatasetHandler) ExportResult(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("kind")
	if slug == "" {
		h.fail(w, r, apierrors.ErrValidation("kind", "kind is required"))
		return
	}
	kind, err := dataprocessing.ParseKind(slug)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, ok := h.queryValidator.ValidateInt(w, r, "n", 1, 1000, 0)
	if !ok {
		return
	}
	format, ok := h.format(w, r)
	if !ok {
		return
	}

	file, err := h.service.Export(r.Context(), chi.URLParam(r, "id"), dataprocessing.AnalysisRequest{Kind: kind, N: n}, format)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		h.logger.WarnContext(r.Context(), "export write failed", slog.String("error", err.Error()))
	}
}

// BuildReport handles POST /api/datasets/{id}/report?format=
func (h *DatasetHandler) BuildReport(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	report, err := h.service.BuildReport(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, report)
}

func (h *DatasetHandler) format(w http.ResponseWriter, r *http.Request) (exporter.Format, bool) {
	value, ok := h.queryValidator.ValidateEnum(w, r, "format", config.SupportedExportFormats, h.defaultFormat)
	if !ok {
		return "", false
	}
	format, err := exporter.ParseFormat(strings.TrimSpace(value))
	if err != nil {
		h.fail(w, r, apierrors.ErrValidation("format", err.Error()))
		return "", false
	}
	return format, true
}
