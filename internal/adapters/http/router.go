package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
	"github.com/screenware/reportflow/internal/observability/metrics"
)

type Options struct {
	Service          string
	MaxUploadBytes   int64
	MaxArchiveBytes  int64
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

func (o Options) normalize() Options {
	if o.Service == "" {
		o.Service = "api"
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = 10 << 20
	}
	if o.MaxArchiveBytes <= 0 {
		o.MaxArchiveBytes = 100 << 20
	}
	if o.BackpressureWait <= 0 {
		o.BackpressureWait = 100 * time.Millisecond
	}
	return o
}

type Router struct {
	submitter ports.DocumentSubmitter
	batch     ports.BatchSubmitter
	retrier   ports.StageRetrier
	reader    ports.DocumentReader
	reviewer  ports.ReviewUpdater
	model     ports.PredictionEngine
	metrics   *metrics.HTTPServerMetrics
	opts      Options
}

func NewRouter(
	submitter ports.DocumentSubmitter,
	batch ports.BatchSubmitter,
	retrier ports.StageRetrier,
	reader ports.DocumentReader,
	reviewer ports.ReviewUpdater,
	model ports.PredictionEngine,
	serverMetrics *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	return &Router{
		submitter: submitter,
		batch:     batch,
		retrier:   retrier,
		reader:    reader,
		reviewer:  reviewer,
		model:     model,
		metrics:   serverMetrics,
		opts:      opts.normalize(),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.documents)
	mux.HandleFunc("/v1/documents/batch", rt.submitBatch)
	mux.HandleFunc("/v1/documents/export", rt.exportDocuments)
	mux.HandleFunc("/v1/documents/", rt.documentSubresource)
	mux.HandleFunc("/v1/model/status", rt.modelStatus)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) documents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.submitDocument(w, r)
	case http.MethodGet:
		rt.listDocuments(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) submitDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+(1<<20))

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.submitter.Submit(r.Context(), domain.Submission{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
		SubmitterID: submitterID(r),
		ClinicName:  r.FormValue("clinic_name"),
		PatientID:   r.FormValue("patient_id"),
		Description: r.FormValue("description"),
	})
	if err != nil {
		rt.recordRejection(err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) submitBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxArchiveBytes+(1<<20))

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	archive, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read archive: " + err.Error()})
		return
	}

	result, err := rt.batch.SubmitBatch(r.Context(), archive, domain.Submission{
		SubmitterID: submitterID(r),
		ClinicName:  r.FormValue("clinic_name"),
		Description: r.FormValue("description"),
	})
	if err != nil {
		rt.recordRejection(err)
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordBatch(rt.opts.Service, len(result.Documents))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	result, err := rt.reader.List(r.Context(), domain.ListFilter{
		Status:      domain.DocumentStatus(query.Get("status")),
		SubmitterID: query.Get("submitter_id"),
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// documentSubresource dispatches /v1/documents/{id} and its nested retry and
// review operations.
func (rt *Router) documentSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch sub {
	case "":
		rt.getDocument(w, r, id)
	case "retry":
		rt.retryStage(w, r, id)
	case "review":
		rt.updateReview(w, r, id)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	view, err := rt.reader.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) retryStage(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := rt.retrier.Retry(r.Context(), id, domain.Stage(req.Stage))
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRetry(rt.opts.Service, req.Stage)
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) updateReview(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		ReviewStatus     string  `json:"review_status"`
		CoordinatorNotes *string `json:"coordinator_notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	pred, err := rt.reviewer.UpdateReview(r.Context(), id, domain.ReviewUpdate{
		Status:     domain.ReviewStatus(req.ReviewStatus),
		Notes:      req.CoordinatorNotes,
		ReviewerID: reviewerID(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

func (rt *Router) modelStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	loaded, err := rt.model.Ready(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"model_loaded": loaded})
}

func (rt *Router) recordRejection(err error) {
	if rt.metrics == nil {
		return
	}
	if domain.IsKind(err, domain.ErrInvalidInput) {
		rt.metrics.RecordIntakeRejection(rt.opts.Service, "invalid_input")
	}
}

func submitterID(r *http.Request) string {
	if v := r.FormValue("submitter_id"); v != "" {
		return v
	}
	return r.Header.Get("X-Submitter-Id")
}

func reviewerID(r *http.Request) string {
	return r.Header.Get("X-Reviewer-Id")
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
