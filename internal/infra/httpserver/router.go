package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/viruslens/internal/application/ai"
	appscans "github.com/bryanwahyu/viruslens/internal/application/scans"
	domai "github.com/bryanwahyu/viruslens/internal/domain/ai"
	domain "github.com/bryanwahyu/viruslens/internal/domain/scans"
	"github.com/bryanwahyu/viruslens/internal/infra/report"
	"github.com/bryanwahyu/viruslens/internal/middleware"
)

// Options wires the router. Scans is required; everything else is optional.
type Options struct {
	Scans   *appscans.Service
	AI      *appai.Service
	Metrics *middleware.Metrics
	Logger  *slog.Logger

	Health map[string]middleware.HealthChecker
	Info   map[string]any // extra fields on /health

	AllowedOrigins []string
	APIKey         string
	RateBurst      int
	RatePerSecond  float64
	MaxUploadBytes int64
}

type Router struct {
	scansSvc  *appscans.Service
	aiSvc     *appai.Service
	metrics   *middleware.Metrics
	log       *slog.Logger
	maxUpload int64
}

func NewRouter(o Options) http.Handler {
	r := &Router{
		scansSvc:  o.Scans,
		aiSvc:     o.AI,
		metrics:   o.Metrics,
		log:       o.Logger,
		maxUpload: o.MaxUploadBytes,
	}
	if r.metrics == nil {
		r.metrics = middleware.NewMetrics()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.maxUpload <= 0 {
		r.maxUpload = 32 << 20
	}
	origins := o.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logging(r.log))
	mux.Use(r.metrics.Middleware)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	mux.Use(middleware.RateLimit(o.RateBurst, o.RatePerSecond))
	mux.Use(middleware.APIKeyAuth(o.APIKey))

	mux.Get("/health", middleware.HealthHandler(o.Health, o.Info))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", r.metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/providers", r.wrap(r.handleProviders))
		rt.Post("/scans", r.wrap(r.handleScan))
		rt.Post("/scans/file", r.wrap(r.handleScanFile))
		rt.Post("/bulk", r.wrap(r.handleBulk))

		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Delete("/history", r.wrap(r.handleClear))
		rt.Get("/history/{id}", r.wrap(r.handleGet))
		rt.Get("/history/{id}/report", r.wrap(r.handleReport))
		rt.Post("/history/{id}/report/archive", r.wrap(r.handleArchive))
		rt.Post("/history/{id}/analysis", r.wrap(r.handleAnalyze))
		rt.Get("/history/{id}/analysis", r.wrap(r.handleAnalysisList))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks err as a client error.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

func statusOf(err error) int {
	var br badRequest
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &br),
		errors.Is(err, appscans.ErrEmptyInput),
		errors.Is(err, appscans.ErrInvalidType),
		errors.Is(err, appscans.ErrConfirmationRequired),
		errors.Is(err, appscans.ErrTooManyItems),
		errors.Is(err, appscans.ErrMissingInputColumn):
		return http.StatusBadRequest
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domai.ErrNotConfigured), errors.Is(err, appscans.ErrArchiveDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			code := statusOf(err)
			if code >= 500 {
				r.log.Error("request failed", "path", req.URL.Path, "error", err)
			}
			writeJSON(w, code, map[string]string{"error": err.Error()})
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}

func idParam(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid history id %q", chi.URLParam(req, "id"))
	}
	return id, nil
}

func (r *Router) recordScan(out appscans.ScanOutcome) {
	n := 0
	for _, e := range out.Errors {
		if e.Stage == appscans.StageProvider {
			n++
		}
	}
	r.metrics.RecordScan(string(out.Result.OverallRisk), n, out.Saved())
}

// GET /v1/providers
func (r *Router) handleProviders(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{"providers": r.scansSvc.Aggregator.Providers()})
}

// POST /v1/scans
// Body: {"input": "<url or hash>", "type": "url|hash|"}
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) error {
	var body appscans.ScanRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(&body); err != nil {
		return invalid("invalid JSON body: %v", err)
	}
	input, err := middleware.ValidateInput(body.Input)
	if err != nil {
		return badRequest{err}
	}
	body.Input = input

	done := r.metrics.ScanStarted()
	out, err := r.scansSvc.Scan(req.Context(), body)
	done()
	if err != nil {
		return err
	}
	r.recordScan(out)
	return writeJSON(w, http.StatusOK, out)
}

// POST /v1/scans/file (multipart, field "file")
func (r *Router) handleScanFile(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload)
	if err := req.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return invalid("upload larger than %d bytes", r.maxUpload)
		}
		return invalid("invalid multipart form: %v", err)
	}
	defer req.MultipartForm.RemoveAll()

	f, hdr, err := req.FormFile("file")
	if err != nil {
		return invalid("missing form file \"file\"")
	}
	defer f.Close()

	done := r.metrics.ScanStarted()
	out, err := r.scansSvc.ScanFile(req.Context(), middleware.ValidateFileName(hdr.Filename), f)
	done()
	if err != nil {
		return err
	}
	r.recordScan(out)
	return writeJSON(w, http.StatusOK, out)
}

// POST /v1/bulk?format=json|csv|ndjson
// Body: text/csv with an input column, application/json {"items": [...]},
// or one IOC per line.
func (r *Router) handleBulk(w http.ResponseWriter, req *http.Request) error {
	items, err := parseBulkBody(req)
	if err != nil {
		return err
	}
	format := strings.ToLower(req.URL.Query().Get("format"))
	ctx := req.Context()

	// bulk runs one provider round per item, far past server.writeTimeout;
	// the deadline is lifted for this response only
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		r.log.Warn("bulk: clear write deadline", "error", err)
	}

	switch format {
	case "ndjson":
		// validate the cap before anything is streamed
		if limit := r.scansSvc.MaxBulkItems; limit > 0 && len(items) > limit {
			return fmt.Errorf("%w: %d > %d", appscans.ErrTooManyItems, len(items), limit)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		enc := json.NewEncoder(w)
		flusher, _ := w.(http.Flusher)
		_, err := r.scansSvc.Bulk(ctx, items, func(done, total int, res appscans.BulkResult) {
			r.metrics.RecordBulkItem(res.OverallRisk)
			_ = enc.Encode(map[string]any{"done": done, "total": total, "result": res})
			if flusher != nil {
				flusher.Flush()
			}
		})
		if err != nil {
			r.log.Warn("bulk stream stopped", "error", err)
		}
		return nil

	case "", "json", "csv":
		results, err := r.scansSvc.Bulk(ctx, items, func(_, _ int, res appscans.BulkResult) {
			r.metrics.RecordBulkItem(res.OverallRisk)
		})
		if err != nil {
			return err
		}
		if format == "csv" {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="bulk_results.csv"`)
			w.WriteHeader(http.StatusOK)
			return appscans.WriteBulkCSV(w, results)
		}
		return writeJSON(w, http.StatusOK, map[string]any{"total": len(results), "results": results})

	default:
		return invalid("unsupported bulk format %q", format)
	}
}

func parseBulkBody(req *http.Request) ([]appscans.BulkItem, error) {
	ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	body := io.LimitReader(req.Body, 16<<20)
	var (
		items []appscans.BulkItem
		err   error
	)
	switch ct {
	case "text/csv", "application/csv":
		items, err = appscans.ParseBulkCSV(body)
	case "application/json":
		var payload struct {
			Items []appscans.BulkItem `json:"items"`
		}
		err = json.NewDecoder(body).Decode(&payload)
		items = payload.Items
	default:
		items, err = appscans.ParseBulkLines(body)
	}
	if err != nil {
		return nil, badRequest{fmt.Errorf("parse bulk body: %w", err)}
	}
	return items, nil
}

// GET /v1/history?limit=&offset=&type=&risk=&q=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	scanType, err := middleware.ValidateScanType(q.Get("type"))
	if err != nil {
		return badRequest{err}
	}
	risk, err := middleware.ValidateRisk(q.Get("risk"))
	if err != nil {
		return badRequest{err}
	}

	page, err := r.scansSvc.History(req.Context(), domain.HistoryFilter{
		Limit:    middleware.ValidateLimit(limit),
		Offset:   middleware.ValidateOffset(offset),
		ScanType: scanType,
		Risk:     risk,
		Query:    middleware.SanitizeString(q.Get("q")),
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, page)
}

// DELETE /v1/history?confirm=true
func (r *Router) handleClear(w http.ResponseWriter, req *http.Request) error {
	confirm, _ := strconv.ParseBool(req.URL.Query().Get("confirm"))
	n, err := r.scansSvc.ClearHistory(req.Context(), confirm)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// GET /v1/history/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req)
	if err != nil {
		return err
	}
	entry, err := r.scansSvc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, entry)
}

func (r *Router) render(req *http.Request) (*domain.HistoryEntry, report.Format, []byte, error) {
	id, err := idParam(req)
	if err != nil {
		return nil, "", nil, err
	}
	format, err := report.ParseFormat(req.URL.Query().Get("format"))
	if err != nil {
		return nil, "", nil, badRequest{err}
	}
	entry, err := r.scansSvc.Get(req.Context(), id)
	if err != nil {
		return nil, "", nil, err
	}
	body, err := report.Render(entry, format)
	if err != nil {
		return nil, "", nil, err
	}
	return entry, format, body, nil
}

// GET /v1/history/{id}/report?format=txt|csv|json
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	entry, format, body, err := r.render(req)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%d.%s"`, entry.ID, format))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

// POST /v1/history/{id}/report/archive?format=
func (r *Router) handleArchive(w http.ResponseWriter, req *http.Request) error {
	entry, format, body, err := r.render(req)
	if err != nil {
		return err
	}
	url, err := r.scansSvc.ArchiveReport(req.Context(), entry.ID, string(format), format.ContentType(), body)
	if err != nil {
		return err
	}
	r.metrics.ReportsArchived.Add(1)
	return writeJSON(w, http.StatusCreated, map[string]any{"id": entry.ID, "format": format, "url": url})
}

// POST /v1/history/{id}/analysis
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil || !r.aiSvc.Enabled() {
		return domai.ErrNotConfigured
	}
	id, err := idParam(req)
	if err != nil {
		return err
	}
	entry, err := r.scansSvc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	a, err := r.aiSvc.AnalyzeAndStore(req.Context(), entry)
	if err != nil {
		return err
	}
	r.metrics.AnalysesTotal.Add(1)
	return writeJSON(w, http.StatusCreated, a)
}

// GET /v1/history/{id}/analysis
func (r *Router) handleAnalysisList(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return domai.ErrNotConfigured
	}
	id, err := idParam(req)
	if err != nil {
		return err
	}
	list, err := r.aiSvc.List(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"data": list})
}
