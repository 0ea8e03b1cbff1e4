package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/secscan/internal/app"
	"github.com/raysh454/secscan/internal/config"
	"github.com/raysh454/secscan/internal/history"
	"github.com/raysh454/secscan/internal/logging"

	_ "github.com/raysh454/secscan/internal/server/docs" // registers the OpenAPI document
)

// Server is the HTTP + WebSocket API surface for secscan.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
	history      *history.Store
}

// NewServer creates a new Server with its own Orchestrator and scan history.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	if err := cfg.AppConfig.Normalize(); err != nil {
		return nil, fmt.Errorf("normalizing config: %w", err)
	}
	if err := os.MkdirAll(cfg.AppConfig.StorageRoot, 0o755); err != nil {
		logger.Warn("creating storage root directory", logging.F("path", cfg.AppConfig.StorageRoot), logging.Err(err))
	}

	hist, err := history.Open(cfg.AppConfig.HistoryPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening scan history: %w", err)
	}

	orch := app.NewOrchestrator(cfg.AppConfig, hist, cfg.Executor, logger)

	r := chi.NewRouter()
	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		router:       r,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		history: hist,
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/scans", s.optionsHandler("GET, POST"))
	r.Options("/scans/{scanID}", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}/summary", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}/results", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}/results/{file}", s.optionsHandler("GET"))
	r.Options("/scans/{base}/diff/{head}", s.optionsHandler("GET"))
	r.Options("/configs/default", s.optionsHandler("GET"))
	r.Options("/maintenance/prune", s.optionsHandler("POST"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/ws/scans", s.optionsHandler("GET"))

	r.Get("/health", s.handleHealth)

	// Scans
	r.Post("/scans", s.handleExecuteScan)
	r.Get("/scans", s.handleListScans)
	r.Get("/scans/{scanID}", s.handleGetScan)
	r.Get("/scans/{scanID}/summary", s.handleGetSummary)
	r.Get("/scans/{base}/diff/{head}", s.handleDiffScans)
	r.Get("/configs/default", s.handleDefaultConfig)

	// Result files
	r.Get("/scans/{scanID}/results", s.handleListResults)
	r.Get("/scans/{scanID}/results/{file}", s.handleGetResult)

	r.Post("/maintenance/prune", s.handlePrune)

	// Jobs over REST
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSocket for job progress
	r.Get("/ws/scans", s.handleScanWS)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		logging.F("method", r.Method),
		logging.F("path", r.URL.Path),
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.F("query", q))
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.F("body_bytes", len(bodyBytes)))
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and underlying resources.
func (s *Server) Close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
	if s.history != nil {
		s.history.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps orchestrator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrScanNotFound), errors.Is(err, app.ErrResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, config.ErrConfigInvalid), errors.Is(err, app.ErrInvalidScanID), errors.Is(err, app.ErrTargetNotFound):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrTargetOutsideBase):
		return http.StatusForbidden
	case errors.Is(err, history.ErrScanExists):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoHistory), errors.Is(err, app.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, logging.Err(err))
	} else {
		s.logger.Warn(msg, logging.Err(err))
	}
	writeError(w, status, err.Error())
}

// scanRequest turns an API request into an orchestrator request. An absent
// configuration resolves like an empty document: auto-detect everything.
func scanRequest(body ExecuteScanRequest) (app.ScanRequest, error) {
	raw := []byte(body.Config)
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = []byte("{}")
	}
	cfg, err := config.Resolve(raw)
	if err != nil {
		return app.ScanRequest{}, err
	}
	return app.ScanRequest{Config: cfg, Target: body.Target, ScanID: body.ScanID}, nil
}

// --- HTTP handlers ---

// handleHealth godoc
// @Summary Liveness probe
// @Tags meta
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Scans

// handleExecuteScan godoc
// @Summary Execute a scan
// @Description Runs the configured scanners against a server-local target. With async set the call returns a job at once.
// @Tags scans
// @Accept json
// @Produce json
// @Param request body ExecuteScanRequest true "Scan request"
// @Success 200 {object} app.ScanReport
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /scans [post]
func (s *Server) handleExecuteScan(w http.ResponseWriter, r *http.Request) {
	var body ExecuteScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("decoding execute scan body", logging.Err(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := scanRequest(body)
	if err != nil {
		s.fail(w, "resolving scan configuration", err)
		return
	}

	if body.Async {
		job, err := s.orchestrator.StartScanJob(context.Background(), req)
		if err != nil {
			s.fail(w, "starting scan job", err)
			return
		}
		s.logger.Info("started scan job", logging.F("job_id", job.ID), logging.F("scan_id", job.ScanID))
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	rep, err := s.orchestrator.RunScan(r.Context(), req, nil)
	if rep == nil {
		s.fail(w, "running scan", err)
		return
	}
	if err != nil {
		s.logger.Warn("scan interrupted", logging.F("scan_id", rep.ScanID), logging.Err(err))
	}
	s.logger.Info("executed scan",
		logging.F("scan_id", rep.ScanID),
		logging.F("status", string(rep.Status)),
		logging.F("degraded", len(rep.Degraded)))
	writeJSON(w, http.StatusOK, rep)
}

// handleListScans godoc
// @Summary List recorded scans, newest first
// @Tags scans
// @Produce json
// @Param limit query int false "Maximum number of scans"
// @Success 200 {array} history.Scan
// @Router /scans [get]
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	scans, err := s.orchestrator.ListScans(r.Context(), limit)
	if err != nil {
		s.fail(w, "listing scans", err)
		return
	}
	s.logger.Info("listed scans", logging.F("count", len(scans)))
	writeJSON(w, http.StatusOK, scans)
}

// handleGetScan godoc
// @Summary Get a recorded scan with its outcomes
// @Tags scans
// @Produce json
// @Param scanID path string true "Scan id"
// @Success 200 {object} app.ScanDetails
// @Failure 404 {object} ErrorResponse
// @Router /scans/{scanID} [get]
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	details, err := s.orchestrator.GetScan(r.Context(), scanID)
	if err != nil {
		s.fail(w, "getting scan", err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// handleGetSummary godoc
// @Summary Get the summary document of a scan
// @Tags scans
// @Produce json
// @Param scanID path string true "Scan id"
// @Success 200 {object} object
// @Failure 404 {object} ErrorResponse
// @Router /scans/{scanID}/summary [get]
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	doc, err := s.orchestrator.GetSummary(r.Context(), scanID)
	if err != nil {
		s.fail(w, "getting summary", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDiffScans godoc
// @Summary Compare the summaries of two scans
// @Tags scans
// @Produce json
// @Param base path string true "Base scan id"
// @Param head path string true "Head scan id"
// @Success 200 {object} summary.Comparison
// @Router /scans/{base}/diff/{head} [get]
func (s *Server) handleDiffScans(w http.ResponseWriter, r *http.Request) {
	base := chi.URLParam(r, "base")
	head := chi.URLParam(r, "head")
	c, err := s.orchestrator.Diff(r.Context(), base, head)
	if err != nil {
		s.fail(w, "diffing scans", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDefaultConfig godoc
// @Summary Generate the default scan configuration for a target
// @Description Inspects the target and enables the dependency and container scanners only when their manifests are present.
// @Tags scans
// @Produce json
// @Param target query string true "Target path, relative to the base root"
// @Success 200 {object} object
// @Failure 400 {object} ErrorResponse
// @Router /configs/default [get]
func (s *Server) handleDefaultConfig(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing target query parameter")
		return
	}
	cfg, err := s.orchestrator.DefaultScanConfig(target)
	if err != nil {
		s.fail(w, "generating default config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Result files

// handleListResults godoc
// @Summary List the files in a scan's results directory
// @Tags results
// @Produce json
// @Param scanID path string true "Scan id"
// @Success 200 {array} app.ResultFile
// @Router /scans/{scanID}/results [get]
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	files, err := s.orchestrator.ListResults(r.Context(), scanID)
	if err != nil {
		s.fail(w, "listing results", err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// handleGetResult godoc
// @Summary Download one result file
// @Tags results
// @Produce octet-stream
// @Param scanID path string true "Scan id"
// @Param file path string true "File name"
// @Success 200 {file} file
// @Failure 404 {object} ErrorResponse
// @Router /scans/{scanID}/results/{file} [get]
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	name := chi.URLParam(r, "file")
	p, err := s.orchestrator.ResultPath(r.Context(), scanID, name)
	if err != nil {
		s.fail(w, "resolving result file", err)
		return
	}
	f, err := os.Open(p)
	if err != nil {
		s.fail(w, "opening result file", err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(w, "reading result file", err)
		return
	}

	switch filepath.Ext(name) {
	case ".json", ".sarif":
		w.Header().Set("Content-Type", "application/json")
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// handlePrune godoc
// @Summary Remove scans past their retention window
// @Tags maintenance
// @Produce json
// @Success 200 {object} PruneResponse
// @Router /maintenance/prune [post]
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	n, err := s.orchestrator.PruneExpired(r.Context(), time.Now().UTC())
	if err != nil {
		s.fail(w, "pruning scans", err)
		return
	}
	writeJSON(w, http.StatusOK, PruneResponse{Pruned: n})
}

// Jobs (REST)

// handleGetJob godoc
// @Summary Get a scan job
// @Tags jobs
// @Produce json
// @Param jobID path string true "Job id"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.F("job_id", jobID))
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob godoc
// @Summary Cancel a scan job
// @Tags jobs
// @Param jobID path string true "Job id"
// @Success 204
// @Router /jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	s.orchestrator.CancelJob(jobID)
	s.logger.Info("canceled job", logging.F("job_id", jobID))
	writeJSON(w, http.StatusNoContent, nil)
}

// handleListJobs godoc
// @Summary List scan jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} app.Job
// @Router /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	s.logger.Info("listed jobs", logging.F("count", len(jobs)))
	writeJSON(w, http.StatusOK, jobs)
}

// WebSockets

// handleScanWS reads one ExecuteScanRequest from the socket, starts the scan
// as a job and streams its events until the job ends.
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	var body ExecuteScanRequest
	if err := conn.ReadJSON(&body); err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: "invalid JSON"})
		return
	}
	req, err := scanRequest(body)
	if err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	job, err := s.orchestrator.StartScanJob(r.Context(), req)
	if err != nil {
		s.logger.Warn("starting scan job", logging.Err(err))
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	s.logger.Info("started scan job", logging.F("job_id", job.ID))
	_ = conn.WriteJSON(job)

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.orchestrator.CancelJob(job.ID)
			return
		}
	}
}
