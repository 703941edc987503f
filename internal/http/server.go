package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rewriteplan/internal/catalog"
	"rewriteplan/internal/engine"
	"rewriteplan/internal/strategy"
	"rewriteplan/pkg/config"
	"rewriteplan/pkg/metrics"
	"rewriteplan/pkg/planerr"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = 8080
	defaultShutdownTimeout = time.Second * 5
	maxRequestBytes        = 32 << 20
)

// PlanRequest is the body of POST /api/tables/{name}/plan. Strategy and
// Options fall back to the planner section of the config.
type PlanRequest struct {
	Strategy  string               `json:"strategy,omitempty"`
	Options   map[string]string    `json:"options,omitempty"`
	SortOrder *table.SortOrder     `json:"sort_order,omitempty"`
	Files     []*scan.FileScanTask `json:"files"`
}

// Server exposes rewrite planning over HTTP.
type Server struct {
	catalog         catalog.Catalog
	metrics         *metrics.Registry
	planner         config.PlannerConfig
	shutdownTimeout time.Duration
	httpServer      *http.Server
	URL             string
	addr            string
}

// NewServer creates a new server instance. A nil registry gets a fresh one.
func NewServer(cat catalog.Catalog, reg *metrics.Registry, cfg config.Config) *Server {
	port := cfg.Server.Port
	if port == 0 {
		port = defaultHTTPPort
	}
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Server{
		catalog:         cat,
		metrics:         reg,
		planner:         cfg.Planner,
		shutdownTimeout: timeout,
		URL:             "http://localhost:" + strconv.Itoa(port),
		addr:            ":" + strconv.Itoa(port),
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	slog.Info("HTTP server stopped", "addr", s.URL)
	return nil
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/api/strategies", s.handleStrategies)
	r.Get("/api/tables", s.handleTables)
	r.Post("/api/tables/{name}/plan", s.handlePlan)

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		s.metrics.IncCounter("rewriteplan_http_requests_total", map[string]string{
			"route": route,
			"code":  strconv.Itoa(ww.Status()),
		}, 1)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, planerr.ErrTableNotFound):
		status = http.StatusNotFound
	case errors.Is(err, planerr.ErrInvalidConfig),
		errors.Is(err, planerr.ErrUnknownStrategy),
		errors.Is(err, planerr.ErrInvalidSortOrder):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := s.metrics.WriteText(w); err != nil {
		slog.Warn("Failed to write metrics response", "error", err)
	}
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	names := strategy.Names()
	infos := make([]StrategyInfo, 0, len(names))
	for _, name := range names {
		opts, _ := strategy.ValidOptionsFor(name)
		infos = append(infos, StrategyInfo{Name: name, Options: opts})
	}
	s.writeJSON(w, http.StatusOK, NewStrategiesResponse(infos))
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.catalog.ListTables(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewTablesResponse(tables))
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req PlanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("invalid plan request: "+err.Error()))
		return
	}
	for i, f := range req.Files {
		if f == nil {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(fmt.Sprintf("file #%d is null", i)))
			return
		}
		if f.TaskLength == 0 {
			f.TaskLength = f.File.SizeBytes
		}
	}

	tbl, err := s.catalog.LoadTable(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	strategyName := req.Strategy
	if strategyName == "" {
		strategyName = s.planner.Strategy
	}
	options := maps.Clone(s.planner.Options)
	if options == nil {
		options = map[string]string{}
	}
	maps.Copy(options, req.Options)

	strat, err := strategy.Build(strategyName, tbl, strategy.Request{Options: options, SortOrder: req.SortOrder})
	if err != nil {
		if errors.Is(err, planerr.ErrUnknownStrategy) {
			err = fmt.Errorf("%w %q, valid strategies are %v", err, strategyName, strategy.Names())
		}
		s.writeError(w, err)
		return
	}

	plan, err := engine.NewPlanner(strat, s.metrics).Plan(r.Context(), tbl, slices.Values(req.Files))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewPlanResponse(plan))
}
