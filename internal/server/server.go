// Package server exposes the dashboard views over an HTTP JSON API. The
// presentation layer owns the filter parameters; every request carries
// them as query parameters and gets a freshly evaluated view back.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/snacklab/sugartrap-dashboard/internal/auth"
	"github.com/snacklab/sugartrap-dashboard/internal/config"
	"github.com/snacklab/sugartrap-dashboard/internal/dataset"
	"github.com/snacklab/sugartrap-dashboard/internal/engine"
	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

// HTTP server constants
const (
	HTTPReadTimeout     = 15 * time.Second
	HTTPWriteTimeout    = 15 * time.Second
	HTTPIdleTimeout     = 60 * time.Second
	HTTPShutdownTimeout = 30 * time.Second

	MaxTopNLimit = 100
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

// ErrorResponse is the JSON body for request errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// ProductsResponse bundles the filtered subset views for one request.
type ProductsResponse struct {
	Overview     engine.Overview     `json:"overview"`
	Thresholds   types.Thresholds    `json:"thresholds"`
	Products     []types.Product     `json:"products"`
	Sampled      bool                `json:"sampled"`
	HealthyTable engine.HealthyTable `json:"healthy_table"`
}

// RecommendationResponse carries the insight text.
type RecommendationResponse struct {
	Recommendation string `json:"recommendation"`
}

// CategoriesResponse lists the distinct categories for the filter widget.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

// Server serves the dashboard API on top of one loaded snapshot.
type Server struct {
	config *config.Config
	loader *dataset.Loader
	engine *engine.Engine
	auth   *auth.BearerTokenAuth
	log    *slog.Logger

	snapshot *types.Snapshot
}

// New creates a new server instance
func New(cfg *config.Config, loader *dataset.Loader, eng *engine.Engine, logger *slog.Logger) *Server {
	return &Server{
		config: cfg,
		loader: loader,
		engine: eng,
		auth:   auth.NewBearerTokenAuth(cfg.AuthToken),
		log:    logger,
	}
}

// Initialize loads the snapshot. A missing product-records artifact is
// fatal here: the dashboard must not start with nothing to show.
func (s *Server) Initialize(ctx context.Context) error {
	start := time.Now()
	s.log.Info("Initializing server", "source", s.config.DataSource)

	if s.config.IsDevelopment() {
		s.log.Warn("Development mode enabled", "environment", s.config.Environment)
	}

	snap, err := s.loader.Load(ctx, s.config.DataSource)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}
	s.snapshot = snap

	s.log.Info("Server initialized",
		"products", len(snap.Products),
		"duration", time.Since(start))
	return nil
}

// Router builds the HTTP routes. Everything under /api requires the
// bearer token; /health does not.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/overview", s.handleOverview).Methods(http.MethodGet)
	api.HandleFunc("/products", s.handleProducts).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/category-gap", s.handleCategoryGap).Methods(http.MethodGet)
	api.HandleFunc("/brands", s.handleBrands).Methods(http.MethodGet)
	api.HandleFunc("/protein-sources", s.handleProteinSources).Methods(http.MethodGet)
	api.HandleFunc("/recommendation", s.handleRecommendation).Methods(http.MethodGet)
	return r
}

// Start initializes the server, serves until a termination signal, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("Starting Sugar Trap dashboard server", "port", s.config.Port)

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	go func() {
		s.log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), HTTPShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Server shutdown error", "error", err)
	}

	s.log.Info("Server stopped")
	return nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.IsAuthorized(r) {
			s.auth.SetUnauthorizedHeaders(w)
			s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
			s.log.Warn("Unauthorized API request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := s.snapshot != nil
	status := "healthy"
	code := http.StatusOK
	if !ready {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, HealthResponse{Status: status, Ready: ready})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	params, err := parseFilterParams(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.BuildView(s.snapshot, params))
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	params, err := parseFilterParams(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	view := s.engine.BuildView(s.snapshot, params)
	s.writeJSON(w, http.StatusOK, view.Overview)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	params, err := parseFilterParams(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	view := s.engine.BuildView(s.snapshot, params)
	products := view.Filtered
	sampled := false
	if parseBool(r, "sample") {
		products = view.Sample
		sampled = len(view.Sample) < len(view.Filtered)
	}

	s.writeJSON(w, http.StatusOK, ProductsResponse{
		Overview:     view.Overview,
		Thresholds:   view.Thresholds,
		Products:     products,
		Sampled:      sampled,
		HealthyTable: view.HealthyTable,
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]struct{})
	var categories []string
	for _, p := range s.snapshot.Products {
		if _, ok := seen[p.PrimaryCategory]; ok {
			continue
		}
		seen[p.PrimaryCategory] = struct{}{}
		categories = append(categories, p.PrimaryCategory)
	}
	sort.Strings(categories)
	s.writeJSON(w, http.StatusOK, CategoriesResponse{Categories: categories})
}

func (s *Server) handleCategoryGap(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.CategoryGap(s.snapshot))
}

func (s *Server) handleBrands(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.TopBrands(s.snapshot, parseLimit(r)))
}

func (s *Server) handleProteinSources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.TopProteinSources(s.snapshot, parseLimit(r)))
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, RecommendationResponse{Recommendation: s.snapshot.Recommendation})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", "error", err)
	}
}

// parseFilterParams reads the analyst's filter selections from query
// parameters, falling back to the unfiltered defaults.
func parseFilterParams(r *http.Request) (types.FilterParams, error) {
	params := types.DefaultFilterParams()
	q := r.URL.Query()

	if raw := q.Get("categories"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				params.Categories = append(params.Categories, c)
			}
		}
	}
	if raw := q.Get("sugar_max"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, fmt.Errorf("invalid sugar_max %q", raw)
		}
		params.SugarMax = v
	}
	if raw := q.Get("protein_min"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, fmt.Errorf("invalid protein_min %q", raw)
		}
		params.ProteinMin = v
	}
	return params, nil
}

func parseBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

// parseLimit reads the optional limit query parameter; 0 lets the engine
// apply its configured default.
func parseLimit(r *http.Request) int {
	v, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || v <= 0 {
		return 0
	}
	if v > MaxTopNLimit {
		return MaxTopNLimit
	}
	return v
}
