// Package mcpgo exposes the dashboard views as MCP tools so analyst
// assistants can query the same derived data the web dashboard shows.
package mcpgo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/snacklab/sugartrap-dashboard/internal/auth"
	"github.com/snacklab/sugartrap-dashboard/internal/engine"
	"github.com/snacklab/sugartrap-dashboard/internal/types"
)

const (
	defaultProductLimit = 20
	maxProductLimit     = 100
	defaultRankLimit    = 10
	maxRankLimit        = 50
)

// responseRecorder wraps http.ResponseWriter to capture response details
type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int
	headerWritten bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.headerWritten {
		return
	}
	r.statusCode = code
	r.headerWritten = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.headerWritten {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytesWritten += n
	return n, err
}

// OverviewResponse is the structured result of dashboard_overview.
type OverviewResponse struct {
	Overview   engine.Overview  `json:"overview"`
	Thresholds types.Thresholds `json:"thresholds"`
}

// FilterProductsResponse is the structured result of filter_products.
type FilterProductsResponse struct {
	Found      bool            `json:"found"`
	TotalCount int             `json:"total_count"`
	Count      int             `json:"count"`
	Products   []types.Product `json:"products"`
}

// RecommendationResponse is the structured result of market_recommendation.
type RecommendationResponse struct {
	Recommendation string `json:"recommendation"`
}

// Server wraps the mark3labs MCP server around one loaded snapshot.
type Server struct {
	mcpServer *server.MCPServer
	snapshot  *types.Snapshot
	engine    *engine.Engine
	auth      *auth.BearerTokenAuth
	log       *slog.Logger
}

// NewServer creates the MCP server and registers the dashboard tools.
func NewServer(snapshot *types.Snapshot, eng *engine.Engine, authenticator *auth.BearerTokenAuth, logger *slog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"Sugar Trap Dashboard",
		"1.0.0",
		server.WithToolCapabilities(false), // Tools don't change dynamically
		server.WithRecovery(),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		snapshot:  snapshot,
		engine:    eng,
		auth:      authenticator,
		log:       logger,
	}
	s.addTools()
	return s
}

func (s *Server) addTools() {
	overviewTool := mcp.NewTool("dashboard_overview",
		mcp.WithDescription("Headline metrics of the snack dataset: product and category counts, how many products sit in the high-protein / low-sugar quadrant, and the quadrant thresholds."),
		mcp.WithOutputSchema[OverviewResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(overviewTool, s.handleOverview)

	filterTool := mcp.NewTool("filter_products",
		mcp.WithDescription("Filter the product table by category, maximum sugar and minimum protein per 100g. An empty category list selects every category."),
		mcp.WithString("categories",
			mcp.Description("Comma-separated category names. Empty means all categories."),
		),
		mcp.WithNumber("sugar_max",
			mcp.Description("Maximum sugar in g per 100g (default: 100)"),
			mcp.DefaultNumber(100),
			mcp.Min(0),
		),
		mcp.WithNumber("protein_min",
			mcp.Description("Minimum protein in g per 100g (default: 0)"),
			mcp.DefaultNumber(0),
			mcp.Min(0),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of rows returned (default: %d, max: %d)", defaultProductLimit, maxProductLimit)),
			mcp.DefaultNumber(defaultProductLimit),
			mcp.Min(1),
			mcp.Max(maxProductLimit),
		),
		mcp.WithOutputSchema[FilterProductsResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(filterTool, s.handleFilterProducts)

	gapTool := mcp.NewTool("category_health_gap",
		mcp.WithDescription("Per-category share of products meeting the high-protein / low-sugar criteria, ordered ascending so the biggest market gaps come first."),
		mcp.WithOutputSchema[engine.CategoryGapView](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(gapTool, s.handleCategoryGap)

	brandsTool := mcp.NewTool("brand_leaderboard",
		mcp.WithDescription("Top brands by percentage of healthy products."),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Number of brands returned (default: %d, max: %d)", defaultRankLimit, maxRankLimit)),
			mcp.DefaultNumber(defaultRankLimit),
			mcp.Min(1),
			mcp.Max(maxRankLimit),
		),
		mcp.WithOutputSchema[engine.BrandView](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(brandsTool, s.handleBrandLeaderboard)

	sourcesTool := mcp.NewTool("top_protein_sources",
		mcp.WithDescription("Most common ingredients among products in the high-protein / low-sugar quadrant."),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Number of ingredients returned (default: %d, max: %d)", defaultRankLimit, maxRankLimit)),
			mcp.DefaultNumber(defaultRankLimit),
			mcp.Min(1),
			mcp.Max(maxRankLimit),
		),
		mcp.WithOutputSchema[engine.ProteinSourceView](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(sourcesTool, s.handleProteinSources)

	recommendationTool := mcp.NewTool("market_recommendation",
		mcp.WithDescription("The analysis pipeline's textual market recommendation."),
		mcp.WithOutputSchema[RecommendationResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(recommendationTool, s.handleRecommendation)
}

func (s *Server) handleOverview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view := s.engine.BuildView(s.snapshot, types.DefaultFilterParams())
	response := OverviewResponse{Overview: view.Overview, Thresholds: view.Thresholds}
	return s.structuredResult("handleOverview", response)
}

func (s *Server) handleFilterProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleFilterProducts: Starting tool call", "arguments", request.GetArguments())

	params := types.DefaultFilterParams()
	if raw := request.GetString("categories", ""); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				params.Categories = append(params.Categories, c)
			}
		}
	}
	params.SugarMax = request.GetFloat("sugar_max", 100)
	params.ProteinMin = request.GetFloat("protein_min", 0)

	limit := int(request.GetFloat("limit", defaultProductLimit))
	if limit <= 0 {
		limit = defaultProductLimit
	}
	if limit > maxProductLimit {
		limit = maxProductLimit
	}

	filtered := engine.Filter(s.snapshot.Products, params)
	rows := filtered
	if len(rows) > limit {
		rows = rows[:limit]
	}

	response := FilterProductsResponse{
		Found:      len(filtered) > 0,
		TotalCount: len(filtered),
		Count:      len(rows),
		Products:   rows,
	}
	return s.structuredResult("handleFilterProducts", response)
}

func (s *Server) handleCategoryGap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.structuredResult("handleCategoryGap", s.engine.CategoryGap(s.snapshot))
}

func (s *Server) handleBrandLeaderboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := rankLimit(request)
	return s.structuredResult("handleBrandLeaderboard", s.engine.TopBrands(s.snapshot, limit))
}

func (s *Server) handleProteinSources(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := rankLimit(request)
	return s.structuredResult("handleProteinSources", s.engine.TopProteinSources(s.snapshot, limit))
}

func (s *Server) handleRecommendation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response := RecommendationResponse{Recommendation: s.snapshot.Recommendation}
	return s.structuredResult("handleRecommendation", response)
}

func rankLimit(request mcp.CallToolRequest) int {
	limit := int(request.GetFloat("limit", defaultRankLimit))
	if limit <= 0 {
		limit = defaultRankLimit
	}
	if limit > maxRankLimit {
		limit = maxRankLimit
	}
	return limit
}

// structuredResult returns both structured content and a JSON text
// fallback for clients without structured-content support.
func (s *Server) structuredResult(handler string, response interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("Failed to marshal response", "handler", handler, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}
	s.log.Debug("Returning structured result", "handler", handler, "response_size", len(responseJSON))
	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

// ServeHTTP serves the MCP server over HTTP with bearer authentication.
// The /health endpoint stays open.
func (s *Server) ServeHTTP(addr string) error {
	httpMux := http.NewServeMux()

	httpMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "healthy",
			"products": len(s.snapshot.Products),
		})
	})

	streamableServer := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	)

	httpMux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovery := recover(); recovery != nil {
				s.log.Error("MCP endpoint panic recovered",
					"panic", recovery,
					"method", r.Method,
					"remote_addr", r.RemoteAddr)
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal Server Error"))
			}
		}()

		if !s.auth.IsAuthorized(r) {
			s.auth.SetUnauthorizedHeaders(w)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			s.log.Warn("Unauthorized MCP request", "remote_addr", r.RemoteAddr, "user_agent", r.UserAgent())
			return
		}

		recorder := &responseRecorder{ResponseWriter: w}
		streamableServer.ServeHTTP(recorder, r)

		s.log.Debug("MCP response sent",
			"status_code", recorder.statusCode,
			"response_size", recorder.bytesWritten)
	})

	s.log.Info("Starting MCP server", "addr", addr)
	return http.ListenAndServe(addr, httpMux)
}

// ServeStdio serves the MCP server over stdio (no auth required for local use)
func (s *Server) ServeStdio() error {
	s.log.Info("Starting MCP server in stdio mode")
	return server.ServeStdio(s.mcpServer)
}
