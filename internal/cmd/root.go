package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/snacklab/sugartrap-dashboard/internal/auth"
	"github.com/snacklab/sugartrap-dashboard/internal/config"
	"github.com/snacklab/sugartrap-dashboard/internal/dataset"
	"github.com/snacklab/sugartrap-dashboard/internal/engine"
	"github.com/snacklab/sugartrap-dashboard/internal/mcpgo"
	"github.com/snacklab/sugartrap-dashboard/internal/server"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sugartrap-dashboard",
	Short: "Sugar Trap dashboard server with DuckDB",
	Long: `Sugar Trap dashboard server reads a packaged-food analysis bundle
(product table plus precomputed artifacts) and serves the derived dashboard
views, using DuckDB to read the product table.

The server operates in four modes:

1. HTTP Mode (default): JSON dashboard API for web frontends
   - Exposes /api endpoints for overview, filtering and leaderboards
   - Requires Bearer token authentication (except /health)

2. MCP HTTP Mode (--mcp): Remote MCP server for assistant integrations
   - Exposes the dashboard views as MCP tools over HTTP/JSON-RPC 2.0
   - Requires Bearer token authentication (except /health)

3. STDIO Mode (--stdio): For local Claude Desktop integration
   - MCP tools over stdio pipes
   - No authentication required

4. Check Mode (--check): Load the data source, report, and exit
   - Validates the product table and secondary artifacts
   - Useful in CI to catch broken analysis bundles before deployment

The data source (DATA_SOURCE) is either a directory of artifact files or a
.zip archive, which is extracted into the cache directory and reused across
restarts when its content is unchanged.

Available MCP Tools:
- dashboard_overview: Headline metrics and quadrant thresholds
- filter_products: Filter products by category, sugar and protein
- category_health_gap: Healthy share per category, biggest gaps first
- brand_leaderboard: Top brands by healthy-product percentage
- top_protein_sources: Most common healthy-quadrant ingredients
- market_recommendation: The analysis pipeline's recommendation text

Authentication (HTTP modes only):
Bearer token authentication is required for all API and MCP endpoints except
/health. Use the AUTH_TOKEN environment variable to set the token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")
		if check {
			return runCheckMode(cmd, args)
		}

		stdio, _ := cmd.Flags().GetBool("stdio")
		if stdio {
			return runStdioMode(cmd, args)
		}

		mcpHTTP, _ := cmd.Flags().GetBool("mcp")
		if mcpHTTP {
			return runMCPHTTPMode(cmd, args)
		}
		return runHTTPMode(cmd, args)
	},
}

func init() {
	rootCmd.Flags().Bool("stdio", false, "Run the MCP server in stdio mode for local Claude Desktop integration")
	rootCmd.Flags().Bool("mcp", false, "Run the MCP server over HTTP instead of the dashboard JSON API")
	rootCmd.Flags().Bool("check", false, "Load and validate the data source, print a report, and exit")
}

// newLoader wires the DuckDB product reader and the archive extractor into a
// dataset loader. The caller owns closing the returned reader.
func newLoader(cfg *config.Config, logger *slog.Logger) (*dataset.Loader, *dataset.DuckDBReader, error) {
	reader, err := dataset.NewDuckDBReader(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create product reader: %w", err)
	}
	extractor := dataset.NewExtractor(cfg, logger)
	return dataset.NewLoader(reader, extractor, logger), reader, nil
}

// runCheckMode loads the data source once, reports what it found, and exits.
func runCheckMode(cmd *cobra.Command, args []string) error {
	logger := config.NewTextLogger(os.Stdout)
	cfg := config.Load()

	logger.Info("🔎 Checking data source",
		"mode", "check",
		"source", cfg.DataSource)

	loader, reader, err := newLoader(cfg, logger)
	if err != nil {
		logger.Error("Failed to create loader", "error", err)
		return err
	}
	defer reader.Close()

	snapshot, err := loader.Load(context.Background(), cfg.DataSource)
	if err != nil {
		logger.Error("Data source check failed", "error", err)
		return err
	}

	logger.Info("✅ Data source check passed",
		"products", len(snapshot.Products),
		"thresholds_precomputed", snapshot.ThresholdsPrecomputed,
		"protein_threshold", snapshot.Thresholds.Protein,
		"sugar_threshold", snapshot.Thresholds.Sugar,
		"category_summary", snapshot.HasCategorySummary,
		"brand_leaderboard", snapshot.HasBrandLeaderboard,
		"protein_sources", snapshot.HasProteinSources,
		"fingerprint", snapshot.Fingerprint)
	return nil
}

// runStdioMode runs the MCP server in stdio mode for Claude Desktop
func runStdioMode(cmd *cobra.Command, args []string) error {
	// Logger writes to stderr so it cannot interfere with stdio MCP traffic
	logger := config.NewLogger(true)
	cfg := config.Load()

	logger.Info("🔌 Starting Sugar Trap dashboard in STDIO mode",
		"mode", "stdio",
		"description", "Local MCP server for Claude Desktop integration",
		"auth", "not required for stdio mode",
		"transport", "stdio pipes")

	mcpSrv, cleanup, err := newMCPServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return mcpSrv.ServeStdio()
}

// runMCPHTTPMode runs the MCP server over HTTP for remote deployment
func runMCPHTTPMode(cmd *cobra.Command, args []string) error {
	logger := config.NewLogger(false)
	cfg := config.Load()

	logger.Info("🌐 Starting Sugar Trap dashboard MCP server in HTTP mode",
		"mode", "mcp-http",
		"auth", "Bearer token required (except /health endpoint)",
		"transport", "HTTP/JSON-RPC 2.0",
		"port", cfg.Port)

	mcpSrv, cleanup, err := newMCPServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return mcpSrv.ServeHTTP(":" + cfg.Port)
}

func newMCPServer(cfg *config.Config, logger *slog.Logger) (*mcpgo.Server, func(), error) {
	loader, reader, err := newLoader(cfg, logger)
	if err != nil {
		logger.Error("Failed to create loader", "error", err)
		return nil, nil, err
	}

	snapshot, err := loader.Load(context.Background(), cfg.DataSource)
	if err != nil {
		reader.Close()
		logger.Error("Failed to load data source", "error", err)
		return nil, nil, err
	}

	eng := engine.New(engine.Options{
		SampleCap:  cfg.SampleCap,
		SampleSeed: cfg.SampleSeed,
		TopN:       cfg.TopN,
		TableRows:  cfg.TableRows,
	}, logger)
	authenticator := auth.NewBearerTokenAuth(cfg.AuthToken)

	cleanup := func() { reader.Close() }
	return mcpgo.NewServer(snapshot, eng, authenticator, logger), cleanup, nil
}

// runHTTPMode runs the dashboard JSON API for web frontends
func runHTTPMode(cmd *cobra.Command, args []string) error {
	logger := config.NewLogger(false)
	cfg := config.Load()

	logger.Info("🌐 Starting Sugar Trap dashboard in HTTP mode",
		"mode", "http",
		"description", "Dashboard JSON API with Bearer token authentication",
		"auth", "Bearer token required (except /health endpoint)",
		"port", cfg.Port)

	loader, reader, err := newLoader(cfg, logger)
	if err != nil {
		logger.Error("Failed to create loader", "error", err)
		return err
	}
	defer reader.Close()

	eng := engine.New(engine.Options{
		SampleCap:  cfg.SampleCap,
		SampleSeed: cfg.SampleSeed,
		TopN:       cfg.TopN,
		TableRows:  cfg.TableRows,
	}, logger)

	srv := server.New(cfg, loader, eng, logger)

	ctx := context.Background()
	if err := srv.Initialize(ctx); err != nil {
		logger.Error("Failed to initialize server", "error", err)
		return err
	}

	return srv.Start(ctx)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// Run is the main entry point for the CLI application
func Run() error {
	return Execute()
}
