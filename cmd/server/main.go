package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/api"
	"github.com/wfassist/tailor/internal/app"
	"github.com/wfassist/tailor/internal/config"

	docs "github.com/wfassist/tailor/docs"
)

// @title Tailor Pack Service API
// @version 1.0
// @description Local control API for installing, licensing and loading Tailor Packs

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /
// @schemes http

// @tag.name Packs
// @tag.description Pack installation and lifecycle

// @tag.name Licenses
// @tag.description Order validation and trials

// @tag.name Extensions
// @tag.description Capabilities and UI extension points

// @tag.name Catalog
// @tag.description Remote pack catalog

// @tag.name System
// @tag.description System health and metrics operations

func main() {
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	flag.Parse()

	if *healthCheck {
		performHealthCheck()
		return
	}

	setupLogger()

	log.Info().Msg("Tailor pack service starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	docs.SwaggerInfo.Host = os.Getenv("DOMAIN")
	docs.SwaggerInfo.Version = cfg.App.Version

	logStartupConfig(cfg)

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application")
	}

	ctx := context.Background()
	if cfg.App.AutoLoadExtensions {
		_, failures := a.LoadEnabled(ctx)
		for packID, err := range failures {
			log.Warn().Err(err).Str("pack_id", packID).Msg("Pack disabled after its extension failed to load")
		}
	}

	routerConfig := api.RouterConfig{
		CORSOrigins:    cfg.Security.CORSOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		RateLimitRPS:   cfg.License.RateLimitRPS,
		RateLimitBurst: cfg.License.RateLimitBurst,
	}
	router := api.SetupRouter(a, routerConfig)

	router.App.Server().ReadTimeout = cfg.Server.ReadTimeout
	router.App.Server().WriteTimeout = cfg.Server.WriteTimeout

	setupGracefulShutdown(router, a)

	serverAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("addr", serverAddr).
		Msg("Starting HTTP server")

	if err := router.App.Listen(serverAddr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if os.Getenv("LOG_FORMAT") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func logStartupConfig(cfg *config.Config) {
	log.Info().
		Int("server_port", cfg.Server.Port).
		Dur("server_read_timeout", cfg.Server.ReadTimeout).
		Dur("server_write_timeout", cfg.Server.WriteTimeout).
		Int("server_body_limit", cfg.Server.BodyLimit).
		Str("storage_data_dir", cfg.Storage.DataDir).
		Str("app_version", cfg.App.Version).
		Int("max_dependency_depth", cfg.App.MaxDependencyDepth).
		Bool("auto_load_extensions", cfg.App.AutoLoadExtensions).
		Bool("license_server_configured", cfg.License.ServerURL != "").
		Int("trial_days", cfg.License.TrialDays).
		Bool("catalog_configured", cfg.Catalog.URL != "").
		Strs("security_cors_origins", cfg.Security.CORSOrigins).
		Str("logging_level", cfg.Logging.Level).
		Str("logging_format", cfg.Logging.Format).
		Msg("Configuration loaded successfully")
}

func setupGracefulShutdown(router *api.RouterResult, a *app.App) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-ctx.Done()
		stop()

		log.Info().Msg("Received shutdown signal, initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := shutdown(shutdownCtx, router.App, router.Cleanup, a); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}

		log.Info().Msg("Graceful shutdown completed")
		os.Exit(0)
	}()
}

// shutdown stops the HTTP server, then unloads extensions and closes stores
func shutdown(ctx context.Context, server *fiber.App, cleanup func(), a *app.App) error {
	log.Info().Msg("Stopping HTTP server...")
	if err := server.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if cleanup != nil {
		cleanup()
	}

	log.Info().Msg("Unloading pack extensions...")
	return a.Close(ctx)
}

func performHealthCheck() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8480"
	}

	client := &http.Client{
		Timeout: 3 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
