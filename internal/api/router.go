package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/app"
	"github.com/wfassist/tailor/internal/domain"
	"github.com/wfassist/tailor/internal/middleware"
)

// RouterConfig contains configuration for the HTTP router
type RouterConfig struct {
	CORSOrigins    []string
	BodyLimit      int
	RateLimitRPS   int
	RateLimitBurst int
}

// RouterResult contains the configured app and cleanup function
type RouterResult struct {
	App     *fiber.App
	Cleanup func()
}

// SetupRouter creates the Fiber app serving the local control API
func SetupRouter(a *app.App, config RouterConfig) *RouterResult {
	server := fiber.New(fiber.Config{
		BodyLimit:    config.BodyLimit,
		ErrorHandler: customErrorHandler,
	})

	h := NewHandlers(a)

	// Middleware pipeline, order matters
	server.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))
	server.Use(requestContextMiddleware())
	server.Use(structuredLoggingMiddleware())
	server.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			log.Error().
				Str("request_id", getRequestID(c)).
				Interface("panic", e).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Msg("Panic recovered")
		},
	}))
	server.Use(securityHeadersMiddleware())

	if len(config.CORSOrigins) > 0 {
		server.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(config.CORSOrigins, ","),
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
			MaxAge:       86400,
		}))
	}

	v1 := server.Group("/v1")

	v1.Get("/packs", h.ListPacksHandler)
	v1.Post("/packs/import", h.ImportPackHandler)
	v1.Get("/packs/:id", h.GetPackHandler)
	v1.Get("/packs/:id/status", h.PackStatusHandler)
	v1.Get("/packs/:id/dependencies", h.ResolveDependenciesHandler)
	v1.Post("/packs/:id/enable", h.EnablePackHandler)
	v1.Post("/packs/:id/disable", h.DisablePackHandler)
	v1.Get("/packs/:id/export", h.ExportPackHandler)
	v1.Delete("/packs/:id", h.UninstallPackHandler)

	v1.Post("/backups", h.BackupHandler)
	v1.Post("/restore", h.RestoreHandler)

	var stopRateLimiter func()
	licenses := v1.Group("/licenses")
	if config.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
		stopRateLimiter = limiter.StartCleanupRoutine()
		licenses.Post("/validate", limiter.Middleware(), h.ValidateOrderHandler)
		licenses.Post("/trial", limiter.Middleware(), h.StartTrialHandler)
	} else {
		licenses.Post("/validate", h.ValidateOrderHandler)
		licenses.Post("/trial", h.StartTrialHandler)
	}
	licenses.Get("/", h.ListLicensesHandler)
	licenses.Delete("/:order", h.RevokeLicenseHandler)

	v1.Get("/capabilities", h.ListCapabilitiesHandler)
	v1.Get("/extension-points", h.ListExtensionPointsHandler)
	v1.Get("/extension-points/:name/components", h.ListComponentsHandler)

	v1.Get("/catalog", h.CatalogHandler)
	v1.Get("/catalog/updates", h.CatalogUpdatesHandler)
	v1.Post("/catalog/:id/install", h.CatalogInstallHandler)

	v1.Get("/history", h.HistoryHandler)

	server.Get("/health", h.HealthHandler)
	server.Get("/metrics", h.MetricsHandler)
	server.Get("/swagger/*", swagger.HandlerDefault)

	cleanup := func() {
		if stopRateLimiter != nil {
			stopRateLimiter()
		}
	}
	return &RouterResult{App: server, Cleanup: cleanup}
}

// customErrorHandler handles Fiber framework errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	switch code {
	case fiber.StatusRequestEntityTooLarge:
		return c.Status(413).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrTooLarge,
			Message: "Request payload too large",
		})
	case fiber.StatusBadRequest:
		return c.Status(400).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrInvalidInput,
			Message: message,
		})
	case fiber.StatusNotFound:
		return c.Status(404).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrNotFound,
			Message: message,
		})
	default:
		return c.Status(code).JSON(ErrorResponse{
			Status:  "error",
			Code:    domain.ErrInternal,
			Message: message,
		})
	}
}

// requestContextMiddleware exposes the request ID to code that only sees a context.Context
func requestContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(withRequestID(c.UserContext(), getRequestID(c)))
		return c.Next()
	}
}

// structuredLoggingMiddleware logs each request with zerolog
func structuredLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}

		event.
			Str("request_id", getRequestID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.IP()).
			Int("response_size", len(c.Response().Body())).
			Msg("HTTP request processed")

		return err
	}
}

// securityHeadersMiddleware adds security headers
func securityHeadersMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "no-referrer")
		return c.Next()
	}
}
