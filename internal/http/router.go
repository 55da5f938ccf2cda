// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, admin session auth, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - The only unauthenticated write surface is the ingestion endpoint,
//     which gets its own stricter rate-limit bucket
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-form-backend/internal/config"
	"github.com/tbourn/go-form-backend/internal/http/handlers"
	"github.com/tbourn/go-form-backend/internal/http/middleware"
	"github.com/tbourn/go-form-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per admin/IP)
//  8. CORS and Security headers
//
// The admin group additionally carries the session guard when auth is
// enabled; the ingestion endpoint carries its own IP-keyed limiter instead.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Submission data is PII-heavy,
	// so the scrubbing logger is the default, not an option.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per admin identity/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db
	subSvc := &services.SubmissionService{DB: db}
	dedupSvc := &services.DedupService{DB: db}
	entSvc := &services.EntityService{DB: db}
	allocSvc := &services.AllocationService{DB: db}
	h := handlers.New(subSvc, dedupSvc, entSvc, allocSvc)

	apiBase := cfg.APIBasePath // e.g. "/api/v1"

	// Public ingestion: no session, IP-keyed bucket of its own.
	ingestRL := middleware.NewRateLimiter(cfg.IngestRPS, cfg.IngestBurst, middleware.KeyByIP())
	public := groupWithPrefix(r, apiBase)
	public.POST("/submissions", ingestRL.Handler(), h.IngestSubmission)

	// Admin API (session-guarded when auth is enabled).
	admin := groupWithPrefix(r, apiBase)
	if cfg.Auth.Enabled {
		admin.Use(middleware.SessionAuth(middleware.AuthOptions{
			Secret:     []byte(cfg.Auth.JWTSecret),
			CookieName: cfg.Auth.CookieName,
		}))
	}
	{
		// Submissions
		admin.GET("/forms/:id/submissions", h.ListFormSubmissions)
		admin.POST("/forms/:id/submissions/bulk-delete", h.BulkDeleteSubmissions)
		admin.POST("/submissions/move", h.MoveSubmissions)
		admin.PUT("/submissions/utm", h.BulkEditUTM)

		// Duplicates
		admin.POST("/forms/:id/duplicates/rescan", h.RescanDuplicates)
		admin.GET("/forms/:id/duplicates/settings", h.GetDuplicateSettings)
		admin.PUT("/forms/:id/duplicates/settings", h.PutDuplicateSettings)

		// Entities
		admin.GET("/entities", h.ListEntities)
		admin.POST("/entities", h.CreateEntity)
		admin.GET("/entities/:id", h.GetEntity)
		admin.PUT("/entities/:id", h.UpdateEntity)
		admin.DELETE("/entities/:id", h.DeleteEntity)

		// Allocation
		admin.GET("/allocations/queue", h.ListAllocationQueue)
		admin.PUT("/submissions/:id/entity", h.AssignEntity)
		admin.POST("/allocation-requests", h.CreateAllocationRequest)
		admin.GET("/allocation-requests", h.ListAllocationRequests)
		admin.POST("/allocation-requests/:id/approve", h.ApproveAllocationRequest)
		admin.POST("/allocation-requests/:id/reject", h.RejectAllocationRequest)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
