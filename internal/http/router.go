// Package httpapi wires the HTTP transport (Gin) to the notification engine,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, caller identity, logging/redaction, panic
// recovery, metrics, idempotency, rate limiting, CORS, security headers and
// compression.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-notify/internal/config"
	"github.com/tbourn/go-group-notify/internal/http/handlers"
	"github.com/tbourn/go-group-notify/internal/http/middleware"
	"github.com/tbourn/go-group-notify/internal/repo"
)

// maxRequestBody caps every request body. Message bodies are at most 1600
// characters, so this leaves generous room for JSON framing.
const maxRequestBody = 64 << 10

// Deps are the engine components served over HTTP.
type Deps struct {
	DB         *gorm.DB
	Dispatcher handlers.Dispatcher
	Reconciler handlers.Reconciler
	History    handlers.HistoryService
	Rates      handlers.RateStatser
}

// idempotencyLookup adapts repo.GetIdempotency to the middleware contract.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, callerID, scope, key string, now time.Time) (string, bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, callerID, scope, key, now)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return "", false, nil
		case err != nil:
			return "", false, err
		}
		return rec.ResultID, true, nil
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: health and metrics, the provider webhook, the versioned API under
// cfg.APIBasePath and, when enabled, Swagger UI.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, Caller: correlation id and caller identity
//  3. AccessLog: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per caller/IP, webhook exempt)
//  9. CORS, security headers, gzip
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	apiBase := cfg.APIBasePath
	if apiBase == "/" {
		apiBase = ""
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Caller())
	r.Use(middleware.AccessLog(middleware.LogOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxRequestBody))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			Scope: middleware.ScopeByRoute(map[string]string{
				apiBase + "/groups/:id/messages": "group",
				apiBase + "/people/:id/messages": "person",
			}),
		},
		idempotencyLookup(deps.DB),
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCallerOrIP(), config.WebhookPath)
	r.Use(rl.Handler())

	allowHeaders := []string{"Origin", "Content-Type", "Accept", middleware.HeaderCallerID, middleware.HeaderIdempotencyKey, "If-None-Match"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	if cfg.GzipEnabled {
		r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", config.WebhookPath})))
	}

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Options{
		Dispatcher:     deps.Dispatcher,
		Reconciler:     deps.Reconciler,
		History:        deps.History,
		Rates:          deps.Rates,
		DB:             deps.DB,
		IdempotencyTTL: cfg.IdempotencyTTL,
		WebhookURL:     cfg.WebhookURL(),
	})

	// Provider callbacks
	r.POST(config.WebhookPath, h.SMSStatus)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Dispatch
		api.POST("/groups/:id/messages", h.SendToGroup)
		api.POST("/people/:id/messages", h.SendToPerson)
		api.GET("/dispatch/stats", h.DispatchStats)

		// History
		api.GET("/messages/history", h.ListHistory)
		api.GET("/deliveries/:id", h.GetDelivery)
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
