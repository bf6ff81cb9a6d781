// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and per-route-class rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/askecho/ask-backend/internal/config"
	"github.com/askecho/ask-backend/internal/dispatch"
	"github.com/askecho/ask-backend/internal/domain"
	"github.com/askecho/ask-backend/internal/http/handlers"
	"github.com/askecho/ask-backend/internal/http/middleware"
	"github.com/askecho/ask-backend/internal/repo"
	"github.com/askecho/ask-backend/internal/services"
)

// assignmentRepoShim adapts the repository free functions to the
// services.AssignmentRepo interface expected by the AssignmentService. This
// keeps services decoupled from the concrete repo package while reusing
// existing functions.
type assignmentRepoShim struct{}

// CreateAssignment proxies repo.CreateAssignment.
func (assignmentRepoShim) CreateAssignment(ctx context.Context, db *gorm.DB, a *domain.Assignment) error {
	return repo.CreateAssignment(ctx, db, a)
}

// GetAssignment proxies repo.GetAssignment.
func (assignmentRepoShim) GetAssignment(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Assignment, error) {
	return repo.GetAssignment(ctx, db, id, userID)
}

// GetAssignmentByToken proxies repo.GetAssignmentByToken.
func (assignmentRepoShim) GetAssignmentByToken(ctx context.Context, db *gorm.DB, token string) (*domain.Assignment, error) {
	return repo.GetAssignmentByToken(ctx, db, token)
}

// CountAssignments proxies repo.CountAssignments (pagination support).
func (assignmentRepoShim) CountAssignments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountAssignments(ctx, db, userID)
}

// ListAssignmentsPage proxies repo.ListAssignmentsPage (pagination support).
func (assignmentRepoShim) ListAssignmentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Assignment, error) {
	return repo.ListAssignmentsPage(ctx, db, userID, offset, limit)
}

// SaveTransition proxies repo.SaveTransition (optimistic-lock commit).
func (assignmentRepoShim) SaveTransition(ctx context.Context, db *gorm.DB, a *domain.Assignment) error {
	return repo.SaveTransition(ctx, db, a)
}

// DeleteAssignment proxies repo.DeleteAssignment.
func (assignmentRepoShim) DeleteAssignment(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteAssignment(ctx, db, id, userID)
}

// directoryShim adapts the directory repository free functions to the
// services.Directory interface.
type directoryShim struct{}

// GetPerson proxies repo.GetPerson.
func (directoryShim) GetPerson(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Person, error) {
	return repo.GetPerson(ctx, db, id, userID)
}

// ListPushTokens proxies repo.ListPushTokens.
func (directoryShim) ListPushTokens(ctx context.Context, db *gorm.DB, personID string) ([]domain.PushToken, error) {
	return repo.ListPushTokens(ctx, db, personID)
}

// GetQuestion proxies repo.GetQuestion.
func (directoryShim) GetQuestion(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Question, error) {
	return repo.GetQuestion(ctx, db, id, userID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), the fixed-window
// rate limiter, CORS and security headers, health and metrics endpoints, and
// then mounts the versioned API and the public recording-page surface.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter, gzip
//  6. Metrics
//  7. General rate limiter (per user/IP); route-class limiters are mounted
//     per endpoint group below
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, d *dispatch.Dispatcher, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB) and response compression
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Fixed-window rate limiter per user/IP. The general class gates
	// everything; send/remind and the public answer upload consume their
	// own, tighter windows on top.
	rl := middleware.NewFixedWindowLimiter(map[middleware.Class]middleware.Budget{
		middleware.ClassGeneral:    {Limit: cfg.Rate.GeneralPerMinute, Window: time.Minute},
		middleware.ClassAuth:       {Limit: cfg.Rate.AuthPerMinute, Window: time.Minute},
		middleware.ClassUpload:     {Limit: cfg.Rate.UploadPerMinute, Window: time.Minute},
		middleware.ClassSendRemind: {Limit: cfg.Rate.SendPerHour, Window: time.Hour},
	}, middleware.KeyByUserOrIP())
	r.Use(rl.Handler(middleware.ClassGeneral))

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
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
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
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
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

	// Dependency injection: services ← repo/db/dispatcher
	svc := services.NewAssignmentService(db, assignmentRepoShim{}, directoryShim{}, d, cfg.PublicBaseURL)
	dirSvc := &services.DirectoryService{DB: db}
	h := handlers.New(svc, dirSvc)

	// Authenticated API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Assignments
		api.POST("/assignments", h.CreateAssignment)
		api.GET("/assignments", h.ListAssignments)
		api.GET("/assignments/:id", h.GetAssignment)
		api.GET("/assignments/:id/eligibility", h.GetEligibility)
		api.DELETE("/assignments/:id", h.DeleteAssignment)

		// Sends and reminders share one coarse hourly window.
		sendLimited := rl.Handler(middleware.ClassSendRemind)
		api.POST("/assignments/:id/send", sendLimited, h.SendAssignment)
		api.POST("/assignments/:id/remind", sendLimited, h.RemindAssignment)

		// Directory
		api.POST("/people", h.CreatePerson)
		api.POST("/people/:id/push-tokens", h.AddPushToken)
		api.POST("/questions", h.CreateQuestion)
	}

	// Public recording page (token-scoped, unauthenticated)
	r.GET("/r/:token", h.ViewAssignment)
	r.POST("/r/:token/answer", rl.Handler(middleware.ClassUpload), h.AnswerAssignment)
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
