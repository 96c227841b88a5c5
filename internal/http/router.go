// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, compression, security headers, authentication and rate limiting.
//
// The websocket endpoint is mounted here but served by the ws package; it
// shares the request id, access log and recovery middleware and skips
// tracing, metrics and compression, which do not fit a long-lived hijacked
// connection.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-social-backend/docs"
	"github.com/tbourn/go-social-backend/internal/blob"
	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/http/handlers"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/mail"
	"github.com/tbourn/go-social-backend/internal/security"
	"github.com/tbourn/go-social-backend/internal/services"
)

const (
	wsPath      = "/ws"
	metricsPath = "/metrics"

	// jsonBodyLimit caps non-upload request bodies.
	jsonBodyLimit = 1 << 20
	// multipartOverhead is allowed on top of the upload limit for part headers.
	multipartOverhead = 64 << 10
)

// Deps are the collaborators the REST services are built from.
type Deps struct {
	DB        *gorm.DB
	Tokens    *security.TokenIssuer
	Sanitizer *security.Sanitizer
	Mailer    mail.Mailer
	Store     blob.Store

	// WS serves the websocket upgrade; /ws is not mounted when nil.
	WS http.Handler
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything except /ws
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured logs with PII scrubbing, request-scoped logger
//  4. Recovery: capture panics after logger
//  5. Metrics (/ws and /metrics excluded)
//  6. CORS, gzip and security headers
//
// Per group: body limits, RequireAuth, then the rate limiter so that
// authenticated callers are keyed by user id.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName,
		otelgin.WithFilter(func(req *http.Request) bool { return req.URL.Path != wsPath }),
	))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.RedactOptions{
		MaskHeaders: []string{"Sec-WebSocket-Key", "Sec-WebSocket-Protocol"},
	}))
	r.Use(middleware.Recovery())

	r.Use(middleware.Metrics(wsPath, metricsPath))
	r.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{wsPath, metricsPath})))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:           cfg.Security.EnableHSTS,
		HSTSMaxAge:           cfg.Security.HSTSMaxAge,
		EnablePolicy:         true,
		CrossOriginResources: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if d.WS != nil {
		r.GET(wsPath, gin.WrapH(d.WS))
	}
	if strings.HasPrefix(cfg.Upload.BaseURL, "/") {
		r.Static(cfg.Upload.BaseURL, cfg.Upload.Dir)
	}
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(newHandlerDeps(d, cfg))
	apiBase := cfg.APIBasePath
	api := groupWithPrefix(r, apiBase)

	// Credential endpoints are limited per IP; the caller is unknown yet.
	authRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	auth := api.Group("/auth", middleware.LimitBody(jsonBodyLimit), authRL.Handler())
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.GET("/refresh", h.Refresh)
		auth.GET("/logout", h.Logout)
	}

	apiRL := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	authed := api.Group("", middleware.RequireAuth(d.Tokens), apiRL.Handler())

	jsonAPI := authed.Group("", middleware.LimitBody(jsonBodyLimit))
	{
		jsonAPI.GET("/me", h.GetMe)
		jsonAPI.PUT("/me/email-verified", h.VerifyEmail)
		jsonAPI.GET("/me/ids", h.MyIDs)
		jsonAPI.GET("/me/received-requests", h.ReceivedRequests)
		jsonAPI.GET("/me/friends", h.MyFriends)
		jsonAPI.GET("/me/conversations", h.MyConversations)

		jsonAPI.GET("/users", h.SearchUsers)
		jsonAPI.GET("/conversations/:id/messages", h.ConversationMessages)
	}

	uploads := authed.Group("/upload", middleware.LimitBody(cfg.Upload.MaxBytes+multipartOverhead))
	{
		uploads.POST("/file", h.UploadFile)
		uploads.POST("/files", h.UploadFiles)
		uploads.DELETE("/*key", h.DeleteUpload)
	}
}

// newHandlerDeps builds the REST services from the shared collaborators.
func newHandlerDeps(d Deps, cfg config.Config) handlers.Deps {
	san := d.Sanitizer
	if san == nil {
		san = security.NewSanitizer()
	}
	return handlers.Deps{
		Auth: &services.AuthService{
			DB:              d.DB,
			Tokens:          d.Tokens,
			Mailer:          d.Mailer,
			RefreshTTL:      cfg.Auth.RefreshTTL,
			VerificationTTL: cfg.Auth.VerificationTTL,
		},
		Me:       &services.MeService{DB: d.DB},
		Users:    &services.UserService{DB: d.DB, Limit: cfg.UserSearchLimit},
		Messages: services.NewMessageService(d.DB, san, cfg.IdempotencyTTL),
		Uploads:  &services.UploadService{Store: d.Store, MaxBytes: cfg.Upload.MaxBytes},
		Cookie:   handlers.CookieOptions{Secure: cfg.Auth.CookieSecure, Path: "/"},
	}
}

// corsMiddleware allows any origin without credentials when allowed is
// empty. Otherwise it allows exactly the listed origins with credentials so
// the refresh cookie can cross origins.
//
// gin-contrib/cors writes nothing for requests without an Origin header or
// whose Origin matches the request host, so the posture is also set
// explicitly in front of it.
func corsMiddleware(allowed []string) []gin.HandlerFunc {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowed) == 0 {
		conf.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(conf),
		}
	}

	conf.AllowOrigins = allowed
	conf.AllowCredentials = true
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := set[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(conf),
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
