package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/netsentry/authsvc/internal/config"
	"github.com/netsentry/authsvc/internal/domain/user"
	"github.com/netsentry/authsvc/internal/http/handlers"
	"github.com/netsentry/authsvc/internal/http/middlewares"
	"github.com/netsentry/authsvc/internal/observability"
	"github.com/netsentry/authsvc/internal/ratelimit"
	"github.com/netsentry/authsvc/internal/session"
	"github.com/netsentry/authsvc/internal/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 64 << 10 // credential payloads are tiny

// Deps is everything the router wires together. Tests swap in the memory
// store and a permissive limiter.
type Deps struct {
	Log      *slog.Logger
	Cfg      config.Config
	Users    user.Store
	Tokens   *token.Manager
	Limiter  ratelimit.Allower
	Metrics  *observability.Prom
	Gatherer prometheus.Gatherer
	PingDB   func() error
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))

	if d.Metrics != nil {
		r.Use(d.Metrics.GinHandleMiddleware())
	}

	if d.Cfg.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("authsvc"))
	}

	r.Use(middlewares.SecurityHeaders())

	if len(d.Cfg.CORSAllowedOrigins) > 0 {
		r.Use(middlewares.CORSMiddleware(d.Cfg.CORSAllowedOrigins))
	}

	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))

	// health
	h := handlers.NewHealthHandler(d.PingDB)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// wire the credential lifecycle
	sessions := session.New(d.Users, d.Tokens, d.Log, d.Metrics, d.Cfg.HashConcurrency)
	authHandler := handlers.NewAuthHandler(sessions, d.Tokens, d.Cfg)
	authMW := middlewares.NewAuthMiddleware(d.Tokens)

	requireJSON := middlewares.RequireJSON()
	limited := middlewares.RateLimit(d.Limiter, middlewares.KeyByIP)

	auth := r.Group("/auth")
	auth.POST("/register", limited, requireJSON, authHandler.Register)
	auth.POST("/login", limited, requireJSON, authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authMW.RequireAuth(), authHandler.Me)
	auth.POST("/introspect", authMW.RequireAuth(), authMW.RequireRole(user.RoleAdmin), requireJSON, authHandler.Introspect)

	return r
}
