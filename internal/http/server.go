package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jmehdipour/loyalty-gateway/internal/config"
	"github.com/jmehdipour/loyalty-gateway/internal/http/middleware"
	"github.com/jmehdipour/loyalty-gateway/internal/logger"
	"github.com/jmehdipour/loyalty-gateway/internal/metrics"
)

// Deps are the use cases the HTTP surface exposes.
type Deps struct {
	Registration Registrar
	Points       PointsApplier
	Customers    CustomerFinder
	Live         http.Handler // WebSocket endpoint
	Redis        *redis.Client
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLogLevel(cfg.Log.Level))
	e.Use(echoMid.Recover(), echoMid.Logger())
	e.Use(echoMid.CORSWithConfig(echoMid.CORSConfig{
		AllowOrigins: corsOrigins(cfg.HTTP.FrontendURL),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, middleware.AdminKeyHeader},
	}))

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		Limit:          cfg.RateLimit.RegisterPerMinute,
		KeyPrefix:      "rl:register:",
		Window:         time.Minute,
		RetryAfterHint: true,
	})
	adminMW := middleware.AdminKeyMiddleware(cfg.HTTP.AdminKey)

	// routes
	register := registerHandler(d.Registration)
	e.POST("/register", register, rlMW)

	api := e.Group("/api")
	api.POST("/register", register, rlMW)
	api.POST("/update-points", updatePointsHandler(d.Points), adminMW)
	api.GET("/customer/:code", customerHandler(d.Customers))
	api.GET("/generate-qr", generateQRHandler(cfg.HTTP.FrontendURL))

	if d.Live != nil {
		e.GET("/ws", echo.WrapHandler(d.Live))
	}

	return &Server{e: e}
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func corsOrigins(frontendURL string) []string {
	if frontendURL == "" {
		return []string{"*"}
	}
	return []string{frontendURL}
}

func echoLogLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
