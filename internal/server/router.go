package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"taskboard/internal/handlers"
	"taskboard/internal/middleware"
	"taskboard/internal/monitoring"
	"taskboard/internal/services"
)

type RouterOptions struct {
	Tasks          services.TaskService
	Monitor        *monitoring.Monitor
	Log            *logrus.Entry
	AllowedOrigins []string
	// RateLimiter, when set, guards the task routes.
	RateLimiter *middleware.RateLimiter
	// Stats adds sections to /debug/stats. The route is only mounted when
	// DebugRoutes is set.
	Stats       func() gin.H
	DebugRoutes bool
}

func NewRouter(opts RouterOptions) *gin.Engine {
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Monitor == nil {
		opts.Monitor = monitoring.NewMonitor()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = false

	router.Use(
		middleware.RequestID(),
		middleware.RecoveryWithLog(opts.Log),
		middleware.AccessLog(opts.Log),
		middleware.SecurityHeaders(),
		middleware.CORS(opts.AllowedOrigins),
		opts.Monitor.Middleware(),
	)

	router.GET("/health", opts.Monitor.HealthHandler())
	router.GET("/ready", opts.Monitor.ReadinessHandler())
	router.GET("/live", opts.Monitor.LivenessHandler())
	router.GET("/metrics", opts.Monitor.PrometheusHandler())
	if opts.DebugRoutes {
		router.GET("/debug/stats", opts.Monitor.StatsHandler(opts.Stats))
	}

	api := router.Group("")
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Middleware())
	}
	handlers.NewTaskHandler(opts.Tasks, opts.Log).RegisterRoutes(api)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found"})
	})

	return router
}
