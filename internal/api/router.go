package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/socialpulse/connector/internal/cache"
	"github.com/socialpulse/connector/internal/db"
	"github.com/socialpulse/connector/pkg/logging"
)

// Router sets up API routes
type Router struct {
	connector *ConnectorHandler
	read      *ReadHandler
	db        *db.DB
	cache     *cache.Cache
	logger    *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(connector *ConnectorHandler, read *ReadHandler, database *db.DB, redisCache *cache.Cache) *Router {
	return &Router{
		connector: connector,
		read:      read,
		db:        database,
		cache:     redisCache,
		logger:    logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	meta := engine.Group("/api/connectors/meta")
	meta.GET("/auth", r.connector.Auth)
	meta.GET("/callback", r.connector.Callback)

	accounts := engine.Group("/api/accounts")
	accounts.GET("/:id/posts", r.read.ListPosts)
	accounts.GET("/:id/metrics", r.read.ListMetrics)
}

// healthHandler reports service and dependency health
func (r *Router) healthHandler(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":  "OK",
		"service": "meta-connector",
	}

	if r.db != nil {
		if err := r.db.Health(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "DEGRADED"
			body["database"] = err.Error()
		}
	}
	if r.cache != nil {
		if err := r.cache.Health(c.Request.Context()); err != nil {
			body["cache"] = err.Error()
		}
	}

	c.JSON(status, body)
}
