package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"geoindex/internal/api/handlers"
	"geoindex/internal/api/middleware"
	"geoindex/internal/config"
)

type Router struct {
	searchHandler   *handlers.SearchHandler
	documentHandler *handlers.DocumentHandler
	auth            config.AuthConfig
	logger          *slog.Logger
}

func NewRouter(
	searchHandler *handlers.SearchHandler,
	documentHandler *handlers.DocumentHandler,
	auth config.AuthConfig,
	logger *slog.Logger,
) *Router {
	return &Router{
		searchHandler:   searchHandler,
		documentHandler: documentHandler,
		auth:            auth,
		logger:          logger,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.RequestLogger(r.logger))

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Protected routes
	api := engine.Group("/")
	api.Use(middleware.Auth(r.auth, r.logger))
	{
		api.GET("/events/nearby", r.searchHandler.Nearby)

		docs := api.Group("/collections/:collection")
		{
			docs.POST("/documents", r.documentHandler.Create)
			docs.GET("/documents/:id", r.documentHandler.Get)
			docs.PATCH("/documents/:id", r.documentHandler.Patch)
			docs.DELETE("/documents/:id", r.documentHandler.Delete)
			docs.POST("/reindex", r.documentHandler.Reindex)
		}
	}
}
