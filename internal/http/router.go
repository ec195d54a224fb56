package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/biopath-backend/internal/http/handlers"
	httpMW "github.com/yungbote/biopath-backend/internal/http/middleware"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler  *httpH.HealthHandler
	PathwayHandler *httpH.PathwayHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	{
		if cfg.PathwayHandler != nil {
			api.GET("/pathways", cfg.PathwayHandler.ListPathways)
			api.GET("/pathways/tree", cfg.PathwayHandler.GetTree)
			api.GET("/pathways/validation", cfg.PathwayHandler.GetValidation)
			api.GET("/interactions/:id/assignment", cfg.PathwayHandler.GetAssignment)
		}
	}

	return r
}
