package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/healthgraph-etl/internal/http/handlers"
	httpMW "github.com/yungbote/healthgraph-etl/internal/http/middleware"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

type RouterConfig struct {
	HealthHandler *httpH.HealthHandler
	RunHandler    *httpH.RunHandler
	Metrics       http.Handler
	Log           *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Healthz)
		r.GET("/readyz", cfg.HealthHandler.Readyz)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// Runs
	if cfg.RunHandler != nil {
		r.GET("/runs/last", cfg.RunHandler.Last)
		r.GET("/runs", cfg.RunHandler.List)
		r.POST("/runs", cfg.RunHandler.Trigger)
	}

	return r
}
