package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/healthgraph-etl/internal/http/response"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	graph Pinger
}

func NewHealthHandler(graph Pinger) *HealthHandler { return &HealthHandler{graph: graph} }

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	if h.graph == nil {
		c.String(http.StatusOK, "ok")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.graph.Ping(ctx); err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "graph_unavailable", err)
		return
	}
	c.String(http.StatusOK, "ok")
}
