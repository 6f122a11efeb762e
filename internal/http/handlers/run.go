package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/healthgraph-etl/internal/data/runlog"
	"github.com/yungbote/healthgraph-etl/internal/http/response"
	"github.com/yungbote/healthgraph-etl/internal/jobs/scheduler"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

type Runner interface {
	Run(ctx context.Context) (scheduler.Summary, error)
	Last() (scheduler.Summary, bool)
	Running() bool
}

// History is the durable run log. Optional.
type History interface {
	Last(ctx context.Context) (*runlog.RunRecord, error)
	List(ctx context.Context, limit int) ([]*runlog.RunRecord, error)
}

type RunHandler struct {
	runner  Runner
	history History
	// base outlives the triggering request.
	base context.Context
	busy atomic.Bool
	log  *logger.Logger
}

func NewRunHandler(base context.Context, runner Runner, history History, log *logger.Logger) *RunHandler {
	if log == nil {
		log = logger.Nop()
	}
	if base == nil {
		base = context.Background()
	}
	return &RunHandler{runner: runner, history: history, base: base, log: log.With("handler", "RunHandler")}
}

// GET /runs/last
func (h *RunHandler) Last(c *gin.Context) {
	if sum, ok := h.runner.Last(); ok {
		response.RespondOK(c, gin.H{"run": sum})
		return
	}
	if h.history != nil {
		rec, err := h.history.Last(c.Request.Context())
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "run_log_failed", err)
			return
		}
		if rec != nil {
			response.RespondOK(c, gin.H{"run": rec.Summary()})
			return
		}
	}
	response.RespondError(c, http.StatusNotFound, "no_runs", errors.New("no run has finished yet"))
}

// GET /runs?limit=20
func (h *RunHandler) List(c *gin.Context) {
	if h.history == nil {
		response.RespondOK(c, gin.H{"runs": []scheduler.Summary{}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	recs, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "run_log_failed", err)
		return
	}
	out := make([]scheduler.Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Summary())
	}
	response.RespondOK(c, gin.H{"runs": out})
}

// POST /runs starts a run in the background.
func (h *RunHandler) Trigger(c *gin.Context) {
	if h.runner.Running() || !h.busy.CompareAndSwap(false, true) {
		response.RespondError(c, http.StatusConflict, "run_in_progress", scheduler.ErrRunInProgress)
		return
	}
	go func() {
		defer h.busy.Store(false)
		sum, err := h.runner.Run(h.base)
		if err != nil {
			h.log.Warn("triggered run ended with error", "run_id", sum.RunID, "error", err)
		}
	}()
	response.RespondAccepted(c, gin.H{"status": "started"})
}
