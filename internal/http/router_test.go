package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/healthgraph-etl/internal/http/handlers"
	"github.com/yungbote/healthgraph-etl/internal/jobs/scheduler"
	"github.com/yungbote/healthgraph-etl/internal/observability"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeRunner struct {
	mu      sync.Mutex
	last    *scheduler.Summary
	running bool
	started chan struct{}
	release chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context) (scheduler.Summary, error) {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	if r.started != nil {
		close(r.started)
	}
	if r.release != nil {
		<-r.release
	}
	sum := scheduler.Summary{RunID: "r1", State: scheduler.StateCommitted}
	r.mu.Lock()
	r.running = false
	r.last = &sum
	r.mu.Unlock()
	return sum, nil
}

func (r *fakeRunner) Last() (scheduler.Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return scheduler.Summary{}, false
	}
	return *r.last, true
}

func (r *fakeRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func newEngine(runner *fakeRunner, pinger fakePinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{
		HealthHandler: httpH.NewHealthHandler(pinger),
		RunHandler:    httpH.NewRunHandler(context.Background(), runner, nil, nil),
		Metrics:       observability.NewMetrics().Handler(),
	})
}

func do(e *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	e.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	e := newEngine(&fakeRunner{}, fakePinger{})
	if w := do(e, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz: want=200 got=%d", w.Code)
	}
	if w := do(e, http.MethodGet, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("readyz: want=200 got=%d", w.Code)
	}

	down := newEngine(&fakeRunner{}, fakePinger{err: errors.New("refused")})
	if w := do(down, http.MethodGet, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz down: want=503 got=%d", w.Code)
	}
	if w := do(down, http.MethodGet, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz with graph down: want=200 got=%d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEngine(&fakeRunner{}, fakePinger{})
	w := do(e, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: want=200 got=%d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestRunsLastBeforeAnyRun(t *testing.T) {
	e := newEngine(&fakeRunner{}, fakePinger{})
	if w := do(e, http.MethodGet, "/runs/last"); w.Code != http.StatusNotFound {
		t.Fatalf("runs/last: want=404 got=%d", w.Code)
	}
}

func TestTriggerRunAndConflict(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}), release: make(chan struct{})}
	e := newEngine(runner, fakePinger{})

	if w := do(e, http.MethodPost, "/runs"); w.Code != http.StatusAccepted {
		t.Fatalf("trigger: want=202 got=%d", w.Code)
	}
	<-runner.started
	if w := do(e, http.MethodPost, "/runs"); w.Code != http.StatusConflict {
		t.Fatalf("second trigger: want=409 got=%d", w.Code)
	}
	close(runner.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		w := do(e, http.MethodGet, "/runs/last")
		if w.Code == http.StatusOK {
			var body struct {
				Run scheduler.Summary `json:"run"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Run.RunID != "r1" || body.Run.State != scheduler.StateCommitted {
				t.Fatalf("last run: got=%+v", body.Run)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("run never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestErrorBodyCarriesRequestID(t *testing.T) {
	e := newEngine(&fakeRunner{}, fakePinger{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/runs/last", nil)
	req.Header.Set("X-Request-ID", "req-42")
	e.ServeHTTP(w, req)

	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "no_runs" || body.Error.RequestID != "req-42" {
		t.Fatalf("error body: got=%+v", body.Error)
	}
}
