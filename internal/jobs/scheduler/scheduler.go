// Package scheduler drives one incremental run: fetch subject ids, dispatch
// them in batches to a bounded pool, retry the failures, and advance the
// watermark only when nothing is left failing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/healthgraph-etl/internal/data/watermark"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/ingestion/coordinator"
	"github.com/yungbote/healthgraph-etl/internal/jobs/worker"
	"github.com/yungbote/healthgraph-etl/internal/observability"
	"github.com/yungbote/healthgraph-etl/internal/platform/ctxutil"
	"github.com/yungbote/healthgraph-etl/internal/platform/etlerr"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

type Catalog interface {
	// SubjectIDs lists subjects, limited to those changed after since when
	// since is non-nil.
	SubjectIDs(ctx context.Context, since *time.Time) ([]string, error)
}

type Provider interface {
	// Fetch returns nil without error when the provider has no data.
	Fetch(ctx context.Context, subjectID string) (*portrait.Document, error)
}

type Ingester interface {
	Ingest(ctx context.Context, doc *portrait.Document) (coordinator.Result, error)
}

// RunLog persists finished run summaries.
type RunLog interface {
	Record(ctx context.Context, s Summary) error
}

type Config struct {
	BatchSize  int           `yaml:"batch_size"`
	MaxWorkers int           `yaml:"max_workers"`
	RetryTimes int           `yaml:"retry_times"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

func DefaultConfig() Config {
	return Config{BatchSize: 50, MaxWorkers: 1, RetryTimes: 3, RetryDelay: 5 * time.Second}
}

func (c Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("scheduler: batch size must be > 0, got %d", c.BatchSize)
	case c.MaxWorkers <= 0:
		return fmt.Errorf("scheduler: max workers must be > 0, got %d", c.MaxWorkers)
	case c.RetryTimes < 0:
		return fmt.Errorf("scheduler: retry times must be >= 0, got %d", c.RetryTimes)
	case c.RetryDelay < 0:
		return fmt.Errorf("scheduler: retry delay must be >= 0, got %s", c.RetryDelay)
	}
	return nil
}

var ErrRunInProgress = errors.New("scheduler: run already in progress")

type Deps struct {
	Catalog   Catalog
	Provider  Provider
	Ingester  Ingester
	Watermark watermark.Store
	RunLog    RunLog
	Metrics   *observability.Metrics
	Log       *logger.Logger
	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

type Scheduler struct {
	cfg  Config
	deps Deps
	pool *worker.Pool
	log  *logger.Logger

	running sync.Mutex
	mu      sync.Mutex
	last    *Summary
}

func New(cfg Config, deps Deps) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Catalog == nil || deps.Provider == nil || deps.Ingester == nil || deps.Watermark == nil {
		return nil, fmt.Errorf("scheduler: catalog, provider, ingester and watermark are required")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleep
	}
	return &Scheduler{
		cfg:  cfg,
		deps: deps,
		pool: worker.NewPool(cfg.MaxWorkers, deps.Log),
		log:  deps.Log.With("component", "Scheduler"),
	}, nil
}

// Last returns the most recent finished run, if any.
func (s *Scheduler) Last() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

// Running reports whether a run currently holds the scheduler.
func (s *Scheduler) Running() bool {
	if s.running.TryLock() {
		s.running.Unlock()
		return false
	}
	return true
}

// Run executes one full run. Subject failures are reported in the summary;
// only infrastructure failures are returned as errors, and in that case the
// watermark is left untouched.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	if !s.running.TryLock() {
		return Summary{}, ErrRunInProgress
	}
	defer s.running.Unlock()

	r := &run{
		s:       s,
		summary: Summary{RunID: uuid.NewString(), StartedAt: s.deps.Now().UTC(), State: StateRunning},
	}
	ctx = ctxutil.WithRunData(ctx, &ctxutil.RunData{RunID: r.summary.RunID})
	ctx, span := otel.Tracer("healthgraph-etl").Start(ctx, "etl.run")
	defer span.End()

	err := r.execute(ctx)
	r.summary.FinishedAt = s.deps.Now().UTC()
	if err != nil {
		r.summary.State = StateFailed
		r.summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
	}
	span.SetAttributes(
		attribute.String("etl.state", string(r.summary.State)),
		attribute.Int("etl.subjects", r.summary.Subjects),
		attribute.Int("etl.failed", r.summary.FailedCount),
	)
	s.finish(ctx, r.summary)
	return r.summary, err
}

func (s *Scheduler) finish(ctx context.Context, sum Summary) {
	s.mu.Lock()
	s.last = &sum
	s.mu.Unlock()

	s.deps.Metrics.ObserveRun(string(sum.State), sum.Duration())
	kv := sum.LogKVs()
	switch sum.State {
	case StateCommitted:
		s.log.Info("run committed", kv...)
	case StateHeld:
		s.log.Warn("run held watermark", kv...)
	default:
		s.log.Error("run failed", kv...)
	}
	if s.deps.RunLog != nil {
		// Bookkeeping must not turn a finished run into a failed one.
		if err := s.deps.RunLog.Record(context.WithoutCancel(ctx), sum); err != nil {
			s.log.Warn("run log write failed", "run_id", sum.RunID, "error", err)
		}
	}
}

type run struct {
	s       *Scheduler
	summary Summary
}

func (r *run) execute(ctx context.Context) error {
	s := r.s

	// FETCH_IDS
	since, found, err := s.deps.Watermark.Load(ctx)
	if err != nil {
		return etlerr.Run("watermark_load", err)
	}
	var sincePtr *time.Time
	if found {
		sincePtr = &since
		r.summary.PreviousWatermark = &since
	}
	ids, err := s.deps.Catalog.SubjectIDs(ctx, sincePtr)
	if err != nil {
		return etlerr.Run("catalog", err)
	}
	ids = dedupe(ids)
	r.summary.Subjects = len(ids)
	s.log.Info("run started", "run_id", r.summary.RunID, "subjects", len(ids), "incremental", found)

	// DISPATCH_BATCH
	failures := newFailureSet()
	if err := r.dispatch(ctx, ids, 0, failures); err != nil {
		return etlerr.Run("dispatch", err)
	}

	// RETRY
	for failures.Len() > 0 && r.summary.Retries < s.cfg.RetryTimes {
		if err := s.deps.Sleep(ctx, s.cfg.RetryDelay); err != nil {
			return etlerr.Run("retry_wait", err)
		}
		r.summary.Retries++
		pending := failures.IDs()
		s.log.Info("retrying failed subjects", "run_id", r.summary.RunID, "attempt", r.summary.Retries, "count", len(pending))
		failures = newFailureSet()
		if err := r.dispatch(ctx, pending, r.summary.Retries, failures); err != nil {
			return etlerr.Run("dispatch", err)
		}
	}

	failed := failures.IDs()
	r.summary.setFailed(failed)
	r.summary.Succeeded = len(ids) - len(failed)
	if len(failed) > 0 {
		r.summary.State = StateHeld
		return nil
	}

	// COMMIT_WATERMARK
	mark := r.summary.StartedAt
	if err := s.deps.Watermark.Save(ctx, mark); err != nil {
		return etlerr.Run("watermark_save", err)
	}
	r.summary.Watermark = &mark
	r.summary.State = StateCommitted
	s.deps.Metrics.SetWatermark(mark)
	return nil
}

func (r *run) dispatch(ctx context.Context, ids []string, attempt int, failures *failureSet) error {
	s := r.s
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(ids))
		batch := ids[start:end]
		r.summary.Batches++

		bctx, span := otel.Tracer("healthgraph-etl").Start(ctx, "etl.batch")
		span.SetAttributes(attribute.Int("etl.batch_size", len(batch)), attribute.Int("etl.attempt", attempt))
		rd := ctxutil.RunData{RunID: r.summary.RunID, Attempt: attempt}
		bctx = ctxutil.WithRunData(bctx, &rd)
		err := s.pool.Run(bctx, batch, r.process, func(id string, err error) {
			failures.Add(id)
			s.deps.Metrics.IncSubject("failed")
			s.log.Warn("subject failed", "run_id", rd.RunID, "attempt", attempt, "patient_id", id, "error", err)
		})
		span.End()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) process(ctx context.Context, id string) error {
	s := r.s
	ctx = ctxutil.WithSubject(ctx, id)
	doc, err := s.deps.Provider.Fetch(ctx, id)
	if err != nil {
		return etlerr.Subject("fetch", err)
	}
	if doc == nil {
		return etlerr.Subject("no_data", etlerr.ErrNoData)
	}
	if _, err := s.deps.Ingester.Ingest(ctx, doc); err != nil {
		return err
	}
	s.deps.Metrics.IncSubject("succeeded")
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
