package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/healthgraph-etl/internal/clients/provider"
	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/data/runlog"
	"github.com/yungbote/healthgraph-etl/internal/data/watermark"
	apphttp "github.com/yungbote/healthgraph-etl/internal/http"
	httpH "github.com/yungbote/healthgraph-etl/internal/http/handlers"
	"github.com/yungbote/healthgraph-etl/internal/ingestion/coordinator"
	"github.com/yungbote/healthgraph-etl/internal/jobs/scheduler"
	"github.com/yungbote/healthgraph-etl/internal/observability"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
	"github.com/yungbote/healthgraph-etl/internal/platform/neo4jdb"
)

type Options struct {
	ConfigPath string
	// DryRun swaps the Neo4j store for an in-memory graph.
	DryRun bool
}

// App owns every long-lived client. Components are built on first use so a
// subcommand only connects to what it needs.
type App struct {
	Log     *logger.Logger
	Cfg     Config
	Metrics *observability.Metrics
	DryRun  bool

	mu        sync.Mutex
	neo4j     *neo4jdb.Client
	graph     graph.Store
	memory    *graph.MemoryStore
	watermark watermark.Store
	runLog    *runlog.Repo
	scheduler *scheduler.Scheduler
	closers   []func() error

	otelShutdown func(context.Context) error
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{
		Log:     log,
		Cfg:     cfg,
		Metrics: observability.NewMetrics(),
		DryRun:  opts.DryRun,
	}
	tracing := cfg.Observability.Tracing
	tracing.ServiceName = cfg.Observability.ServiceName
	tracing.Environment = cfg.Observability.Environment
	a.otelShutdown = observability.InitTracing(ctx, log, tracing)
	return a, nil
}

// Neo4j connects on first call.
func (a *App) Neo4j(ctx context.Context) (*neo4jdb.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.neo4jLocked(ctx)
}

func (a *App) neo4jLocked(ctx context.Context) (*neo4jdb.Client, error) {
	if a.neo4j != nil {
		return a.neo4j, nil
	}
	client, err := openNeo4j(ctx, a.Log, a.Cfg.Neo4j)
	if err != nil {
		return nil, err
	}
	a.neo4j = client
	a.closers = append(a.closers, func() error { return client.Close(context.Background()) })
	return client, nil
}

// Graph returns the write target. Outside dry runs the schema is ensured
// the first time the Neo4j store is built.
func (a *App) Graph(ctx context.Context) (graph.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.graph != nil {
		return a.graph, nil
	}
	if a.DryRun {
		a.memory = graph.NewMemoryStore()
		a.graph = a.memory
		return a.graph, nil
	}
	client, err := a.neo4jLocked(ctx)
	if err != nil {
		return nil, err
	}
	store := graph.NewNeo4jStore(client, a.Log)
	n := store.EnsureSchema(ctx)
	a.Log.Info("neo4j schema ensured", "statements", n, "total", len(graph.SchemaStatements))
	a.graph = store
	return a.graph, nil
}

// Memory is the dry-run graph, nil otherwise.
func (a *App) Memory() *graph.MemoryStore {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory
}

func (a *App) Watermark(ctx context.Context) (watermark.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.watermark != nil {
		return a.watermark, nil
	}
	store, release, err := openWatermark(ctx, a.Log, a.Cfg.Watermark)
	if err != nil {
		return nil, err
	}
	a.watermark = store
	a.closers = append(a.closers, release)
	return store, nil
}

// RunLog returns nil when no run log database is configured.
func (a *App) RunLog() (*runlog.Repo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runLog != nil {
		return a.runLog, nil
	}
	repo, release, err := openRunLog(a.Log, a.Cfg.RunLog)
	if err != nil {
		return nil, err
	}
	a.runLog = repo
	a.closers = append(a.closers, release)
	return repo, nil
}

func (a *App) Coordinator(ctx context.Context) (*coordinator.Coordinator, error) {
	store, err := a.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return coordinator.New(store, a.Log, a.Metrics)
}

// Scheduler wires the full run pipeline.
func (a *App) Scheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	a.mu.Lock()
	if a.scheduler != nil {
		defer a.mu.Unlock()
		return a.scheduler, nil
	}
	a.mu.Unlock()

	coord, err := a.Coordinator(ctx)
	if err != nil {
		return nil, err
	}
	wm, err := a.Watermark(ctx)
	if err != nil {
		return nil, err
	}
	runLog, err := a.RunLog()
	if err != nil {
		return nil, err
	}
	prov, err := provider.New(a.Cfg.Provider, a.Log, a.Metrics)
	if err != nil {
		return nil, err
	}
	cat, err := openCatalog(ctx, a.Log, a.Cfg.Catalog)
	if err != nil {
		return nil, err
	}

	deps := scheduler.Deps{
		Catalog:   cat,
		Provider:  prov,
		Ingester:  coord,
		Watermark: wm,
		Metrics:   a.Metrics,
		Log:       a.Log,
	}
	if runLog != nil {
		deps.RunLog = runLog
	}
	sched, err := scheduler.New(a.Cfg.Scheduler, deps)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, cat.Close)
	a.scheduler = sched
	return sched, nil
}

// OpsServer builds the health, metrics and run-trigger endpoints. base
// bounds runs started over HTTP.
func (a *App) OpsServer(base context.Context, sched *scheduler.Scheduler) (*apphttp.Server, error) {
	runLog, err := a.RunLog()
	if err != nil {
		return nil, err
	}
	var history httpH.History
	if runLog != nil {
		history = runLog
	}
	var pinger httpH.Pinger
	if !a.DryRun {
		client, err := a.Neo4j(base)
		if err != nil {
			return nil, err
		}
		pinger = client
	}
	return apphttp.NewServer(a.Cfg.Ops.Listen, apphttp.RouterConfig{
		HealthHandler: httpH.NewHealthHandler(pinger),
		RunHandler:    httpH.NewRunHandler(base, sched, history, a.Log),
		Metrics:       a.Metrics.Handler(),
		Log:           a.Log,
	}), nil
}

// PushMetrics forwards the registry when a Pushgateway is configured.
func (a *App) PushMetrics(ctx context.Context) {
	a.Metrics.Push(ctx, a.Log, a.Cfg.Observability.PushgatewayURL, a.Cfg.Observability.PushJob)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			a.Log.Warn("close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
