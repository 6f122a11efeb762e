// Package coordinator applies one subject document to the graph as a single
// unit of work: identity resolution first, then every concept mapper.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/healthgraph-etl/internal/data/graph"
	"github.com/yungbote/healthgraph-etl/internal/domain/portrait"
	"github.com/yungbote/healthgraph-etl/internal/ingestion/identity"
	"github.com/yungbote/healthgraph-etl/internal/ingestion/mapper"
	"github.com/yungbote/healthgraph-etl/internal/observability"
	"github.com/yungbote/healthgraph-etl/internal/platform/ctxutil"
	"github.com/yungbote/healthgraph-etl/internal/platform/etlerr"
	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

type Result struct {
	PatientID string
	Ops       int
	Skips     []mapper.Skip
}

type Coordinator struct {
	store   graph.Store
	log     *logger.Logger
	metrics *observability.Metrics
}

func New(store graph.Store, log *logger.Logger, metrics *observability.Metrics) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("coordinator: store required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{store: store, log: log.With("component", "coordinator"), metrics: metrics}, nil
}

// Plan builds the ops for doc without writing them.
func Plan(doc *portrait.Document) ([]graph.Op, mapper.Result, error) {
	ops, err := identity.Resolve(doc)
	if err != nil {
		return nil, mapper.Result{}, err
	}
	mapped := mapper.All(doc.PatientID.String(), doc)
	return append(ops, mapped.Ops...), mapped, nil
}

// Ingest writes doc in one Store.Apply call. Store errors are returned
// wrapped as subject failures so the scheduler can retry them.
func (c *Coordinator) Ingest(ctx context.Context, doc *portrait.Document) (Result, error) {
	ops, mapped, err := Plan(doc)
	if err != nil {
		return Result{}, etlerr.Subject("invalid_document", err)
	}
	pid := doc.PatientID.String()
	ctx = ctxutil.WithSubject(ctx, pid)

	ctx, span := otel.Tracer("healthgraph-etl").Start(ctx, "ingest.subject")
	defer span.End()
	span.SetAttributes(
		attribute.Int("ingest.ops", len(ops)),
		attribute.Int("ingest.skips", len(mapped.Skips)),
	)

	log := c.log.With(ctxutil.LogKVs(ctx)...)
	for _, s := range mapped.Skips {
		log.Debug("fragment skipped", "concept", s.Concept, "reason", s.Reason, "ref", s.Ref)
		c.metrics.IncSkipped(s.Concept, s.Reason)
	}

	start := time.Now()
	if err := c.store.Apply(ctx, ops); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return Result{}, etlerr.Subject("graph_write", fmt.Errorf("ingest %s: %w", pid, err))
	}
	c.metrics.ObserveIngest(time.Since(start))
	log.Debug("subject ingested", "ops", len(ops), "skips", len(mapped.Skips), "dur", time.Since(start).String())
	return Result{PatientID: pid, Ops: len(ops), Skips: mapped.Skips}, nil
}
