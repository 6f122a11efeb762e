// Package worker runs one task per subject under a fixed concurrency limit.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

// Task processes one subject. A returned error or a panic marks the
// subject failed; it never stops the other tasks.
type Task func(ctx context.Context, subjectID string) error

// PanicError carries a value recovered from a task.
type PanicError struct {
	Val   any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

type Pool struct {
	size int
	log  *logger.Logger
}

func NewPool(size int, baseLog *logger.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Pool{size: size, log: baseLog.With("component", "WorkerPool")}
}

func (p *Pool) Size() int { return p.size }

// Run calls task for every id with at most Size tasks in flight and reports
// each failure to onFail, which must be safe for concurrent use. Run waits
// for started tasks; once ctx is done no new task starts and ctx's error is
// returned.
func (p *Pool) Run(ctx context.Context, ids []string, task Task, onFail func(id string, err error)) error {
	var g errgroup.Group
	g.SetLimit(p.size)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.call(ctx, id, task); err != nil {
				onFail(id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (p *Pool) call(ctx context.Context, id string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panic", "patient_id", id, "panic", r)
			err = &PanicError{Val: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx, id)
}
