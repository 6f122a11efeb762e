package graph

import "context"

// Store applies a subject's ops as one unit of work. Ops are applied in
// order; each is idempotent on its own.
type Store interface {
	Apply(ctx context.Context, ops []Op) error
}

// Stats summarises graph contents for reporting.
type Stats struct {
	Nodes map[string]int
	Edges map[string]int
}

// Counter is implemented by stores that can report their contents.
type Counter interface {
	Stats(ctx context.Context) (Stats, error)
}
