package graph

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/healthgraph-etl/internal/timeparse"
)

// MemoryStore applies ops with the same MERGE semantics as the Neo4j store.
// It backs dry runs and tests. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	nodes  []*Node
	edges  []*Edge
}

type Node struct {
	ID     int64
	Labels map[string]struct{}
	Props  Props
}

type Edge struct {
	ID         int64
	Type       string
	From       int64
	To         int64
	Undirected bool
	Props      Props
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (n *Node) HasLabel(l string) bool {
	_, ok := n.Labels[l]
	return ok
}

// Apply is all-or-nothing: if any op fails the store is restored to its
// state before the call.
func (m *MemoryStore) Apply(ctx context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := m.applyAll(ctx, ops); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextID int64
	nodes  []*Node
	edges  []*Edge
}

func (m *MemoryStore) snapshot() memorySnapshot {
	s := memorySnapshot{nextID: m.nextID, nodes: make([]*Node, len(m.nodes)), edges: make([]*Edge, len(m.edges))}
	for i, n := range m.nodes {
		c := copyNode(n)
		s.nodes[i] = &c
	}
	for i, r := range m.edges {
		c := *r
		c.Props = copyProps(r.Props)
		s.edges[i] = &c
	}
	return s
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.nextID, m.nodes, m.edges = s.nextID, s.nodes, s.edges
}

func (m *MemoryStore) applyAll(ctx context.Context, ops []Op) error {
	for i, op := range ops {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := op.Validate(); err != nil {
			return fmt.Errorf("op %d %s: %w", i, op, err)
		}
		var err error
		switch o := op.(type) {
		case NodeUpsert:
			m.applyNode(o)
		case *NodeUpsert:
			m.applyNode(*o)
		case EdgeUpsert:
			err = m.applyEdge(o)
		case *EdgeUpsert:
			err = m.applyEdge(*o)
		case Claim:
			m.applyClaim(o)
		case *Claim:
			m.applyClaim(*o)
		default:
			err = fmt.Errorf("%w: unsupported op %T", ErrInvalidOp, op)
		}
		if err != nil {
			return fmt.Errorf("op %d %s: %w", i, op, err)
		}
	}
	return nil
}

func (m *MemoryStore) applyNode(o NodeUpsert) {
	matched := m.match(o.Label, o.Key)
	if len(matched) == 0 {
		m.nextID++
		n := &Node{ID: m.nextID, Labels: map[string]struct{}{o.Label: {}}, Props: Props{}}
		for k, v := range o.Key {
			n.Props[k] = v
		}
		for k, v := range o.OnCreate {
			if v != nil {
				n.Props[k] = v
			}
		}
		m.nodes = append(m.nodes, n)
		matched = []*Node{n}
	}
	for _, n := range matched {
		for _, l := range o.ExtraLabels {
			n.Labels[l] = struct{}{}
		}
		setProps(n.Props, o.Set)
		for k, v := range o.Fill {
			if _, ok := n.Props[k]; !ok && v != nil {
				n.Props[k] = v
			}
		}
		if o.StubPatch != nil {
			if _, claimed := n.Props[o.StubPatch.Unless]; !claimed {
				for k, v := range o.StubPatch.Props {
					if v != nil {
						n.Props[k] = v
					}
				}
			}
		}
	}
}

func (m *MemoryStore) applyClaim(c Claim) {
	if c.Absent != nil && len(m.match(c.Absent.Label, c.Absent.Key)) > 0 {
		return
	}
	for _, n := range m.match(c.Label, c.Match) {
		if _, ok := n.Props[c.Unless]; ok {
			continue
		}
		for k, v := range c.Assign {
			if v != nil {
				n.Props[k] = v
			}
		}
	}
}

func (m *MemoryStore) applyEdge(e EdgeUpsert) error {
	froms := m.match(e.From.Label, e.From.Key)
	tos := m.match(e.To.Label, e.To.Key)
	if len(froms) == 0 || len(tos) == 0 {
		return ErrEndpointMissing
	}
	for _, a := range froms {
		for _, b := range tos {
			r := m.findEdge(e, a.ID, b.ID)
			if r == nil {
				m.nextID++
				r = &Edge{ID: m.nextID, Type: e.Type, From: a.ID, To: b.ID, Undirected: e.Undirected, Props: Props{}}
				for k, v := range e.Key {
					r.Props[k] = v
				}
				for k, v := range e.OnCreate {
					if v != nil {
						r.Props[k] = v
					}
				}
				m.edges = append(m.edges, r)
			}
			setProps(r.Props, e.Set)
		}
	}
	return nil
}

func (m *MemoryStore) findEdge(e EdgeUpsert, from, to int64) *Edge {
	for _, r := range m.edges {
		if r.Type != e.Type {
			continue
		}
		same := r.From == from && r.To == to
		if !same && e.Undirected {
			same = r.From == to && r.To == from
		}
		if same && propsMatch(r.Props, e.Key) {
			return r
		}
	}
	return nil
}

func (m *MemoryStore) match(label string, key Props) []*Node {
	var out []*Node
	for _, n := range m.nodes {
		if n.HasLabel(label) && propsMatch(n.Props, key) {
			out = append(out, n)
		}
	}
	return out
}

func setProps(dst, src Props) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

func propsMatch(have, want Props) bool {
	for k, v := range want {
		got, ok := have[k]
		if !ok || !valuesEqual(got, v) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case timeparse.Instant:
		y, ok := b.(timeparse.Instant)
		return ok && x.Precision == y.Precision && x.Time.Equal(y.Time)
	}
	return reflect.DeepEqual(a, b)
}

// Nodes returns copies of every node carrying label.
func (m *MemoryStore) Nodes(label string) []Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Node
	for _, n := range m.nodes {
		if n.HasLabel(label) {
			out = append(out, copyNode(n))
		}
	}
	return out
}

// Find returns the nodes matching label and key.
func (m *MemoryStore) Find(label string, key Props) []Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Node
	for _, n := range m.match(label, key) {
		out = append(out, copyNode(n))
	}
	return out
}

// Edges returns copies of every relationship of type typ.
func (m *MemoryStore) Edges(typ string) []Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Edge
	for _, r := range m.edges {
		if r.Type == typ {
			c := *r
			c.Props = copyProps(r.Props)
			out = append(out, c)
		}
	}
	return out
}

// Node returns the node with the given internal id.
func (m *MemoryStore) Node(id int64) (Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.ID == id {
			return copyNode(n), true
		}
	}
	return Node{}, false
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Nodes: map[string]int{}, Edges: map[string]int{}}
	for _, n := range m.nodes {
		for l := range n.Labels {
			st.Nodes[l]++
		}
	}
	for _, r := range m.edges {
		st.Edges[r.Type]++
	}
	return st, nil
}

// Canonical renders the graph as sorted lines that do not depend on
// internal ids or insertion order. Two stores with equal Canonical output
// hold the same graph.
func (m *MemoryStore) Canonical() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[int64]string, len(m.nodes))
	out := make([]string, 0, len(m.nodes)+len(m.edges))
	for _, n := range m.nodes {
		labels := make([]string, 0, len(n.Labels))
		for l := range n.Labels {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		s := "(" + strings.Join(labels, ":") + " " + formatProps(n.Props) + ")"
		byID[n.ID] = s
		out = append(out, s)
	}
	for _, r := range m.edges {
		a, b := byID[r.From], byID[r.To]
		arrow := "->"
		if r.Undirected {
			arrow = "-"
			if b < a {
				a, b = b, a
			}
		}
		out = append(out, fmt.Sprintf("%s-[%s %s]%s%s", a, r.Type, formatProps(r.Props), arrow, b))
	}
	sort.Strings(out)
	return out
}

func copyNode(n *Node) Node {
	labels := make(map[string]struct{}, len(n.Labels))
	for l := range n.Labels {
		labels[l] = struct{}{}
	}
	return Node{ID: n.ID, Labels: labels, Props: copyProps(n.Props)}
}

func copyProps(p Props) Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
