package graph

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Props is a property map. A nil value in a Set map removes the property;
// elsewhere nil values are ignored.
type Props map[string]any

// Op is one idempotent upsert against the graph.
type Op interface {
	Validate() error
	String() string
}

// NodeRef addresses existing nodes by label and key properties.
type NodeRef struct {
	Label string
	Key   Props
}

// NodeUpsert merges a node by Label and Key.
//
// OnCreate is applied only when the node is created. Set is applied on every
// run (nil removes). Fill sets a property only while it is absent. StubPatch
// is applied only while the node lacks StubPatch.Unless.
type NodeUpsert struct {
	Label       string
	ExtraLabels []string
	Key         Props
	OnCreate    Props
	Set         Props
	Fill        Props
	StubPatch   *Patch
}

type Patch struct {
	Unless string
	Props  Props
}

// EdgeUpsert merges a relationship between every From and To match. Key
// properties take part in edge identity; Set is refreshed on every run.
// Undirected edges match an existing edge in either direction.
type EdgeUpsert struct {
	Type       string
	From       NodeRef
	To         NodeRef
	Key        Props
	Undirected bool
	OnCreate   Props
	Set        Props
}

// Claim assigns properties to every node matching Label and Match that has
// no value for Unless. It never creates nodes. When Absent is set the claim
// is skipped entirely while any node matches it, so a claim cannot produce a
// second holder of a key that already exists.
type Claim struct {
	Label  string
	Match  Props
	Unless string
	Assign Props
	Absent *NodeRef
}

var (
	ErrInvalidOp       = errors.New("graph: invalid op")
	ErrEndpointMissing = errors.New("graph: edge endpoint not found")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(kind, s string) error {
	if !identRe.MatchString(s) {
		return fmt.Errorf("%w: bad %s %q", ErrInvalidOp, kind, s)
	}
	return nil
}

func checkProps(kind string, p Props) error {
	for k := range p {
		if err := checkIdent(kind+" property", k); err != nil {
			return err
		}
	}
	return nil
}

func checkKey(kind string, key Props) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: %s key empty", ErrInvalidOp, kind)
	}
	for k, v := range key {
		if err := checkIdent(kind+" key", k); err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("%w: %s key %q is nil", ErrInvalidOp, kind, k)
		}
		if s, ok := v.(string); ok && s == "" {
			return fmt.Errorf("%w: %s key %q is empty", ErrInvalidOp, kind, k)
		}
	}
	return nil
}

func (r NodeRef) validate(kind string) error {
	if err := checkIdent(kind+" label", r.Label); err != nil {
		return err
	}
	return checkKey(kind, r.Key)
}

func (n NodeUpsert) Validate() error {
	if err := (NodeRef{Label: n.Label, Key: n.Key}).validate("node"); err != nil {
		return err
	}
	for _, l := range n.ExtraLabels {
		if err := checkIdent("label", l); err != nil {
			return err
		}
	}
	for _, p := range []Props{n.OnCreate, n.Set, n.Fill} {
		if err := checkProps("node", p); err != nil {
			return err
		}
	}
	if n.StubPatch != nil {
		if err := checkIdent("stub guard", n.StubPatch.Unless); err != nil {
			return err
		}
		if err := checkProps("stub", n.StubPatch.Props); err != nil {
			return err
		}
	}
	return nil
}

func (e EdgeUpsert) Validate() error {
	if err := checkIdent("relationship type", e.Type); err != nil {
		return err
	}
	if err := e.From.validate("from"); err != nil {
		return err
	}
	if err := e.To.validate("to"); err != nil {
		return err
	}
	for _, p := range []Props{e.Key, e.OnCreate, e.Set} {
		if err := checkProps("edge", p); err != nil {
			return err
		}
	}
	for k, v := range e.Key {
		if v == nil {
			return fmt.Errorf("%w: edge key %q is nil", ErrInvalidOp, k)
		}
	}
	return nil
}

func (c Claim) Validate() error {
	if err := (NodeRef{Label: c.Label, Key: c.Match}).validate("claim"); err != nil {
		return err
	}
	if err := checkIdent("claim guard", c.Unless); err != nil {
		return err
	}
	if len(c.Assign) == 0 {
		return fmt.Errorf("%w: claim assigns nothing", ErrInvalidOp)
	}
	if c.Absent != nil {
		if err := c.Absent.validate("claim absent"); err != nil {
			return err
		}
	}
	return checkProps("claim", c.Assign)
}

func (r NodeRef) String() string { return fmt.Sprintf("(:%s %s)", r.Label, formatProps(r.Key)) }

func (n NodeUpsert) String() string {
	return "upsert " + NodeRef{Label: n.Label, Key: n.Key}.String()
}

func (e EdgeUpsert) String() string {
	arrow := "->"
	if e.Undirected {
		arrow = "-"
	}
	return fmt.Sprintf("upsert %s-[:%s]%s%s", e.From, e.Type, arrow, e.To)
}

func (c Claim) String() string {
	s := fmt.Sprintf("claim (:%s %s) where %s is null", c.Label, formatProps(c.Match), c.Unless)
	if c.Absent != nil {
		s += " unless " + c.Absent.String() + " exists"
	}
	return s
}

func formatProps(p Props) string {
	keys := sortedKeys(p)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", k, p[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func sortedKeys(p Props) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compact returns a copy of p without nil values.
func Compact(p Props) Props {
	out := make(Props, len(p))
	for k, v := range p {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
