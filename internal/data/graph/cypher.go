package graph

import (
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/healthgraph-etl/internal/timeparse"
)

// Statement is a rendered Cypher query. Counted statements return a single
// row with column n that must be non-zero. Locks must be taken in the same
// transaction before the statement runs.
type Statement struct {
	Cypher  string
	Params  map[string]any
	Counted bool
	Locks   []string
}

// Render turns an op into Cypher. Labels, types and property names are
// validated identifiers and are inlined; every value is a parameter.
func Render(op Op) (Statement, error) {
	if err := op.Validate(); err != nil {
		return Statement{}, err
	}
	st, err := render(op)
	if err != nil {
		return Statement{}, err
	}
	st.Locks = locksFor(op)
	return st, nil
}

func render(op Op) (Statement, error) {
	switch o := op.(type) {
	case NodeUpsert:
		return renderNode(o), nil
	case *NodeUpsert:
		return renderNode(*o), nil
	case EdgeUpsert:
		return renderEdge(o), nil
	case *EdgeUpsert:
		return renderEdge(*o), nil
	case Claim:
		return renderClaim(o), nil
	case *Claim:
		return renderClaim(*o), nil
	default:
		return Statement{}, fmt.Errorf("%w: unsupported op %T", ErrInvalidOp, op)
	}
}

func renderNode(o NodeUpsert) Statement {
	params := map[string]any{}
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE (n:`%s` %s)\n", o.Label, inlineKey("key", o.Key, params))
	if c := Compact(o.OnCreate); len(c) > 0 {
		params["onCreate"] = toParams(c)
		b.WriteString("ON CREATE SET n += $onCreate\n")
	}
	for _, l := range o.ExtraLabels {
		fmt.Fprintf(&b, "SET n:`%s`\n", l)
	}
	if len(o.Set) > 0 {
		// += with a null value removes the property.
		params["set"] = toParams(o.Set)
		b.WriteString("SET n += $set\n")
	}
	if fill := Compact(o.Fill); len(fill) > 0 {
		parts := make([]string, 0, len(fill))
		for _, k := range sortedKeys(fill) {
			name := "fill_" + k
			params[name] = toParam(fill[k])
			parts = append(parts, fmt.Sprintf("n.`%s` = coalesce(n.`%s`, $%s)", k, k, name))
		}
		b.WriteString("SET " + strings.Join(parts, ", ") + "\n")
	}
	if o.StubPatch != nil {
		if stub := Compact(o.StubPatch.Props); len(stub) > 0 {
			params["stub"] = toParams(stub)
			fmt.Fprintf(&b, "FOREACH (ignored IN CASE WHEN n.`%s` IS NULL THEN [1] ELSE [] END | SET n += $stub)\n", o.StubPatch.Unless)
		}
	}
	return Statement{Cypher: strings.TrimSpace(b.String()), Params: params}
}

func renderEdge(o EdgeUpsert) Statement {
	params := map[string]any{}
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (a:`%s` %s)\n", o.From.Label, inlineKey("from", o.From.Key, params))
	fmt.Fprintf(&b, "MATCH (b:`%s` %s)\n", o.To.Label, inlineKey("to", o.To.Key, params))
	rel := fmt.Sprintf("[r:`%s`", o.Type)
	if len(o.Key) > 0 {
		rel += " " + inlineKey("rel", o.Key, params)
	}
	rel += "]"
	if o.Undirected {
		fmt.Fprintf(&b, "MERGE (a)-%s-(b)\n", rel)
	} else {
		fmt.Fprintf(&b, "MERGE (a)-%s->(b)\n", rel)
	}
	if c := Compact(o.OnCreate); len(c) > 0 {
		params["onCreate"] = toParams(c)
		b.WriteString("ON CREATE SET r += $onCreate\n")
	}
	if len(o.Set) > 0 {
		params["set"] = toParams(o.Set)
		b.WriteString("SET r += $set\n")
	}
	b.WriteString("RETURN count(r) AS n")
	return Statement{Cypher: b.String(), Params: params, Counted: true}
}

func renderClaim(o Claim) Statement {
	params := map[string]any{"assign": toParams(Compact(o.Assign))}
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:`%s` %s)\nWHERE n.`%s` IS NULL", o.Label, inlineKey("match", o.Match, params), o.Unless)
	if o.Absent != nil {
		fmt.Fprintf(&b, " AND NOT EXISTS { MATCH (:`%s` %s) }", o.Absent.Label, inlineKey("absent", o.Absent.Key, params))
	}
	b.WriteString("\nSET n += $assign")
	return Statement{Cypher: b.String(), Params: params}
}

func inlineKey(prefix string, key Props, params map[string]any) string {
	parts := make([]string, 0, len(key))
	for _, k := range sortedKeys(key) {
		name := prefix + "_" + k
		params[name] = toParam(key[k])
		parts = append(parts, fmt.Sprintf("`%s`: $%s", k, name))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func toParams(p Props) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = toParam(v)
	}
	return out
}

// Parsed instants become driver temporal types: local date-times for
// timestamps and dates for day-precision values.
func toParam(v any) any {
	switch t := v.(type) {
	case timeparse.Instant:
		if t.Precision == timeparse.Date {
			return neo4j.DateOf(t.Time)
		}
		return neo4j.LocalDateTimeOf(t.Time)
	case *timeparse.Instant:
		if t == nil {
			return nil
		}
		return toParam(*t)
	default:
		return v
	}
}
