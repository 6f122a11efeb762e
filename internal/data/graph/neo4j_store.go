package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
	"github.com/yungbote/healthgraph-etl/internal/platform/neo4jdb"
)

type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) *Neo4jStore {
	return &Neo4jStore{client: client, log: log.With("component", "Neo4jGraphStore")}
}

// Apply runs every op inside one managed write transaction. The driver may
// replay the transaction function on transient errors, which is safe
// because each statement is an idempotent MERGE. MERGEs on keys without a
// uniqueness constraint first take a lock node, so concurrent subjects
// cannot create the same node twice; lock-order deadlocks are transient and
// retried by the driver.
func (s *Neo4jStore) Apply(ctx context.Context, ops []Op) error {
	if s == nil || s.client == nil || s.client.Driver == nil {
		return fmt.Errorf("graph: neo4j client not configured")
	}
	if len(ops) == 0 {
		return nil
	}
	stmts := make([]Statement, 0, len(ops))
	for i, op := range ops {
		st, err := Render(op)
		if err != nil {
			return fmt.Errorf("op %d %s: %w", i, op, err)
		}
		stmts = append(stmts, st)
	}

	session := s.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for i, st := range stmts {
			if len(st.Locks) > 0 {
				res, err := tx.Run(ctx, lockCypher, map[string]any{"keys": st.Locks})
				if err == nil {
					_, err = res.Consume(ctx)
				}
				if err != nil {
					return nil, fmt.Errorf("op %d %s: lock: %w", i, ops[i], err)
				}
			}
			res, err := tx.Run(ctx, st.Cypher, st.Params)
			if err != nil {
				return nil, fmt.Errorf("op %d %s: %w", i, ops[i], err)
			}
			if !st.Counted {
				if _, err := res.Consume(ctx); err != nil {
					return nil, fmt.Errorf("op %d %s: %w", i, ops[i], err)
				}
				continue
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return nil, fmt.Errorf("op %d %s: %w", i, ops[i], err)
			}
			n, _, err := neo4j.GetRecordValue[int64](rec, "n")
			if err != nil {
				return nil, fmt.Errorf("op %d %s: %w", i, ops[i], err)
			}
			if n == 0 {
				return nil, fmt.Errorf("op %d %s: %w", i, ops[i], ErrEndpointMissing)
			}
		}
		return nil, nil
	})
	return err
}

func (s *Neo4jStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Nodes: map[string]int{}, Edges: map[string]int{}}
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range []struct {
			cypher string
			into   map[string]int
		}{
			{"MATCH (n) WHERE NOT n:`" + LockLabel + "` UNWIND labels(n) AS k RETURN k, count(*) AS c", st.Nodes},
			{`MATCH ()-[r]->() RETURN type(r) AS k, count(*) AS c`, st.Edges},
		} {
			res, err := tx.Run(ctx, q.cypher, nil)
			if err != nil {
				return nil, err
			}
			recs, err := res.Collect(ctx)
			if err != nil {
				return nil, err
			}
			for _, rec := range recs {
				k, _, _ := neo4j.GetRecordValue[string](rec, "k")
				c, _, _ := neo4j.GetRecordValue[int64](rec, "c")
				q.into[k] = int(c)
			}
		}
		return nil, nil
	})
	return st, err
}
