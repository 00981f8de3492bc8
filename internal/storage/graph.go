package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// graphLockKey is the advisory lock taken by every edge insertion and graph
// replacement, so cycle checks always see a stable edge set.
const graphLockKey = 0x52414746_47524150

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// LoadGraph reads all nodes, the entry node and all edges. Edges come back
// in insertion order.
func (db *DB) LoadGraph(ctx context.Context) (model.Graph, error) {
	g := model.NewGraph()
	if err := loadNodes(ctx, db.pool, &g); err != nil {
		return model.Graph{}, fmt.Errorf("storage: load nodes: %w", err)
	}
	edges, err := loadEdges(ctx, db.pool)
	if err != nil {
		return model.Graph{}, fmt.Errorf("storage: load edges: %w", err)
	}
	g.Edges = edges
	return g, nil
}

func loadNodes(ctx context.Context, q querier, g *model.Graph) error {
	rows, err := q.Query(ctx, `
		SELECT name, agent_type, output_field, decision_config, prompt_name, is_entry
		FROM agent_node`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			n       model.AgentNode
			output  *string
			config  []byte
			prompt  *string
			isEntry bool
		)
		if err := rows.Scan(&n.Name, &n.AgentType, &output, &config, &prompt, &isEntry); err != nil {
			return err
		}
		if output != nil {
			n.OutputField = *output
		}
		if prompt != nil {
			n.PromptName = *prompt
		}
		if config != nil {
			var cfg model.DecisionConfig
			if err := json.Unmarshal(config, &cfg); err != nil {
				return fmt.Errorf("decode decision config of %q: %w", n.Name, err)
			}
			n.DecisionConfig = &cfg
		}
		if isEntry {
			g.EntryNode = n.Name
		}
		g.Nodes[n.Name] = n
	}
	return rows.Err()
}

func loadEdges(ctx context.Context, q querier) (map[string][]model.Edge, error) {
	rows, err := q.Query(ctx, `SELECT src_node, dest_node, condition FROM edge ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	edges := make(map[string][]model.Edge)
	for rows.Next() {
		var (
			e    model.Edge
			cond []byte
		)
		if err := rows.Scan(&e.SrcNode, &e.DestNode, &cond); err != nil {
			return nil, err
		}
		if cond != nil {
			var c model.Condition
			if err := json.Unmarshal(cond, &c); err != nil {
				return nil, fmt.Errorf("decode condition of %q → %q: %w", e.SrcNode, e.DestNode, err)
			}
			e.Condition = &c
		}
		edges[e.SrcNode] = append(edges[e.SrcNode], e)
	}
	return edges, rows.Err()
}

// NodeExists reports whether a node called name exists.
func (db *DB) NodeExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM agent_node WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: node exists: %w", err)
	}
	return exists, nil
}

// InsertNode inserts a node. A duplicate name returns ErrConflict.
func (db *DB) InsertNode(ctx context.Context, node model.AgentNode) error {
	cfg, err := encodeConfig(node.DecisionConfig)
	if err != nil {
		return fmt.Errorf("storage: insert node: %w", err)
	}
	_, err = db.pool.Exec(ctx, `
		INSERT INTO agent_node (name, agent_type, output_field, decision_config, prompt_name)
		VALUES ($1, $2, $3, $4, $5)`,
		node.Name, node.AgentType, nullable(node.OutputField), cfg, nullable(node.PromptName),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage: insert node %q: %w", node.Name, ErrConflict)
		}
		return fmt.Errorf("storage: insert node: %w", err)
	}
	return nil
}

// UpdateNode overwrites the node called name. Renames cascade to edges.
func (db *DB) UpdateNode(ctx context.Context, name string, node model.AgentNode) error {
	cfg, err := encodeConfig(node.DecisionConfig)
	if err != nil {
		return fmt.Errorf("storage: update node: %w", err)
	}
	tag, err := db.pool.Exec(ctx, `
		UPDATE agent_node
		SET name = $2, agent_type = $3, output_field = $4, decision_config = $5, prompt_name = $6
		WHERE name = $1`,
		name, node.Name, node.AgentType, nullable(node.OutputField), cfg, nullable(node.PromptName),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage: update node %q: %w", name, ErrConflict)
		}
		return fmt.Errorf("storage: update node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteNode deletes a node; its edges go with it.
func (db *DB) DeleteNode(ctx context.Context, name string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM agent_node WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("storage: delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEntryNode clears the previous entry flag and sets it on name, in one
// transaction.
func (db *DB) SetEntryNode(ctx context.Context, name string) error {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE agent_node SET is_entry = false WHERE is_entry`); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE agent_node SET is_entry = true WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: set entry: %w", err)
	}
	return nil
}

// EdgeExists reports whether the edge src → dest exists.
func (db *DB) EdgeExists(ctx context.Context, src, dest string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM edge WHERE src_node = $1 AND dest_node = $2)`, src, dest,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: edge exists: %w", err)
	}
	return exists, nil
}

// InsertEdge inserts e under the graph advisory lock. guard receives the
// edge set read while holding the lock; its error aborts the insert and is
// returned unwrapped.
func (db *DB) InsertEdge(ctx context.Context, e model.Edge, guard func(map[string][]model.Edge) error) error {
	cond, err := encodeCondition(e.Condition)
	if err != nil {
		return fmt.Errorf("storage: insert edge: %w", err)
	}
	var guardErr error
	err = WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		guardErr = nil
		return db.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(graphLockKey)); err != nil {
				return err
			}
			if guard != nil {
				edges, err := loadEdges(ctx, tx)
				if err != nil {
					return err
				}
				if guardErr = guard(edges); guardErr != nil {
					return guardErr
				}
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO edge (src_node, dest_node, condition) VALUES ($1, $2, $3)`,
				e.SrcNode, e.DestNode, cond,
			)
			return err
		})
	})
	switch {
	case err == nil:
		return nil
	case guardErr != nil:
		return guardErr
	case isUniqueViolation(err):
		return fmt.Errorf("storage: insert edge %q → %q: %w", e.SrcNode, e.DestNode, ErrConflict)
	case isForeignKeyViolation(err):
		return ErrNotFound
	}
	return fmt.Errorf("storage: insert edge: %w", err)
}

// UpdateEdge replaces the condition of src → dest, keeping its position.
func (db *DB) UpdateEdge(ctx context.Context, e model.Edge) error {
	cond, err := encodeCondition(e.Condition)
	if err != nil {
		return fmt.Errorf("storage: update edge: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE edge SET condition = $3 WHERE src_node = $1 AND dest_node = $2`,
		e.SrcNode, e.DestNode, cond,
	)
	if err != nil {
		return fmt.Errorf("storage: update edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEdge deletes src → dest.
func (db *DB) DeleteEdge(ctx context.Context, src, dest string) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM edge WHERE src_node = $1 AND dest_node = $2`, src, dest)
	if err != nil {
		return fmt.Errorf("storage: delete edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceGraph deletes the current graph and writes g in one transaction.
// Edges keep the order of g.Edges per source; sources are written in node
// name order.
func (db *DB) ReplaceGraph(ctx context.Context, g model.Graph) error {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(graphLockKey)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM edge`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM agent_node`); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		names := sortedKeys(g.Nodes)
		for _, name := range names {
			n := g.Nodes[name]
			cfg, err := encodeConfig(n.DecisionConfig)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO agent_node (name, agent_type, output_field, decision_config, prompt_name, is_entry)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				n.Name, n.AgentType, nullable(n.OutputField), cfg, nullable(n.PromptName), n.Name == g.EntryNode,
			)
		}
		for _, src := range sortedKeys(g.Edges) {
			for _, e := range g.Edges[src] {
				cond, err := encodeCondition(e.Condition)
				if err != nil {
					return err
				}
				batch.Queue(`INSERT INTO edge (src_node, dest_node, condition) VALUES ($1, $2, $3)`,
					e.SrcNode, e.DestNode, cond)
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("storage: replace graph: %w", err)
	}
	return nil
}

func encodeConfig(cfg *model.DecisionConfig) ([]byte, error) {
	if cfg == nil {
		return nil, nil
	}
	return json.Marshal(cfg)
}

func encodeCondition(c *model.Condition) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
