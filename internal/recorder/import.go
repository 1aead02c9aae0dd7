package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrRunExists is returned by ImportRun when the run id is already stored.
var ErrRunExists = errors.New("run already exists")

// ImportRun stores a complete run with its original id and timestamps,
// plus its metrics and node rows, in one transaction. Row RunIDs are
// overwritten with run.ID.
func (r *Recorder) ImportRun(ctx context.Context, run Run, metrics []Metric, nodes []NodeRecord) error {
	if run.ID == "" {
		return errors.New("import run: missing id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import run: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, run.ID).Scan(&n); err != nil {
		return fmt.Errorf("import run: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("import run %s: %w", run.ID, ErrRunExists)
	}

	var ended sql.NullString
	if run.EndedAt != nil {
		ended = sql.NullString{String: formatTime(*run.EndedAt), Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, ended_at, seed, recursion_depth, introspection_rate, node_count, topology)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), ended, run.Seed,
		run.Params.RecursionDepth, run.Params.IntrospectionRate,
		run.NodeCount, nullString(run.Topology)); err != nil {
		return fmt.Errorf("import run: %w", err)
	}

	metricStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO consciousness_metrics
		 (run_id, epoch, iteration, consciousness, activation, introspection, recursion_depth, active_nodes, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("import run: %w", err)
	}
	defer metricStmt.Close()
	for _, m := range metrics {
		if _, err := metricStmt.ExecContext(ctx,
			run.ID, m.Epoch, int64(m.Iteration), m.Consciousness, m.Activation, m.Introspection,
			m.RecursionDepth, m.ActiveNodes, formatTime(m.RecordedAt)); err != nil {
			return fmt.Errorf("import metric %d: %w", m.Iteration, err)
		}
	}

	nodeStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO neural_nodes
		 (run_id, epoch, iteration, node_id, node_type, x_position, y_position, activation, connections, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("import run: %w", err)
	}
	defer nodeStmt.Close()
	for _, nr := range nodes {
		conns := nr.Connections
		if conns == nil {
			conns = []string{}
		}
		connJSON, err := json.Marshal(conns)
		if err != nil {
			return fmt.Errorf("import node %s: %w", nr.NodeID, err)
		}
		if _, err := nodeStmt.ExecContext(ctx,
			run.ID, nr.Epoch, int64(nr.Iteration), nr.NodeID, nr.NodeType,
			nr.X, nr.Y, nr.Activation, string(connJSON), formatTime(nr.RecordedAt)); err != nil {
			return fmt.Errorf("import node %s: %w", nr.NodeID, err)
		}
	}

	return tx.Commit()
}
