// Package recorder persists simulation runs to SQLite: one metrics row per
// tick and periodic snapshots of every node. Each run is keyed by a UUID.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/propagation"
)

// DBFile is the default database file name inside the .nexus directory.
const DBFile = "runs.db"

var (
	// ErrRunNotFound is returned when no run matches an id or prefix.
	ErrRunNotFound = errors.New("run not found")

	// ErrAmbiguousRun is returned when an id prefix matches several runs.
	ErrAmbiguousRun = errors.New("ambiguous run id prefix")
)

// Run describes one recorded simulation run.
type Run struct {
	ID        string             `json:"id"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Seed      int64              `json:"seed"`
	Params    propagation.Params `json:"params"`
	NodeCount int                `json:"node_count"`
	Topology  string             `json:"topology,omitempty"`

	// Filled by ListRuns and GetRun.
	Ticks      int     `json:"ticks"`
	FinalLevel float64 `json:"final_level"`
}

// Metric is one consciousness_metrics row.
type Metric struct {
	RunID          string    `json:"run_id"`
	Epoch          int       `json:"epoch"`
	Iteration      uint64    `json:"iteration"`
	Consciousness  float64   `json:"consciousness"`
	Activation     float64   `json:"activation"`
	Introspection  float64   `json:"introspection"`
	RecursionDepth int       `json:"recursion_depth"`
	ActiveNodes    int       `json:"active_nodes"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// NodeRecord is one neural_nodes row.
type NodeRecord struct {
	RunID       string    `json:"run_id"`
	Epoch       int       `json:"epoch"`
	Iteration   uint64    `json:"iteration"`
	NodeID      string    `json:"node_id"`
	NodeType    string    `json:"node_type"`
	X           float64   `json:"x_position"`
	Y           float64   `json:"y_position"`
	Activation  float64   `json:"activation"`
	Connections []string  `json:"connections"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// SnapshotKey identifies one node snapshot of a run. Epoch counts the resets
// before the snapshot was taken, so iteration numbers repeat across epochs.
type SnapshotKey struct {
	Epoch     int    `json:"epoch"`
	Iteration uint64 `json:"iteration"`
}

func (k SnapshotKey) String() string {
	if k.Epoch == 0 {
		return strconv.FormatUint(k.Iteration, 10)
	}
	return fmt.Sprintf("%d@%d", k.Iteration, k.Epoch)
}

// Recorder is a SQLite-backed run store. It is safe for concurrent use.
type Recorder struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// DefaultPath returns <root>/.nexus/runs.db.
func DefaultPath(root string) string {
	return filepath.Join(root, ".nexus", DBFile)
}

// Open opens or creates the database at path.
func Open(path string) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recorder directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Recorder{db: db, path: path}, nil
}

// Path returns the database file path.
func (r *Recorder) Path() string {
	return r.path
}

// Close closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}

// StartRun inserts run and returns its id. A new UUID is assigned when
// run.ID is empty; a zero StartedAt becomes now.
func (r *Recorder) StartRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, seed, recursion_depth, introspection_rate, node_count, topology)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), run.Seed,
		run.Params.RecursionDepth, run.Params.IntrospectionRate,
		run.NodeCount, nullString(run.Topology))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return run.ID, nil
}

// EndRun stamps the end time of a run.
func (r *Recorder) EndRun(ctx context.Context, runID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE id = ?`, formatTime(at), runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// RecordMetric appends one metrics row.
func (r *Recorder) RecordMetric(ctx context.Context, m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO consciousness_metrics
		 (run_id, epoch, iteration, consciousness, activation, introspection, recursion_depth, active_nodes, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Epoch, int64(m.Iteration), m.Consciousness, m.Activation, m.Introspection,
		m.RecursionDepth, m.ActiveNodes, formatTime(m.RecordedAt))
	if err != nil {
		return fmt.Errorf("record metric: %w", err)
	}
	return nil
}

// RecordNodes stores a snapshot of every node under key in one
// transaction. Recording the same key twice replaces the earlier rows.
func (r *Recorder) RecordNodes(ctx context.Context, runID string, key SnapshotKey, nodes []graph.NodeState, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record nodes: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO neural_nodes
		 (run_id, epoch, iteration, node_id, node_type, x_position, y_position, activation, connections, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("record nodes: %w", err)
	}
	defer stmt.Close()

	ts := formatTime(at)
	for _, n := range nodes {
		conns := n.Connections
		if conns == nil {
			conns = []string{}
		}
		connJSON, err := json.Marshal(conns)
		if err != nil {
			return fmt.Errorf("record nodes: marshal connections of %s: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID, key.Epoch, int64(key.Iteration), n.ID, n.Role.String(),
			n.Position.X, n.Position.Y, n.Activation, string(connJSON), ts); err != nil {
			return fmt.Errorf("record node %s: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `r.id, r.started_at, r.ended_at, r.seed, r.recursion_depth, r.introspection_rate,
	r.node_count, COALESCE(r.topology, ''),
	(SELECT COUNT(*) FROM consciousness_metrics m WHERE m.run_id = r.id),
	COALESCE((SELECT m.consciousness FROM consciousness_metrics m WHERE m.run_id = r.id ORDER BY m.id DESC LIMIT 1), 0)`

// ListRuns returns all runs, newest first. Topology is left empty.
func (r *Recorder) ListRuns(ctx context.Context) ([]Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs r ORDER BY r.started_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.Topology = ""
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose id is idOrPrefix or starts with it.
func (r *Recorder) GetRun(ctx context.Context, idOrPrefix string) (*Run, error) {
	if idOrPrefix == "" {
		return nil, ErrRunNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.id = ? OR substr(r.id, 1, ?) = ? LIMIT 2`,
		idOrPrefix, len(idOrPrefix), idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("get run: %w", err)
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s: %w", idOrPrefix, ErrRunNotFound)
	case 1:
		return &found[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", idOrPrefix, ErrAmbiguousRun)
	}
}

// Metrics returns every metrics row of a run in insertion order.
func (r *Recorder) Metrics(ctx context.Context, runID string) ([]Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, epoch, iteration, consciousness, activation, introspection, recursion_depth, active_nodes, recorded_at
		 FROM consciousness_metrics WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var iter int64
		var ts string
		if err := rows.Scan(&m.RunID, &m.Epoch, &iter, &m.Consciousness, &m.Activation, &m.Introspection,
			&m.RecursionDepth, &m.ActiveNodes, &ts); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Iteration = uint64(iter)
		if m.RecordedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Nodes returns the node snapshot of a run under key, in node id order.
func (r *Recorder) Nodes(ctx context.Context, runID string, key SnapshotKey) ([]NodeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, epoch, iteration, node_id, node_type, x_position, y_position, activation, connections, recorded_at
		 FROM neural_nodes WHERE run_id = ? AND epoch = ? AND iteration = ? ORDER BY node_id`,
		runID, key.Epoch, int64(key.Iteration))
	if err != nil {
		return nil, fmt.Errorf("get nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeRecord
	for rows.Next() {
		var n NodeRecord
		var iter int64
		var conns, ts string
		if err := rows.Scan(&n.RunID, &n.Epoch, &iter, &n.NodeID, &n.NodeType, &n.X, &n.Y, &n.Activation, &conns, &ts); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Iteration = uint64(iter)
		if err := json.Unmarshal([]byte(conns), &n.Connections); err != nil {
			return nil, fmt.Errorf("parse connections of %s: %w", n.NodeID, err)
		}
		if n.RecordedAt, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Snapshots lists the keys of a run's node snapshots in recording order:
// by epoch, then iteration.
func (r *Recorder) Snapshots(ctx context.Context, runID string) ([]SnapshotKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT epoch, iteration FROM neural_nodes WHERE run_id = ? ORDER BY epoch, iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotKey
	for rows.Next() {
		var k SnapshotKey
		var iter int64
		if err := rows.Scan(&k.Epoch, &iter); err != nil {
			return nil, fmt.Errorf("scan snapshot key: %w", err)
		}
		k.Iteration = uint64(iter)
		out = append(out, k)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, all its rows.
func (r *Recorder) DeleteRun(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var started string
	var ended sql.NullString
	if err := s.Scan(&run.ID, &started, &ended, &run.Seed,
		&run.Params.RecursionDepth, &run.Params.IntrospectionRate,
		&run.NodeCount, &run.Topology, &run.Ticks, &run.FinalLevel); err != nil {
		return Run{}, err
	}

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return Run{}, err
		}
		run.EndedAt = &t
	}
	return run, nil
}

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
