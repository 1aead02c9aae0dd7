package recorder

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 2

// schema stores one row per published level (metrics) and periodic node
// snapshots (nodes), keyed by run. epoch counts the resets within a run so
// trajectories before and after a reset stay apart.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    seed INTEGER NOT NULL DEFAULT 0,
    recursion_depth INTEGER NOT NULL,
    introspection_rate REAL NOT NULL,
    node_count INTEGER NOT NULL,
    topology TEXT  -- YAML
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- One row per tick
CREATE TABLE IF NOT EXISTS consciousness_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    iteration INTEGER NOT NULL,
    consciousness REAL NOT NULL,  -- published level, 0-100
    activation REAL NOT NULL,     -- mean activation over all nodes
    introspection REAL NOT NULL,  -- introspection rate in effect
    recursion_depth INTEGER NOT NULL,
    active_nodes INTEGER NOT NULL,
    recorded_at TEXT NOT NULL,
    epoch INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_metrics_run ON consciousness_metrics(run_id, id);

-- Periodic node snapshots
CREATE TABLE IF NOT EXISTS neural_nodes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    epoch INTEGER NOT NULL DEFAULT 0,
    iteration INTEGER NOT NULL,
    node_id TEXT NOT NULL,
    node_type TEXT NOT NULL,
    x_position REAL NOT NULL,
    y_position REAL NOT NULL,
    activation REAL NOT NULL,
    connections TEXT NOT NULL,  -- JSON array
    recorded_at TEXT NOT NULL,
    PRIMARY KEY (run_id, epoch, iteration, node_id)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the schema on a fresh database and checks the
// version of an existing one.
func InitSchema(ctx context.Context, db *sql.DB) error {
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version < SchemaVersion {
		if err := migrateSchema(ctx, db, version); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// migrateV2 adds reset epochs. Rows recorded before it belong to epoch 0;
// neural_nodes is rebuilt because its primary key changes.
const migrateV2 = `
ALTER TABLE consciousness_metrics ADD COLUMN epoch INTEGER NOT NULL DEFAULT 0;

CREATE TABLE neural_nodes_v2 (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    epoch INTEGER NOT NULL DEFAULT 0,
    iteration INTEGER NOT NULL,
    node_id TEXT NOT NULL,
    node_type TEXT NOT NULL,
    x_position REAL NOT NULL,
    y_position REAL NOT NULL,
    activation REAL NOT NULL,
    connections TEXT NOT NULL,
    recorded_at TEXT NOT NULL,
    PRIMARY KEY (run_id, epoch, iteration, node_id)
);
INSERT INTO neural_nodes_v2
    (run_id, epoch, iteration, node_id, node_type, x_position, y_position, activation, connections, recorded_at)
SELECT run_id, 0, iteration, node_id, node_type, x_position, y_position, activation, connections, recorded_at
FROM neural_nodes;
DROP TABLE neural_nodes;
ALTER TABLE neural_nodes_v2 RENAME TO neural_nodes;
`

// migrateSchema applies migrations from currentVersion to SchemaVersion in
// one transaction.
func migrateSchema(ctx context.Context, db *sql.DB, currentVersion int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if currentVersion < 2 {
		if _, err := tx.ExecContext(ctx, migrateV2); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}
