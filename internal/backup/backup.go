// Package backup archives recorded runs to self-verifying files and
// restores them into a recorder.
package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/nexus/internal/recorder"
)

// Archive is the payload of an archive file: one run with every row the
// recorder holds for it.
type Archive struct {
	Version   int                   `json:"version"`
	CreatedAt time.Time             `json:"created_at"`
	Run       recorder.Run          `json:"run"`
	Metrics   []recorder.Metric     `json:"metrics"`
	Nodes     []recorder.NodeRecord `json:"nodes"`
}

// DefaultDir returns <root>/.nexus/archives.
func DefaultDir(root string) string {
	return filepath.Join(root, ".nexus", "archives")
}

// Export writes the run matching idOrPrefix to path.
func Export(ctx context.Context, rec *recorder.Recorder, idOrPrefix, path string) (*Archive, error) {
	run, err := rec.GetRun(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	metrics, err := rec.Metrics(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	keys, err := rec.Snapshots(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	var nodes []recorder.NodeRecord
	for _, k := range keys {
		ns, err := rec.Nodes(ctx, run.ID, k)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", k, err)
		}
		nodes = append(nodes, ns...)
	}

	a := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now(),
		Run:       *run,
		Metrics:   metrics,
		Nodes:     nodes,
	}
	if err := Write(path, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ImportResult reports what Import did.
type ImportResult struct {
	RunID    string `json:"run_id"`
	Metrics  int    `json:"metrics"`
	Nodes    int    `json:"nodes"`
	Skipped  bool   `json:"skipped"`
	Checksum string `json:"checksum"`
}

// Import verifies the archive at path and stores its run. A run that is
// already present is skipped, not overwritten.
func Import(ctx context.Context, rec *recorder.Recorder, path string) (*ImportResult, error) {
	header, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	a, err := Read(path)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		RunID:    a.Run.ID,
		Checksum: header.Checksum,
	}
	err = rec.ImportRun(ctx, a.Run, a.Metrics, a.Nodes)
	if errors.Is(err, recorder.ErrRunExists) {
		result.Skipped = true
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.Metrics = len(a.Metrics)
	result.Nodes = len(a.Nodes)
	return result, nil
}

// GeneratePath returns a timestamped archive path for runID in dir.
func GeneratePath(dir, runID string) string {
	ts := time.Now().Format("20060102-150405")
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(dir, fmt.Sprintf("%s%s-%s%s", filePrefix, ts, short, fileExt))
}
