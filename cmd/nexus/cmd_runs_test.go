package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/nexus/internal/recorder"
)

func TestRunsCmd_RecordListShowDelete(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, "run", "--ticks", "20", "--seed", "3", "--record", "--snapshot-every", "10", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("run --record: %v", err)
	}
	runID, _ := decodeJSON(t, out)["run_id"].(string)
	if runID == "" {
		t.Fatalf("no run_id in output:\n%s", out)
	}

	out, err = execute(t, "runs", "list", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	list := decodeJSON(t, out)
	if list["count"] != float64(1) {
		t.Fatalf("count = %v, want 1", list["count"])
	}
	first := list["runs"].([]interface{})[0].(map[string]interface{})
	if first["id"] != runID || first["ticks"] != float64(20) || first["seed"] != float64(3) {
		t.Errorf("listed run = %v", first)
	}

	out, err = execute(t, "runs", "show", runID[:8], "--metrics", "--nodes", "10", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	show := decodeJSON(t, out)
	if n := len(show["metrics"].([]interface{})); n != 20 {
		t.Errorf("metrics rows = %d, want 20", n)
	}
	if n := len(show["nodes"].([]interface{})); n != 10 {
		t.Errorf("node rows = %d, want 10", n)
	}
	snaps := show["snapshots"].([]interface{})
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %v, want 2", snaps)
	}
	for i, want := range []float64{10, 20} {
		k := snaps[i].(map[string]interface{})
		if k["iteration"] != want || k["epoch"] != float64(0) {
			t.Errorf("snapshot %d = %v, want iteration %v epoch 0", i, k, want)
		}
	}

	out, err = execute(t, "runs", "show", runID, "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs show text: %v", err)
	}
	if !strings.Contains(out, "Run "+runID) || !strings.Contains(out, "ticks:       20") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	if _, err := execute(t, "runs", "show", runID, "--nodes", "7", "--root", tmpDir); err == nil {
		t.Error("expected error for iteration without snapshot")
	}
	if _, err := execute(t, "runs", "show", runID, "--nodes", "10", "--epoch", "1", "--root", tmpDir); err == nil {
		t.Error("expected error for epoch without snapshot")
	}

	if _, err := execute(t, "runs", "delete", runID, "--root", tmpDir); err != nil {
		t.Fatalf("runs delete: %v", err)
	}
	out, err = execute(t, "runs", "list", "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, "No recorded runs.") {
		t.Errorf("run still listed after delete:\n%s", out)
	}
}

func TestRunsCmd_UnknownRun(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	_, err := execute(t, "runs", "show", "does-not-exist", "--root", tmpDir)
	if err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("err = %v, want run not found", err)
	}
}

func TestRunsCmd_ExportImport(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	out, err := execute(t, "run", "--ticks", "15", "--record", "--snapshot-every", "5", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("run --record: %v", err)
	}
	runID := decodeJSON(t, out)["run_id"].(string)

	out, err = execute(t, "runs", "export", runID[:8], "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs export: %v", err)
	}
	exported := decodeJSON(t, out)
	path := exported["path"].(string)
	if exported["metrics"] != float64(15) || exported["nodes"] != float64(30) {
		t.Errorf("export = %v", exported)
	}

	out, err = execute(t, "runs", "archives", "--verify", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs archives: %v", err)
	}
	archives := decodeJSON(t, out)
	if archives["count"] != float64(1) {
		t.Fatalf("archives = %v", archives)
	}
	entry := archives["archives"].([]interface{})[0].(map[string]interface{})
	if entry["valid"] != true || entry["run_id"] != runID {
		t.Errorf("archive entry = %v", entry)
	}

	if _, err := execute(t, "runs", "delete", runID, "--root", tmpDir); err != nil {
		t.Fatalf("runs delete: %v", err)
	}

	out, err = execute(t, "runs", "import", path, "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs import: %v", err)
	}
	if !strings.Contains(out, "Imported run "+runID[:8]) {
		t.Errorf("import output = %q", out)
	}

	out, err = execute(t, "runs", "import", path, "--root", tmpDir)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(out, "skipped") {
		t.Errorf("second import output = %q", out)
	}

	out, err = execute(t, "runs", "show", runID, "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("runs show after import: %v", err)
	}
	if ticks := decodeJSON(t, out)["run"].(map[string]interface{})["ticks"]; ticks != float64(15) {
		t.Errorf("ticks after import = %v", ticks)
	}
}

func TestPickSnapshot(t *testing.T) {
	keys := []recorder.SnapshotKey{
		{Epoch: 0, Iteration: 10},
		{Epoch: 0, Iteration: 20},
		{Epoch: 1, Iteration: 0},
		{Epoch: 1, Iteration: 10},
	}
	tests := []struct {
		name      string
		iteration uint64
		epoch     int
		epochSet  bool
		want      recorder.SnapshotKey
		wantOK    bool
	}{
		{"latest epoch wins", 10, 0, false, recorder.SnapshotKey{Epoch: 1, Iteration: 10}, true},
		{"explicit epoch", 10, 0, true, recorder.SnapshotKey{Epoch: 0, Iteration: 10}, true},
		{"only in first epoch", 20, 0, false, recorder.SnapshotKey{Epoch: 0, Iteration: 20}, true},
		{"missing iteration", 7, 0, false, recorder.SnapshotKey{}, false},
		{"missing epoch", 20, 1, true, recorder.SnapshotKey{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickSnapshot(keys, tt.iteration, tt.epoch, tt.epochSet)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("pickSnapshot = %+v, %v; want %+v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRetentionPolicy(t *testing.T) {
	tests := []struct {
		name         string
		keep         int
		age          string
		size         string
		latestPerRun bool
		wantNil      bool
		wantErr      bool
	}{
		{"none", 0, "", "", false, true, false},
		{"count", 3, "", "", false, false, false},
		{"all", 3, "30d", "1GB", false, false, false},
		{"latest per run only", 0, "", "", true, false, false},
		{"latest per run with count", 3, "", "", true, false, false},
		{"bad age", 0, "soon", "", false, false, true},
		{"bad size", 0, "", "lots", false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := retentionPolicy(tt.keep, tt.age, tt.size, tt.latestPerRun)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (p == nil) != tt.wantNil {
				t.Errorf("policy = %v, wantNil %v", p, tt.wantNil)
			}
		})
	}
}

func TestRunsCmd_ExportLatestPerRun(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	runIDs := make([]string, 2)
	for i := range runIDs {
		out, err := execute(t, "run", "--ticks", "5", "--record", "--json", "--root", tmpDir)
		if err != nil {
			t.Fatalf("run --record: %v", err)
		}
		runIDs[i] = decodeJSON(t, out)["run_id"].(string)
	}

	dir := filepath.Join(tmpDir, ".nexus", "archives")
	old := filepath.Join(dir, "nexus-run-20200101-000000-"+runIDs[0][:8]+".nxa")
	other := filepath.Join(dir, "nexus-run-20200101-000001-"+runIDs[1][:8]+".nxa")
	if _, err := execute(t, "runs", "export", runIDs[0], "-o", old, "--root", tmpDir); err != nil {
		t.Fatalf("export old: %v", err)
	}
	if _, err := execute(t, "runs", "export", runIDs[1], "-o", other, "--root", tmpDir); err != nil {
		t.Fatalf("export other: %v", err)
	}

	out, err := execute(t, "runs", "export", runIDs[0], "--latest-per-run", "--json", "--root", tmpDir)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	pruned := decodeJSON(t, out)["pruned"].([]interface{})
	if len(pruned) != 1 || pruned[0] != old {
		t.Errorf("pruned = %v, want [%s]", pruned, old)
	}
	if _, err := os.Stat(other); err != nil {
		t.Errorf("archive of another run was pruned: %v", err)
	}
}
