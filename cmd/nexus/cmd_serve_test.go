package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for one writer and one poller.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeCmd_ControlAPI(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		rootCmd := newRootCmd()
		rootCmd.SetOut(out)
		rootCmd.SetErr(io.Discard)
		rootCmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--auto-start", "--interval", "5ms", "--root", tmpDir})
		done <- rootCmd.ExecuteContext(ctx)
	}()

	var base string
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if s := out.String(); strings.Contains(s, "Nexus server running at ") {
			line := strings.SplitN(s, "\n", 2)[0]
			base = strings.TrimPrefix(line, "Nexus server running at ")
			break
		}
		select {
		case err := <-done:
			t.Fatalf("serve exited early: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if base == "" {
		t.Fatal("timed out waiting for server output")
	}

	// Auto-started: the background driver should be ticking.
	var st map[string]interface{}
	deadline = time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/api/status")
		if err != nil {
			t.Fatalf("GET /api/status: %v", err)
		}
		st = nil
		json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if it, _ := st["iteration"].(float64); it > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if st["state"] != "running" {
		t.Errorf("state = %v, want running", st["state"])
	}
	if it, _ := st["iteration"].(float64); it == 0 {
		t.Error("driver never ticked")
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "nexus_ticks_total") || !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("metrics missing expected series")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
