package mcp

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/nexus/internal/graph"
	"github.com/nvandessel/nexus/internal/propagation"
	"github.com/nvandessel/nexus/internal/scheduler"
	"github.com/nvandessel/nexus/internal/simulator"
)

// setupTestServer returns a server over the default topology with
// zero noise, and the directory its audit log is written to.
func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	g, err := graph.New(graph.DefaultTopology())
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	driver := scheduler.NewDriver(simulator.New(g, propagation.ConstantNoise(0)))

	auditDir := filepath.Join(t.TempDir(), ".nexus")
	server, err := NewServer(&Config{
		Name:     "test-server",
		Version:  "v1.0.0",
		Driver:   driver,
		AuditDir: auditDir,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, auditDir
}

func TestNewServer(t *testing.T) {
	server, _ := setupTestServer(t)

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.driver == nil {
		t.Error("Server.driver is nil")
	}
	if server.auditLogger == nil {
		t.Error("expected audit logger")
	}
	if len(server.toolLimiters) == 0 {
		t.Error("expected tool limiters")
	}
}

func TestNewServer_RequiresDriver(t *testing.T) {
	if _, err := NewServer(&Config{Name: "x"}); err == nil {
		t.Error("expected error without a driver")
	}
	if _, err := NewServer(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewServer_NoAuditDir(t *testing.T) {
	g, _ := graph.New(graph.DefaultTopology())
	server, err := NewServer(&Config{
		Name:   "x",
		Driver: scheduler.NewDriver(simulator.New(g, propagation.ConstantNoise(0))),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if server.auditLogger != nil {
		t.Error("audit logger should be disabled")
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func connectClient(t *testing.T, server *Server) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := sdk.NewInMemoryTransports()

	ss, err := server.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestServer_ListTools(t *testing.T) {
	server, _ := setupTestServer(t)
	cs := connectClient(t, server)

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	want := []string{
		"nexus_graph", "nexus_pause", "nexus_reset", "nexus_set_params",
		"nexus_snapshot", "nexus_start", "nexus_status", "nexus_tick",
	}
	if len(names) != len(want) {
		t.Fatalf("tools = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tool[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestServer_CallToolOverTransport(t *testing.T) {
	server, _ := setupTestServer(t)
	cs := connectClient(t, server)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: "nexus_start", Arguments: map[string]interface{}{}})
	if err != nil {
		t.Fatalf("CallTool nexus_start: %v", err)
	}
	if res.IsError {
		t.Fatalf("nexus_start returned tool error: %+v", res.Content)
	}

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{Name: "nexus_tick", Arguments: map[string]interface{}{"count": 3}})
	if err != nil {
		t.Fatalf("CallTool nexus_tick: %v", err)
	}
	if res.IsError {
		t.Fatalf("nexus_tick returned tool error: %+v", res.Content)
	}
	if got := server.driver.Status().Iteration; got != 3 {
		t.Errorf("iteration = %d, want 3", got)
	}

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{Name: "nexus_snapshot", Arguments: map[string]interface{}{"node_id": "nope"}})
	if err != nil {
		t.Fatalf("CallTool nexus_snapshot: %v", err)
	}
	if !res.IsError {
		t.Error("unknown node should be a tool error")
	}
}

func TestServer_StatusResource(t *testing.T) {
	server, _ := setupTestServer(t)
	cs := connectClient(t, server)

	res, err := cs.ReadResource(context.Background(), &sdk.ReadResourceParams{URI: statusURI})
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(res.Contents))
	}
	if text := res.Contents[0].Text; text == "" || res.Contents[0].MIMEType != "text/markdown" {
		t.Errorf("unexpected resource %+v", res.Contents[0])
	}
}
