package system_test

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/MegaGrindStone/go-toolbus"
	"github.com/MegaGrindStone/go-toolbus/servers/system"
)

func newDispatcher(t *testing.T) toolbus.Dispatcher {
	t.Helper()

	reg := toolbus.NewRegistry()
	if err := system.Register(reg); err != nil {
		t.Fatalf("failed to register tools: %v", err)
	}
	return toolbus.NewDispatcher(reg, nil)
}

func TestGetSystemInfo(t *testing.T) {
	d := newDispatcher(t)

	resp := d.Handle(context.Background(), toolbus.Message{
		Type: toolbus.TypeCall,
		ID:   1,
		Tool: "get_system_info",
	})
	if resp.Type != toolbus.TypeResult {
		t.Fatalf("get_system_info failed: %s", resp.Message)
	}

	var info map[string]any
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		t.Fatalf("failed to unmarshal info: %v", err)
	}

	if info["os"] != runtime.GOOS {
		t.Errorf("got os %v, want %s", info["os"], runtime.GOOS)
	}
	if info["arch"] != runtime.GOARCH {
		t.Errorf("got arch %v, want %s", info["arch"], runtime.GOARCH)
	}
	if cpus, ok := info["numCPU"].(float64); !ok || cpus < 1 {
		t.Errorf("got numCPU %v, want at least 1", info["numCPU"])
	}
	if info["goVersion"] == "" {
		t.Error("expected non-empty goVersion")
	}
}

func TestEcho(t *testing.T) {
	d := newDispatcher(t)

	resp := d.Handle(context.Background(), toolbus.Message{
		Type:      toolbus.TypeCall,
		ID:        1,
		Tool:      "echo",
		Arguments: map[string]any{"message": "hello"},
	})
	if resp.Type != toolbus.TypeResult {
		t.Fatalf("echo failed: %s", resp.Message)
	}

	var message string
	if err := json.Unmarshal(resp.Result, &message); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if message != "hello" {
		t.Errorf("got %q, want hello", message)
	}
}

func TestEchoRequiresMessage(t *testing.T) {
	d := newDispatcher(t)

	resp := d.Handle(context.Background(), toolbus.Message{
		Type: toolbus.TypeCall,
		ID:   1,
		Tool: "echo",
	})
	if resp.Kind != toolbus.ErrorKindInvalidArguments {
		t.Errorf("got kind %s, want %s", resp.Kind, toolbus.ErrorKindInvalidArguments)
	}
}
