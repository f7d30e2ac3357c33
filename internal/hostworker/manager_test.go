package hostworker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"canvasbridge/engine/internal/doctree"
)

const scriptedWorker = `import sys, json
for line in sys.stdin:
    if not line.strip():
        continue
    req = json.loads(line)
    mid = req.get("method")
    params = req.get("params") or {}
    if mid == "Crash":
        sys.exit(0)
    if mid == "Hang":
        continue
    if mid == "NodeGet" and params.get("node_id") != "1:1":
        resp = {"jsonrpc":"2.0","id":req.get("id"),"error":{"code":-32000,"message":"no such node","data":{"error_code":"NOT_FOUND"}}}
    elif mid == "NodeGet":
        resp = {"jsonrpc":"2.0","id":req.get("id"),"result":{"id":"1:1","name":"Frame","type":"FRAME","children":["1:2"]}}
    else:
        sys.stderr.write(json.dumps({"level":"debug","message":"worker.call","method":mid})+"\n")
        resp = {"jsonrpc":"2.0","id":req.get("id"),"result":{"ok":True,"host":"script"}}
    sys.stdout.write(json.dumps(resp)+"\n")
    sys.stdout.flush()
`

func startScripted(t *testing.T) *Manager {
	t.Helper()
	requirePython(t)
	script := filepath.Join(t.TempDir(), "worker.py")
	if err := os.WriteFile(script, []byte(scriptedWorker), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	mgr := New(script, nil)
	mgr.sleep = func(time.Duration) {}
	if err := mgr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestManagerRestartOnCrash(t *testing.T) {
	mgr := startScripted(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.HealthCheck(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := mgr.Call(ctx, "Crash", map[string]any{}, nil); err == nil {
		t.Fatalf("expected crash error")
	}
	if err := mgr.HealthCheck(ctx); err != nil {
		t.Fatalf("expected restart, got %v", err)
	}
}

func TestManagerSurvivesIsolatedCrashes(t *testing.T) {
	mgr := startScripted(t)
	var slept []time.Duration
	mgr.sleep = func(d time.Duration) { slept = append(slept, d) }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := 0; i < maxRestartAttempt+1; i++ {
		if err := mgr.Call(ctx, "Crash", map[string]any{}, nil); err == nil {
			t.Fatalf("crash %d: expected error", i)
		}
		if err := mgr.HealthCheck(ctx); err != nil {
			t.Fatalf("restart %d: %v (status %v)", i, err, mgr.Status())
		}
		if failures, _ := mgr.Status()["failures"].(int); failures != 0 {
			t.Fatalf("restart %d: expected failures reset, got %d", i, failures)
		}
	}
	if disabled, _ := mgr.Status()["disabled"].(bool); disabled {
		t.Fatalf("isolated crashes must not disable the worker")
	}
	for _, d := range slept {
		if d != time.Second {
			t.Fatalf("expected backoff to stay at 1s, got %v", slept)
		}
	}
}

func TestManagerCallTimeout(t *testing.T) {
	mgr := startScripted(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := mgr.Call(ctx, "Hang", map[string]any{}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHostMapsRemoteNotFound(t *testing.T) {
	host := NewHost(startScripted(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	node, err := host.Node(ctx, "1:1")
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if !node.Visible || node.Type != doctree.TypeFrame || len(node.Children) != 1 {
		t.Fatalf("unexpected node %+v", node)
	}
	if _, err := host.Node(ctx, "9:9"); !errors.Is(err, doctree.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManagerDisablesAfterRepeatedStartFailures(t *testing.T) {
	mgr := New(filepath.Join(t.TempDir(), "missing.py"), nil)
	var slept []time.Duration
	mgr.sleep = func(d time.Duration) { slept = append(slept, d) }
	for i := 0; i < maxRestartAttempt+1; i++ {
		if err := mgr.Call(context.Background(), "HostGetInfo", nil, nil); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	if disabled, _ := mgr.Status()["disabled"].(bool); !disabled {
		t.Fatalf("expected manager to be disabled: %+v", mgr.Status())
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected backoff %v", slept)
	}
	mgr.Reset()
	if disabled, _ := mgr.Status()["disabled"].(bool); disabled {
		t.Fatalf("expected reset to re-enable manager")
	}
}

func TestCommandForPath(t *testing.T) {
	if _, _, err := commandForPath(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	bin := filepath.Join(t.TempDir(), "host-worker")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o700); err != nil {
		t.Fatalf("write: %v", err)
	}
	cmd, args, err := commandForPath(bin)
	if err != nil || cmd != bin || len(args) != 0 {
		t.Fatalf("unexpected command %q %v %v", cmd, args, err)
	}
}

func TestMapRPCError(t *testing.T) {
	if err := mapRPCError(&rpcError{Message: CodeHostUnavailable}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	err := mapRPCError(&rpcError{Message: "boom", Data: map[string]any{"error_code": "NOT_FOUND"}})
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != CodeNodeNotFound || remote.Error() != "NOT_FOUND: boom" {
		t.Fatalf("unexpected remote error %#v", err)
	}
}

func requirePython(t *testing.T) string {
	t.Helper()
	if path, err := exec.LookPath("python3"); err == nil {
		return path
	}
	if path, err := exec.LookPath("python"); err == nil {
		return path
	}
	t.Skip("python not available")
	return ""
}
