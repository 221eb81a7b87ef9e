package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/daemon"
	"github.com/olivier-w/zinc/internal/ipc"
	"github.com/olivier-w/zinc/internal/logging"
)

func newTestClient(t *testing.T) (*ipc.Client, *daemon.Daemon) {
	t.Helper()
	cfg := config.Default()
	cfg.DownloadDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.LogDir = t.TempDir()
	cfg.SocketPath = filepath.Join(cfg.LogDir, "zincd.sock")

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath, d, logging.NewNop(), nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, d
}

func TestStatusOverIPC(t *testing.T) {
	client, _ := newTestClient(t)
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if status.PID <= 0 || status.LockPath == "" {
		t.Fatalf("status incomplete: %+v", status)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("dependency report empty")
	}
}

func TestSubmitListDescribeCancel(t *testing.T) {
	client, _ := newTestClient(t)

	// Remote fetch against a stub URL: yt-dlp is absent in the test
	// environment, so the task reaches a terminal error on its own.
	resp, err := client.Submit(ipc.SubmitRequest{
		Kind:   "remote_fetch",
		Source: "https://example.com/v",
	})
	if err != nil {
		t.Fatalf("Submit RPC: %v", err)
	}
	if resp.Task.ID == "" || resp.Task.Status != "pending" {
		t.Fatalf("unexpected created task: %+v", resp.Task)
	}

	list, err := client.TaskList()
	if err != nil {
		t.Fatalf("TaskList RPC: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != resp.Task.ID {
		t.Fatalf("task listing mismatch: %+v", list.Tasks)
	}

	describe, err := client.TaskDescribe(resp.Task.ID)
	if err != nil {
		t.Fatalf("TaskDescribe RPC: %v", err)
	}
	if describe.Task.Source != "https://example.com/v" {
		t.Fatalf("describe mismatch: %+v", describe.Task)
	}

	if _, err := client.TaskDescribe("nope"); err == nil {
		t.Fatal("describing an unknown task must fail")
	}
	if _, err := client.TaskCancel("nope"); err == nil {
		t.Fatal("cancelling an unknown task must fail")
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		described, err := client.TaskDescribe(resp.Task.ID)
		if err != nil {
			t.Fatalf("TaskDescribe RPC: %v", err)
		}
		switch described.Task.Status {
		case "error", "cancelled", "completed":
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
}

func TestSubmitRejectsBadRequest(t *testing.T) {
	client, _ := newTestClient(t)
	if _, err := client.Submit(ipc.SubmitRequest{Kind: "remote_fetch", Source: "not a url"}); err == nil {
		t.Fatal("invalid URL accepted")
	}
	if _, err := client.Submit(ipc.SubmitRequest{Kind: "sideways", Source: "x"}); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestEnginesOverIPC(t *testing.T) {
	client, _ := newTestClient(t)
	engines, err := client.Engines()
	if err != nil {
		t.Fatalf("Engines RPC: %v", err)
	}
	if len(engines.Engines) != 3 {
		t.Fatalf("expected 3 engines, got %d", len(engines.Engines))
	}
	ids := make(map[string]bool)
	for _, e := range engines.Engines {
		ids[e.ID] = true
		if len(e.Models) == 0 {
			t.Errorf("engine %s reports no models", e.ID)
		}
	}
	for _, want := range []string{"whisper", "moonshine", "parakeet"} {
		if !ids[want] {
			t.Errorf("engine %s missing", want)
		}
	}
}

func TestHistoryOverIPC(t *testing.T) {
	client, _ := newTestClient(t)
	hist, err := client.History(10)
	if err != nil {
		t.Fatalf("History RPC: %v", err)
	}
	if len(hist.Entries) != 0 {
		t.Fatalf("fresh journal not empty: %+v", hist.Entries)
	}
	cleared, err := client.HistoryClear()
	if err != nil {
		t.Fatalf("HistoryClear RPC: %v", err)
	}
	if cleared.Removed != 0 {
		t.Fatalf("cleared %d entries from an empty journal", cleared.Removed)
	}
}

func TestStopCallback(t *testing.T) {
	cfg := config.Default()
	cfg.DownloadDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.LogDir = t.TempDir()
	cfg.SocketPath = filepath.Join(cfg.LogDir, "zincd.sock")

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer d.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	stopped := make(chan struct{})
	srv, err := ipc.NewServer(ctx, cfg.SocketPath, d, logging.NewNop(), func() { close(stopped) })
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	defer srv.Close()
	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC: %v", err)
	}
	if !resp.Stopping {
		t.Fatal("expected Stopping=true")
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop callback never invoked")
	}
}
