package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/task"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DownloadDir = t.TempDir()
	cfg.DataDir = t.TempDir()
	cfg.LogDir = t.TempDir()
	cfg.SocketPath = filepath.Join(t.TempDir(), "zincd.sock")
	return cfg
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(testConfig(t), logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func waitTerminal(t *testing.T, d *Daemon, id string) task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := d.GetTask(id); ok && snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	snap, _ := d.GetTask(id)
	t.Fatalf("task %s never reached a terminal state, last status %q", id, snap.Status)
	return task.Task{}
}

func TestStartStopTogglesRunning(t *testing.T) {
	d := newTestDaemon(t)
	if d.Status().Running {
		t.Fatal("fresh daemon reports running")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("started daemon reports stopped")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail")
	}
	d.Stop()
	if d.Status().Running {
		t.Fatal("stopped daemon reports running")
	}
}

func TestLockBlocksSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	first, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer first.Close()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	defer second.Close()
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("second instance acquired the lock")
	}
}

func TestSubmitRequiresRunningDaemon(t *testing.T) {
	d := newTestDaemon(t)
	_, err := d.Submit(SubmitRequest{Kind: task.KindRemoteFetch, Source: "https://example.com/v"})
	if err == nil {
		t.Fatal("submission accepted before Start")
	}
}

func TestSubmitValidation(t *testing.T) {
	d := newTestDaemon(t)
	d.runPipeline = func(context.Context, string) {}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cases := []SubmitRequest{
		{Kind: task.KindRemoteFetch, Source: ""},
		{Kind: task.KindRemoteFetch, Source: "ftp://example.com/v"},
		{Kind: task.KindLocalTranscribe, Source: "/does/not/exist.mp4"},
		{Kind: task.Kind("bogus"), Source: "x"},
	}
	for _, req := range cases {
		if _, err := d.Submit(req); err == nil {
			t.Errorf("request %+v accepted", req)
		}
	}
}

func TestSubmitAppliesConfiguredDefaults(t *testing.T) {
	d := newTestDaemon(t)
	d.runPipeline = func(ctx context.Context, id string) {
		d.tasks.Finish(id, task.StatusCompleted, nil)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mediaPath := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(mediaPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	snap, err := d.Submit(SubmitRequest{Kind: task.KindLocalTranscribe, Source: mediaPath})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if snap.EngineID != d.cfg.Subtitles.DefaultEngine || snap.ModelID != d.cfg.Subtitles.DefaultModel {
		t.Errorf("defaults not applied: engine=%q model=%q", snap.EngineID, snap.ModelID)
	}
	if snap.Style != d.cfg.Subtitles.DefaultStyle {
		t.Errorf("style = %q", snap.Style)
	}
	if !snap.Subtitles {
		t.Error("local transcription must imply subtitles")
	}
	waitTerminal(t, d, snap.ID)
}

func TestSubmitJournalsTerminalTask(t *testing.T) {
	d := newTestDaemon(t)
	d.runPipeline = func(ctx context.Context, id string) {
		d.tasks.Finish(id, task.StatusError, func(tk *task.Task) {
			tk.ErrorMessage = "boom"
		})
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap, err := d.Submit(SubmitRequest{Kind: task.KindRemoteFetch, Source: "https://example.com/v"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	final := waitTerminal(t, d, snap.ID)
	if final.Status != task.StatusError {
		t.Fatalf("status = %q", final.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := d.History(context.Background(), 10)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(entries) == 1 {
			if entries[0].TaskID != snap.ID || entries[0].ErrorMessage != "boom" {
				t.Fatalf("journal entry mismatch: %+v", entries[0])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("terminal task never journaled")
}

func TestWorkerPoolHonorsMaxActive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.MaxActiveTasks = 1
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	release := make(chan struct{})
	started := make(chan string, 4)
	d.runPipeline = func(ctx context.Context, id string) {
		started <- id
		select {
		case <-release:
		case <-ctx.Done():
		}
		d.tasks.Finish(id, task.StatusCompleted, nil)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, _ := d.Submit(SubmitRequest{Kind: task.KindRemoteFetch, Source: "https://example.com/a"})
	second, _ := d.Submit(SubmitRequest{Kind: task.KindRemoteFetch, Source: "https://example.com/b"})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first pipeline never started")
	}
	select {
	case id := <-started:
		t.Fatalf("second pipeline %s started while the slot was held", id)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	waitTerminal(t, d, first.ID)
	waitTerminal(t, d, second.ID)
}

func TestCancelAndClear(t *testing.T) {
	d := newTestDaemon(t)
	d.runPipeline = func(ctx context.Context, id string) {
		handle, _ := d.tasks.Handle(id)
		if handle.Cancelled() {
			d.tasks.Finish(id, task.StatusCancelled, nil)
			return
		}
		d.tasks.Finish(id, task.StatusCompleted, nil)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap, _ := d.Submit(SubmitRequest{Kind: task.KindRemoteFetch, Source: "https://example.com/v"})
	waitTerminal(t, d, snap.ID)

	if err := d.CancelTask("missing"); err == nil {
		t.Error("cancel of unknown task must fail")
	}
	if removed := d.ClearTasks(false); removed != 1 {
		t.Errorf("ClearTasks removed %d", removed)
	}
	if len(d.ListTasks()) != 0 {
		t.Error("registry not empty after clear")
	}
}

func TestStatusReportsPaths(t *testing.T) {
	d := newTestDaemon(t)
	status := d.Status()
	if status.LockPath == "" || status.HistoryDBPath == "" || status.SocketPath == "" {
		t.Fatalf("status missing paths: %+v", status)
	}
	if status.MaxActive < 1 {
		t.Fatalf("max active = %d", status.MaxActive)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("dependency report empty")
	}
}

func TestConcurrentSubmitAndStop(t *testing.T) {
	d := newTestDaemon(t)
	d.runPipeline = func(ctx context.Context, id string) {
		d.tasks.Finish(id, task.StatusCompleted, nil)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				// Errors are expected once Stop lands; the point is that
				// submission never races the shutdown wait.
				_, _ = d.Submit(SubmitRequest{
					Kind:   task.KindRemoteFetch,
					Source: "https://example.com/v",
				})
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	d.Stop()
	wg.Wait()

	if _, err := d.Submit(SubmitRequest{
		Kind:   task.KindRemoteFetch,
		Source: "https://example.com/v",
	}); err == nil {
		t.Fatal("submission accepted after Stop")
	}
	for _, snap := range d.ListTasks() {
		if !snap.Status.IsTerminal() {
			t.Fatalf("task %s left non-terminal after Stop: %q", snap.ID, snap.Status)
		}
	}
}
