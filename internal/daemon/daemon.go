package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/deps"
	"github.com/olivier-w/zinc/internal/engine"
	"github.com/olivier-w/zinc/internal/engine/moonshine"
	"github.com/olivier-w/zinc/internal/engine/parakeet"
	"github.com/olivier-w/zinc/internal/engine/whisper"
	"github.com/olivier-w/zinc/internal/fetch"
	"github.com/olivier-w/zinc/internal/history"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/media/ffmpeg"
	"github.com/olivier-w/zinc/internal/pipeline"
	"github.com/olivier-w/zinc/internal/task"
)

// DaemonStopReason is the error message set on tasks abandoned by shutdown.
const DaemonStopReason = "Daemon stopped"

// SubmitRequest describes one task submission. Empty engine, model, style,
// format, and container fields fall back to the configured defaults.
type SubmitRequest struct {
	Kind      task.Kind
	Source    string
	EngineID  string
	ModelID   string
	Language  string
	Style     string
	Format    string
	Container string
	Subtitles bool
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	SocketPath    string
	LockPath      string
	HistoryDBPath string
	ActiveTasks   int
	TotalTasks    int
	MaxActive     int
	Dependencies  []deps.Status
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	tasks   *task.Registry
	engines *engine.Registry
	media   *ffmpeg.Service
	fetcher *fetch.Service
	store   *history.Store

	lockPath string
	lock     *flock.Flock
	slots    chan struct{}

	// runPipeline is injectable for tests.
	runPipeline func(ctx context.Context, id string)

	// mu guards lifecycle transitions so a Submit's running check and
	// wg.Add pair atomically against Stop's wg.Wait.
	mu        sync.Mutex
	running   atomic.Bool
	active    atomic.Int64
	startedAt time.Time
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	media := ffmpeg.NewService(cfg, logger)
	fetcher := fetch.NewService(cfg, logger)
	engines := engine.NewRegistry(
		whisper.New(cfg, media, logger),
		moonshine.New(cfg, media, logger),
		parakeet.New(cfg, media, logger),
	)
	tasks := task.NewRegistry(newLogPublisher(logger))
	pipe := pipeline.New(cfg, media, engines, fetcher, tasks, logger)

	maxActive := cfg.Workflow.MaxActiveTasks
	if maxActive < 1 {
		maxActive = 1
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		tasks:       tasks,
		engines:     engines,
		media:       media,
		fetcher:     fetcher,
		store:       store,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
		slots:       make(chan struct{}, maxActive),
		runPipeline: pipe.Run,
	}, nil
}

// Start acquires the daemon lock and begins accepting submissions.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another zinc daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("zinc daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels running pipelines, waits for them to exit, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	// Flip running before waiting so no further Submit can wg.Add; d.ctx
	// stays set for workers that already captured it.
	d.running.Store(false)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()

	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("zinc daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit validates the request, creates the task, and schedules its pipeline.
func (d *Daemon) Submit(req SubmitRequest) (task.Task, error) {
	t, err := d.buildTask(req)
	if err != nil {
		return task.Task{}, err
	}

	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return task.Task{}, errors.New("daemon is not running")
	}
	snapshot, _, err := d.tasks.Create(t)
	if err != nil {
		d.mu.Unlock()
		return task.Task{}, err
	}
	ctx := d.ctx
	d.wg.Add(1)
	d.mu.Unlock()

	go d.runWorker(ctx, snapshot.ID)

	d.logger.Info("task submitted",
		logging.String(logging.FieldTaskID, snapshot.ID),
		logging.String("kind", string(snapshot.Kind)),
		logging.String("source", snapshot.Source))
	return snapshot, nil
}

func (d *Daemon) buildTask(req SubmitRequest) (task.Task, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return task.Task{}, errors.New("source is required")
	}

	t := task.Task{
		Kind:      req.Kind,
		Source:    source,
		EngineID:  valueOr(req.EngineID, d.cfg.Subtitles.DefaultEngine),
		ModelID:   valueOr(req.ModelID, d.cfg.Subtitles.DefaultModel),
		Language:  valueOr(req.Language, d.cfg.Subtitles.Language),
		Style:     valueOr(req.Style, d.cfg.Subtitles.DefaultStyle),
		Format:    valueOr(req.Format, d.cfg.Fetch.DefaultFormat),
		Container: valueOr(req.Container, d.cfg.Fetch.DefaultContainer),
		Subtitles: req.Subtitles,
	}

	switch req.Kind {
	case task.KindRemoteFetch:
		parsed, err := url.Parse(source)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return task.Task{}, fmt.Errorf("source %q is not an http(s) URL", source)
		}
	case task.KindLocalTranscribe:
		abs, err := filepath.Abs(source)
		if err != nil {
			return task.Task{}, fmt.Errorf("resolve source path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return task.Task{}, fmt.Errorf("stat source file: %w", err)
		}
		if info.IsDir() {
			return task.Task{}, fmt.Errorf("source path %q is a directory", abs)
		}
		t.Source = abs
		t.Subtitles = true
	default:
		return task.Task{}, fmt.Errorf("unknown task kind %q", req.Kind)
	}
	return t, nil
}

func (d *Daemon) runWorker(ctx context.Context, id string) {
	defer d.wg.Done()

	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		d.tasks.Finish(id, task.StatusError, func(t *task.Task) {
			t.ErrorMessage = DaemonStopReason
		})
		d.journal(id)
		return
	}
	defer func() { <-d.slots }()

	d.active.Add(1)
	defer d.active.Add(-1)

	d.runPipeline(ctx, id)
	d.journal(id)
}

// journal records the task's terminal snapshot in the history store.
func (d *Daemon) journal(id string) {
	snapshot, ok := d.tasks.Get(id)
	if !ok || !snapshot.Status.IsTerminal() {
		return
	}
	if err := d.store.Record(context.Background(), snapshot); err != nil {
		d.logger.Warn("failed to journal finished task",
			logging.String(logging.FieldTaskID, id), logging.Error(err))
	}
}

// ListTasks returns task snapshots in creation order.
func (d *Daemon) ListTasks() []task.Task {
	return d.tasks.List()
}

// GetTask returns a single task snapshot.
func (d *Daemon) GetTask(id string) (task.Task, bool) {
	return d.tasks.Get(id)
}

// CancelTask requests cooperative cancellation of a task.
func (d *Daemon) CancelTask(id string) error {
	return d.tasks.RequestCancel(id)
}

// ClearTasks drops terminal tasks, or with all set everything without a live
// pipeline. Returns the number removed.
func (d *Daemon) ClearTasks(all bool) int {
	return d.tasks.Clear(all)
}

// RemoveTask deletes one task from the registry.
func (d *Daemon) RemoveTask(id string) error {
	return d.tasks.Remove(id)
}

// EngineDescriptors reports identity and installation state for every engine.
func (d *Daemon) EngineDescriptors(ctx context.Context) []engine.Descriptor {
	return d.engines.Describe(ctx)
}

// InstallEngine stages the runtime for an engine.
func (d *Daemon) InstallEngine(ctx context.Context, engineID string) error {
	eng, err := d.engines.Resolve(engineID)
	if err != nil {
		return err
	}
	return eng.Install(ctx, d.logProgress(engineID))
}

// DownloadModel fetches a model for an engine.
func (d *Daemon) DownloadModel(ctx context.Context, engineID, modelID string) error {
	eng, err := d.engines.Resolve(engineID)
	if err != nil {
		return err
	}
	return eng.DownloadModel(ctx, modelID, d.logProgress(engineID))
}

// History returns the newest finished-task journal entries.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Entry, error) {
	return d.store.Recent(ctx, limit)
}

// ClearHistory empties the finished-task journal.
func (d *Daemon) ClearHistory(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	requirements := deps.Requirements(d.cfg)
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		SocketPath:    d.cfg.SocketPath,
		LockPath:      d.lockPath,
		HistoryDBPath: d.cfg.HistoryDBPath(),
		ActiveTasks:   int(d.active.Load()),
		TotalTasks:    len(d.tasks.List()),
		MaxActive:     cap(d.slots),
		Dependencies:  deps.CheckBinaries(requirements),
	}
}

func (d *Daemon) logProgress(engineID string) engine.ProgressFunc {
	return func(p engine.Progress) {
		d.logger.Info(p.Message,
			logging.String(logging.FieldEngine, engineID),
			logging.String(logging.FieldStage, p.Stage),
			logging.Float64("percent", p.Percent))
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
