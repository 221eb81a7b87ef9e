package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/olivier-w/zinc/internal/config"
	"github.com/olivier-w/zinc/internal/engine"
	"github.com/olivier-w/zinc/internal/fetch"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/media/ffmpeg"
	"github.com/olivier-w/zinc/internal/services"
	"github.com/olivier-w/zinc/internal/task"
	"github.com/olivier-w/zinc/internal/textutil"
)

// Pipeline executes tasks from the registry. One Run per task; task ids are
// fresh per submission so two pipelines never race on the same task.
type Pipeline struct {
	cfg     *config.Config
	media   *ffmpeg.Service
	engines *engine.Registry
	fetcher *fetch.Service
	tasks   *task.Registry
	logger  *slog.Logger

	// tempDir overrides the scratch location in tests.
	tempDir string
}

// New wires a pipeline over the shared services.
func New(cfg *config.Config, media *ffmpeg.Service, engines *engine.Registry, fetcher *fetch.Service, tasks *task.Registry, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		media:   media,
		engines: engines,
		fetcher: fetcher,
		tasks:   tasks,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run executes the task to its terminal state. The cancellation handle is
// released on every exit path.
func (p *Pipeline) Run(parent context.Context, id string) {
	snapshot, ok := p.tasks.Get(id)
	if !ok {
		p.logger.Warn("run requested for unknown task", logging.String("task_id", id))
		return
	}
	handle, _ := p.tasks.Handle(id)
	defer p.tasks.ReleaseHandle(id)

	ctx, stop := handle.Bind(parent)
	defer stop()
	ctx = services.WithTaskID(ctx, id)

	switch snapshot.Kind {
	case task.KindRemoteFetch:
		p.runRemoteFetch(ctx, snapshot)
	case task.KindLocalTranscribe:
		p.runLocalTranscribe(ctx, snapshot)
	default:
		p.tasks.Finish(id, task.StatusError, func(t *task.Task) {
			t.ErrorMessage = fmt.Sprintf("unknown task kind %q", snapshot.Kind)
		})
	}
}

func (p *Pipeline) runRemoteFetch(ctx context.Context, snapshot task.Task) {
	id := snapshot.ID
	p.tasks.Update(id, func(t *task.Task) {
		t.Status = task.StatusDownloading
		t.ProgressMessage = "Starting download..."
	})

	mediaPath, err := p.fetcher.Download(ctx, snapshot.Source, fetch.Options{
		Format:    snapshot.Format,
		Container: snapshot.Container,
		OutputDir: p.cfg.DownloadDir,
	}, func(prog fetch.Progress) {
		p.tasks.Update(id, func(t *task.Task) {
			t.ProgressPercent = prog.Percent
			t.Speed = prog.Speed
			t.ETA = prog.ETA
			t.ProgressMessage = fmt.Sprintf("Downloading %s", prog.TotalSize)
		})
	})
	if err != nil {
		p.finishWithError(id, err)
		return
	}

	title := textutil.DeriveTitle(mediaPath)
	p.tasks.Update(id, func(t *task.Task) {
		t.OutputPath = mediaPath
		t.Title = title
		t.ProgressPercent = 100
		t.Speed = ""
		t.ETA = ""
		t.ProgressMessage = "Download complete"
	})

	if !snapshot.Subtitles {
		p.tasks.Finish(id, task.StatusCompleted, nil)
		return
	}

	// Fetch succeeded; a captioning failure is recorded as a warning rather
	// than failing the delivered media.
	if err := p.transcribeMedia(ctx, id, mediaPath, snapshot); err != nil {
		if services.IsCancelled(err) {
			p.tasks.Finish(id, task.StatusCancelled, nil)
			return
		}
		p.logger.Warn("transcription failed after successful fetch",
			logging.String("task_id", id), logging.Error(err))
		p.tasks.Finish(id, task.StatusCompleted, func(t *task.Task) {
			t.Warning = "Subtitle generation failed: " + err.Error()
		})
		return
	}
	p.tasks.Finish(id, task.StatusCompleted, nil)
}

func (p *Pipeline) runLocalTranscribe(ctx context.Context, snapshot task.Task) {
	id := snapshot.ID
	if _, err := os.Stat(snapshot.Source); err != nil {
		p.finishWithError(id, services.Wrap(services.ErrNotFound, "transcribing", "input",
			"media file not found: "+snapshot.Source, err))
		return
	}
	p.tasks.Update(id, func(t *task.Task) {
		t.Title = textutil.DeriveTitle(snapshot.Source)
		t.OutputPath = snapshot.Source
	})
	if err := p.transcribeMedia(ctx, id, snapshot.Source, snapshot); err != nil {
		p.finishWithError(id, err)
		return
	}
	p.tasks.Finish(id, task.StatusCompleted, nil)
}

func (p *Pipeline) finishWithError(id string, err error) {
	if services.IsCancelled(err) {
		p.tasks.Finish(id, task.StatusCancelled, nil)
		return
	}
	p.tasks.Finish(id, task.StatusError, func(t *task.Task) {
		t.ErrorMessage = err.Error()
	})
}

// transcribeMedia runs extract, inference, mux, and swap for one media file.
// Temporary artifacts are removed on every exit path.
func (p *Pipeline) transcribeMedia(ctx context.Context, id, mediaPath string, snapshot task.Task) error {
	if err := p.media.CheckInstalled(); err != nil {
		return err
	}
	eng, err := p.engines.Resolve(snapshot.EngineID)
	if err != nil {
		return err
	}
	if err := checkpoint(ctx, "transcribing"); err != nil {
		return err
	}

	// The scratch directory lives next to the media file so the final
	// promotion rename never crosses a filesystem boundary.
	scratch := p.tempDir
	if scratch == "" {
		scratch = filepath.Dir(mediaPath)
	}
	workdir, err := os.MkdirTemp(scratch, ".zinc-transcribe-")
	if err != nil {
		return services.Wrap(services.ErrIO, "transcribing", "workdir", "create scratch directory", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(workdir); rmErr != nil {
			p.logger.Warn("scratch cleanup failed", logging.Error(rmErr))
		}
	}()

	p.tasks.ForwardProgress(id, task.ProgressEvent{
		Stage: task.PhaseExtracting, Percent: 0, Message: "Extracting audio...",
	})
	audioPath := filepath.Join(workdir, "audio.wav")
	if err := p.media.ExtractAudio(ctx, mediaPath, audioPath); err != nil {
		return err
	}

	p.publishEstimate(ctx, id, eng, snapshot.ModelID, audioPath)

	if err := checkpoint(ctx, "transcribing"); err != nil {
		return err
	}
	captionPath, err := eng.Transcribe(ctx, engine.TranscribeRequest{
		AudioPath: audioPath,
		ModelID:   snapshot.ModelID,
		Language:  snapshot.Language,
		Style:     snapshot.Style,
		Progress: func(prog engine.Progress) {
			p.tasks.ForwardProgress(id, task.ProgressEvent{
				Stage:   prog.Stage,
				Percent: prog.Percent,
				Message: prog.Message,
			})
		},
	})
	if err != nil {
		return err
	}
	defer os.Remove(captionPath)

	if err := checkpoint(ctx, "embedding"); err != nil {
		return err
	}
	p.tasks.ForwardProgress(id, task.ProgressEvent{
		Stage: task.PhaseEmbedding, Percent: 90, Message: "Embedding captions...",
	})
	muxedPath := filepath.Join(workdir, "muxed"+filepath.Ext(mediaPath))
	if err := p.media.EmbedCaptions(ctx, ffmpeg.EmbedRequest{
		MediaPath:   mediaPath,
		CaptionPath: captionPath,
		OutputPath:  muxedPath,
		Language:    languageTag(snapshot.Language),
	}); err != nil {
		return err
	}

	p.tasks.ForwardProgress(id, task.ProgressEvent{
		Stage: task.PhaseFinalizing, Percent: 95, Message: "Finalizing file...",
	})
	if err := swapInPlace(mediaPath, muxedPath); err != nil {
		return err
	}

	p.tasks.Update(id, func(t *task.Task) {
		t.CaptionPath = mediaPath
		t.ProgressPercent = 100
		t.ProgressMessage = "Transcription complete"
	})
	return nil
}

// publishEstimate surfaces a duration/speed ETA for the transcription. Best
// effort only; a missing speed table entry leaves the estimate at zero.
func (p *Pipeline) publishEstimate(ctx context.Context, id string, eng engine.Engine, modelID, audioPath string) {
	duration := p.media.ProbeDuration(ctx, audioPath)
	gpuSpeed, cpuSpeed := eng.SpeedMultiplier(modelID)
	speed := cpuSpeed
	if eng.GPUAvailable(ctx) {
		speed = gpuSpeed
	}
	if speed <= 0 {
		return
	}
	p.tasks.Update(id, func(t *task.Task) {
		t.EstimatedSeconds = duration / speed
	})
}

// swapInPlace replaces original with muxed atomically: the original is moved
// aside as a backup, the muxed file takes its place, then the backup is
// dropped. On a failed promotion the backup is restored.
func swapInPlace(original, muxed string) error {
	ext := filepath.Ext(original)
	backup := strings.TrimSuffix(original, ext) + "_original" + ext

	if err := os.Rename(original, backup); err != nil {
		return services.Wrap(services.ErrIO, "finalizing", "swap", "move original aside", err)
	}
	if err := promoteFile(muxed, original); err != nil {
		if restoreErr := os.Rename(backup, original); restoreErr != nil {
			return services.Wrap(services.ErrIO, "finalizing", "swap",
				"promote muxed file failed and backup restore failed", errors.Join(err, restoreErr))
		}
		return services.Wrap(services.ErrIO, "finalizing", "swap", "promote muxed file", err)
	}
	if err := os.Remove(backup); err != nil {
		return services.Wrap(services.ErrIO, "finalizing", "swap", "remove backup", err)
	}
	return nil
}

// promoteFile renames src over dst, falling back to copy+remove when the two
// paths sit on different filesystems.
func promoteFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if copyErr := copyFile(src, dst); copyErr != nil {
		return copyErr
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// checkpoint converts an observed cancellation into the cancelled outcome
// before the next stage starts.
func checkpoint(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCancelled, stage, "pipeline", "task cancelled", err)
	}
	return nil
}

func languageTag(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "auto", "en":
		return "eng"
	default:
		return language
	}
}
