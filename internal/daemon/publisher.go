package daemon

import (
	"log/slog"

	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/task"
)

// logPublisher surfaces task snapshots and raw engine events in the daemon
// log. The CLI observes state by polling over IPC, so the log is the only
// push-style consumer.
type logPublisher struct {
	logger *slog.Logger
}

func newLogPublisher(logger *slog.Logger) *logPublisher {
	return &logPublisher{logger: logging.NewComponentLogger(logger, "tasks")}
}

func (p *logPublisher) PublishTask(snapshot task.Task) {
	p.logger.Debug("task state",
		logging.String(logging.FieldTaskID, snapshot.ID),
		logging.String("status", string(snapshot.Status)),
		logging.Float64("percent", snapshot.ProgressPercent),
		logging.String("message", snapshot.ProgressMessage))
}

func (p *logPublisher) PublishProgress(taskID string, event task.ProgressEvent) {
	p.logger.Debug("task progress",
		logging.String(logging.FieldTaskID, taskID),
		logging.String(logging.FieldStage, event.Stage),
		logging.Float64("percent", event.Percent))
}
