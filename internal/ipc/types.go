package ipc

import (
	"time"

	"github.com/olivier-w/zinc/internal/engine"
	"github.com/olivier-w/zinc/internal/history"
	"github.com/olivier-w/zinc/internal/task"
)

// TaskInfo is the task snapshot DTO carried over IPC.
type TaskInfo struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Status           string    `json:"status"`
	Source           string    `json:"source"`
	Title            string    `json:"title"`
	EngineID         string    `json:"engine_id"`
	ModelID          string    `json:"model_id"`
	Language         string    `json:"language"`
	Style            string    `json:"style"`
	ProgressPercent  float64   `json:"progress_percent"`
	ProgressMessage  string    `json:"progress_message"`
	Speed            string    `json:"speed"`
	ETA              string    `json:"eta"`
	EstimatedSeconds float64   `json:"estimated_seconds"`
	OutputPath       string    `json:"output_path"`
	ErrorMessage     string    `json:"error_message"`
	Warning          string    `json:"warning"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FromTask converts a registry snapshot into the wire DTO.
func FromTask(t task.Task) TaskInfo {
	return TaskInfo{
		ID:               t.ID,
		Kind:             string(t.Kind),
		Status:           string(t.Status),
		Source:           t.Source,
		Title:            t.Title,
		EngineID:         t.EngineID,
		ModelID:          t.ModelID,
		Language:         t.Language,
		Style:            t.Style,
		ProgressPercent:  t.ProgressPercent,
		ProgressMessage:  t.ProgressMessage,
		Speed:            t.Speed,
		ETA:              t.ETA,
		EstimatedSeconds: t.EstimatedSeconds,
		OutputPath:       t.OutputPath,
		ErrorMessage:     t.ErrorMessage,
		Warning:          t.Warning,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// SubmitRequest creates a new task.
type SubmitRequest struct {
	Kind      string `json:"kind"`
	Source    string `json:"source"`
	EngineID  string `json:"engine_id"`
	ModelID   string `json:"model_id"`
	Language  string `json:"language"`
	Style     string `json:"style"`
	Format    string `json:"format"`
	Container string `json:"container"`
	Subtitles bool   `json:"subtitles"`
}

// SubmitResponse returns the created task.
type SubmitResponse struct {
	Task TaskInfo `json:"task"`
}

// TaskListRequest lists tasks.
type TaskListRequest struct{}

// TaskListResponse contains task snapshots in creation order.
type TaskListResponse struct {
	Tasks []TaskInfo `json:"tasks"`
}

// TaskDescribeRequest fetches a single task by id.
type TaskDescribeRequest struct {
	ID string `json:"id"`
}

// TaskDescribeResponse contains a single task snapshot.
type TaskDescribeResponse struct {
	Task TaskInfo `json:"task"`
}

// TaskCancelRequest requests cooperative cancellation.
type TaskCancelRequest struct {
	ID string `json:"id"`
}

// TaskCancelResponse acknowledges the cancellation request.
type TaskCancelResponse struct {
	Requested bool `json:"requested"`
}

// TaskClearRequest removes finished tasks; All additionally removes anything
// without a live pipeline.
type TaskClearRequest struct {
	All bool `json:"all"`
}

// TaskClearResponse reports the number of removed tasks.
type TaskClearResponse struct {
	Removed int `json:"removed"`
}

// EngineModel mirrors engine.ModelInfo for the wire.
type EngineModel struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	SizeLabel string  `json:"size_label"`
	Installed bool    `json:"installed"`
	GPUSpeed  float64 `json:"gpu_speed"`
	CPUSpeed  float64 `json:"cpu_speed"`
}

// EngineInfo mirrors engine.Descriptor for the wire.
type EngineInfo struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	GPURequired  bool          `json:"gpu_required"`
	GPUAvailable bool          `json:"gpu_available"`
	Languages    []string      `json:"languages"`
	Models       []EngineModel `json:"models"`
}

// FromDescriptor converts an engine descriptor into the wire DTO.
func FromDescriptor(d engine.Descriptor) EngineInfo {
	info := EngineInfo{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		GPURequired:  d.GPURequired,
		GPUAvailable: d.GPUAvailable,
		Languages:    append([]string(nil), d.Languages...),
	}
	for _, m := range d.Models {
		info.Models = append(info.Models, EngineModel{
			ID:        m.ID,
			Name:      m.Name,
			SizeLabel: m.SizeLabel,
			Installed: m.Installed,
			GPUSpeed:  m.GPUSpeed,
			CPUSpeed:  m.CPUSpeed,
		})
	}
	return info
}

// EnginesRequest lists engines.
type EnginesRequest struct{}

// EnginesResponse contains engine descriptors.
type EnginesResponse struct {
	Engines []EngineInfo `json:"engines"`
}

// EngineInstallRequest stages an engine runtime.
type EngineInstallRequest struct {
	EngineID string `json:"engine_id"`
}

// EngineInstallResponse acknowledges the install.
type EngineInstallResponse struct {
	Installed bool `json:"installed"`
}

// ModelDownloadRequest fetches a model.
type ModelDownloadRequest struct {
	EngineID string `json:"engine_id"`
	ModelID  string `json:"model_id"`
}

// ModelDownloadResponse acknowledges the download.
type ModelDownloadResponse struct {
	Downloaded bool `json:"downloaded"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// DependencyStatus describes availability of an external binary.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail"`
}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	StartedAt     time.Time          `json:"started_at"`
	SocketPath    string             `json:"socket_path"`
	LockPath      string             `json:"lock_path"`
	HistoryDBPath string             `json:"history_db_path"`
	ActiveTasks   int                `json:"active_tasks"`
	TotalTasks    int                `json:"total_tasks"`
	MaxActive     int                `json:"max_active"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse acknowledges the shutdown request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// HistoryEntry is the journal DTO.
type HistoryEntry struct {
	ID           int64     `json:"id"`
	TaskID       string    `json:"task_id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	Title        string    `json:"title"`
	Source       string    `json:"source"`
	OutputPath   string    `json:"output_path"`
	EngineID     string    `json:"engine_id"`
	ModelID      string    `json:"model_id"`
	ErrorMessage string    `json:"error_message"`
	Warning      string    `json:"warning"`
	CreatedAt    time.Time `json:"created_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// FromHistoryEntry converts a journal row into the wire DTO.
func FromHistoryEntry(e history.Entry) HistoryEntry {
	return HistoryEntry{
		ID:           e.ID,
		TaskID:       e.TaskID,
		Kind:         string(e.Kind),
		Status:       string(e.Status),
		Title:        e.Title,
		Source:       e.Source,
		OutputPath:   e.OutputPath,
		EngineID:     e.EngineID,
		ModelID:      e.ModelID,
		ErrorMessage: e.ErrorMessage,
		Warning:      e.Warning,
		CreatedAt:    e.CreatedAt,
		FinishedAt:   e.FinishedAt,
	}
}

// HistoryRequest fetches recent journal entries.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains journal entries, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// HistoryClearRequest empties the journal.
type HistoryClearRequest struct{}

// HistoryClearResponse reports the number of removed entries.
type HistoryClearResponse struct {
	Removed int64 `json:"removed"`
}
