package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"github.com/olivier-w/zinc/internal/daemon"
	"github.com/olivier-w/zinc/internal/logging"
	"github.com/olivier-w/zinc/internal/task"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. onStop is
// invoked when a client requests daemon shutdown; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, onStop func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx, onStop: onStop}
	if err := rpcServer.RegisterName("Zinc", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path), logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	onStop func()
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	kind := task.Kind(strings.TrimSpace(req.Kind))
	snapshot, err := s.daemon.Submit(daemon.SubmitRequest{
		Kind:      kind,
		Source:    req.Source,
		EngineID:  req.EngineID,
		ModelID:   req.ModelID,
		Language:  req.Language,
		Style:     req.Style,
		Format:    req.Format,
		Container: req.Container,
		Subtitles: req.Subtitles,
	})
	if err != nil {
		return err
	}
	resp.Task = FromTask(snapshot)
	s.logger.Info("task submitted via IPC",
		logging.String(logging.FieldTaskID, snapshot.ID),
		logging.String("kind", string(snapshot.Kind)))
	return nil
}

func (s *service) TaskList(_ TaskListRequest, resp *TaskListResponse) error {
	snapshots := s.daemon.ListTasks()
	resp.Tasks = make([]TaskInfo, 0, len(snapshots))
	for _, snapshot := range snapshots {
		resp.Tasks = append(resp.Tasks, FromTask(snapshot))
	}
	return nil
}

func (s *service) TaskDescribe(req TaskDescribeRequest, resp *TaskDescribeResponse) error {
	snapshot, ok := s.daemon.GetTask(strings.TrimSpace(req.ID))
	if !ok {
		return fmt.Errorf("task %s not found", req.ID)
	}
	resp.Task = FromTask(snapshot)
	return nil
}

func (s *service) TaskCancel(req TaskCancelRequest, resp *TaskCancelResponse) error {
	if err := s.daemon.CancelTask(strings.TrimSpace(req.ID)); err != nil {
		return err
	}
	resp.Requested = true
	s.logger.Info("task cancellation requested",
		logging.String(logging.FieldTaskID, req.ID))
	return nil
}

func (s *service) TaskClear(req TaskClearRequest, resp *TaskClearResponse) error {
	resp.Removed = s.daemon.ClearTasks(req.All)
	return nil
}

func (s *service) Engines(_ EnginesRequest, resp *EnginesResponse) error {
	descriptors := s.daemon.EngineDescriptors(s.ctx)
	resp.Engines = make([]EngineInfo, 0, len(descriptors))
	for _, d := range descriptors {
		resp.Engines = append(resp.Engines, FromDescriptor(d))
	}
	return nil
}

func (s *service) EngineInstall(req EngineInstallRequest, resp *EngineInstallResponse) error {
	if err := s.daemon.InstallEngine(s.ctx, strings.TrimSpace(req.EngineID)); err != nil {
		return err
	}
	resp.Installed = true
	return nil
}

func (s *service) ModelDownload(req ModelDownloadRequest, resp *ModelDownloadResponse) error {
	if err := s.daemon.DownloadModel(s.ctx, strings.TrimSpace(req.EngineID), strings.TrimSpace(req.ModelID)); err != nil {
		return err
	}
	resp.Downloaded = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.SocketPath = status.SocketPath
	resp.LockPath = status.LockPath
	resp.HistoryDBPath = status.HistoryDBPath
	resp.ActiveTasks = status.ActiveTasks
	resp.TotalTasks = status.TotalTasks
	resp.MaxActive = status.MaxActive
	resp.Dependencies = make([]DependencyStatus, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		resp.Dependencies = append(resp.Dependencies, DependencyStatus{
			Name:      dep.Name,
			Command:   dep.Command,
			Optional:  dep.Optional,
			Available: dep.Available,
			Detail:    dep.Detail,
		})
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC")
	resp.Stopping = true
	if s.onStop != nil {
		go s.onStop()
	}
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	entries, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, FromHistoryEntry(entry))
	}
	return nil
}

func (s *service) HistoryClear(_ HistoryClearRequest, resp *HistoryClearResponse) error {
	removed, err := s.daemon.ClearHistory(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}
