package ipc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"github.com/Salamek/netkeeper/internal/daemon"
	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/logging"
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

// NewServer configures the IPC server at the given socket path. A leftover
// socket from a dead daemon is replaced; a socket with a live daemon behind
// it is an error.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := replaceStaleSocket(path); err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Netkeeper", srv); err != nil {
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

// replaceStaleSocket removes a socket file nothing is listening on.
func replaceStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat socket: %w", err)
	}
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use by a running daemon", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
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
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	if status.Running && !status.StartedAt.IsZero() {
		resp.UptimeSeconds = int64(time.Since(status.StartedAt).Seconds())
	}
	resp.ConfigPath = status.ConfigPath
	resp.Profile = status.Profile
	resp.JournalPath = status.JournalPath
	resp.SocketPath = status.SocketPath
	resp.LockPath = status.LockPath
	resp.Link = LinkStatus{
		Interface: status.Link.Interface,
		Active:    status.Link.Active,
		Events:    status.Link.Events,
	}
	resp.Dependencies = make([]DependencyStatus, 0, len(status.Dependencies))
	for _, dep := range status.Dependencies {
		resp.Dependencies = append(resp.Dependencies, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	resp.LatestTick = status.LatestTick
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	ticks, incidents, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Ticks = make([]TickSummary, 0, len(ticks))
	for _, tick := range ticks {
		resp.Ticks = append(resp.Ticks, convertTick(tick))
	}
	resp.Incidents = make([]IncidentSummary, 0, len(incidents))
	for _, incident := range incidents {
		resp.Incidents = append(resp.Incidents, convertIncident(incident))
	}
	return nil
}

func convertTick(rec journal.TickRecord) TickSummary {
	return TickSummary{
		Seq:       rec.Seq,
		StartedAt: rec.StartedAt,
		ElapsedMS: rec.Elapsed.Milliseconds(),
		FailPct:   rec.FailPct,
		Breached:  rec.Breached,
		Results:   rec.Results,
	}
}

func convertIncident(rec journal.IncidentRecord) IncidentSummary {
	return IncidentSummary{
		ID:              rec.ID,
		TickSeq:         rec.TickSeq,
		CreatedAt:       rec.CreatedAt,
		RebootRequested: rec.RebootRequested,
		RebootSkipped:   rec.RebootSkipped,
		ModemAlive:      rec.ModemAlive,
		WaitElapsedMS:   rec.WaitElapsed.Milliseconds(),
		Services:        rec.Services,
		Err:             rec.Err,
	}
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	if err != nil {
		s.log().Warn("test notification failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notify_test_failed"),
			logging.String(logging.FieldErrorHint, "check ntfy topic and network reachability"),
			logging.String(logging.FieldImpact, "push notifications may not be delivered"))
	}
	return err
}
