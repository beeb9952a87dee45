package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"cgmanager/internal/api"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
)

// Service is the subset of *api.Service exposed over IPC.
type Service interface {
	Status(ctx context.Context) (api.DaemonStatus, error)
	Channels() []api.Channel
	Media(ctx context.Context, filter media.ListFilter) (*api.MediaListResponse, error)
	RefreshMedia(ctx context.Context) (*api.RefreshResult, error)
	Routes(ctx context.Context) (*api.RouteListResponse, error)
	EnableRoute(ctx context.Context, id string) (*api.Route, error)
	DisableRoute(ctx context.Context, id string) (*api.Route, error)
	Send(ctx context.Context, req api.CommandRequest) (*api.CommandResult, error)
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, svc Service, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("ipc server requires a service")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{svc: svc, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

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
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
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
	go func() {
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

// Close stops the server and removes the socket file. Connected clients are
// served until they hang up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	svc    Service
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.svc.Status(s.ctx)
	if err != nil {
		return err
	}
	*resp = status
	return nil
}

func (s *service) Channels(_ ChannelsRequest, resp *ChannelsResponse) error {
	resp.Channels = s.svc.Channels()
	return nil
}

func (s *service) Media(req MediaRequest, resp *MediaResponse) error {
	list, err := s.svc.Media(s.ctx, media.ListFilter{Type: req.Type, Prefix: req.Prefix})
	if err != nil {
		return err
	}
	*resp = *list
	return nil
}

func (s *service) RefreshMedia(_ RefreshMediaRequest, resp *RefreshMediaResponse) error {
	result, err := s.svc.RefreshMedia(s.ctx)
	if err != nil {
		return err
	}
	*resp = *result
	s.logger.Info("media refreshed via IPC",
		logging.String(logging.FieldEventType, "media_refresh"),
		logging.Int("items", result.Items))
	return nil
}

func (s *service) Routes(_ RoutesRequest, resp *RoutesResponse) error {
	list, err := s.svc.Routes(s.ctx)
	if err != nil {
		return err
	}
	*resp = *list
	return nil
}

func (s *service) RouteToggle(req RouteToggleRequest, resp *RouteToggleResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("route id is required")
	}
	var (
		route *api.Route
		err   error
	)
	if req.Enabled {
		route, err = s.svc.EnableRoute(s.ctx, id)
	} else {
		route, err = s.svc.DisableRoute(s.ctx, id)
	}
	if err != nil {
		return err
	}
	resp.Route = *route
	return nil
}

func (s *service) Send(req SendRequest, resp *SendResponse) error {
	result, err := s.svc.Send(s.ctx, api.CommandRequest{Command: req.Command})
	if err != nil {
		return err
	}
	*resp = *result
	return nil
}
