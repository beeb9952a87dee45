package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/zhangyunhao116/skipmap"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/effects"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
	"cgmanager/internal/routes"
	"cgmanager/internal/services"
)

// Engine reports the AMCP connection state. *amcp.Connection implements it.
type Engine interface {
	Address() string
	Connected() bool
}

// Paths are reported by Status.
type Paths struct {
	Database string
	Lock     string
	Socket   string
	APIBind  string
}

// Options wires a Service.
type Options struct {
	Executor *caspar.Executor
	Engine   Engine
	Media    *media.Store
	Scanner  *media.Scanner
	Routes   *routes.Manager
	Paths    Paths
	Logger   *slog.Logger
}

// Service implements the operations offered over HTTP and IPC.
type Service struct {
	exec     *caspar.Executor
	engine   Engine
	media    *media.Store
	scanner  *media.Scanner
	routes   *routes.Manager
	registry *effects.Registry
	paths    Paths
	logger   *slog.Logger
	started  time.Time

	effects *skipmap.StringMap[caspar.Effect]
}

// NewService builds the service and its effect registry.
func NewService(opts Options) *Service {
	s := &Service{
		exec:    opts.Executor,
		engine:  opts.Engine,
		media:   opts.Media,
		scanner: opts.Scanner,
		routes:  opts.Routes,
		paths:   opts.Paths,
		logger:  logging.NewComponentLogger(opts.Logger, "api"),
		started: time.Now(),
		effects: skipmap.NewString[caspar.Effect](),
	}
	deps := effects.Deps{Effects: s, Logger: opts.Logger}
	if opts.Media != nil {
		deps.Media = opts.Media
	}
	s.registry = effects.NewRegistry(deps)
	if s.exec != nil {
		s.exec.OnEvent(func(ev caspar.Event) {
			if ev.Kind == caspar.EventEffectDisposed && ev.EffectID != "" {
				s.effects.Delete(ev.EffectID)
			}
		})
	}
	return s
}

// Registry returns the effect registry so callers can add kinds.
func (s *Service) Registry() *effects.Registry { return s.registry }

// Effect resolves a live effect created through the service.
func (s *Service) Effect(id string) (caspar.Effect, bool) {
	return s.effects.Load(id)
}

// Status reports daemon, engine and catalogue state.
func (s *Service) Status(ctx context.Context) (DaemonStatus, error) {
	status := DaemonStatus{
		Running:      true,
		PID:          os.Getpid(),
		StartedAt:    formatTime(s.started),
		DatabasePath: s.paths.Database,
		LockFilePath: s.paths.Lock,
		SocketPath:   s.paths.Socket,
		APIBind:      s.paths.APIBind,
		Effects:      s.effects.Len(),
	}
	if s.engine != nil {
		status.Engine = EngineStatus{Address: s.engine.Address(), Connected: s.engine.Connected()}
	}
	if s.exec != nil {
		status.Channels = len(s.exec.Channels())
	}
	if s.media != nil {
		count, err := s.media.Count(ctx)
		if err != nil {
			return status, err
		}
		status.Media.Count = count
	}
	if s.scanner != nil {
		status.Media.LastRefresh = formatTime(s.scanner.Last().At)
	}
	if s.routes != nil {
		list, err := s.routes.List(ctx)
		if err != nil {
			return status, err
		}
		status.Routes = len(list)
	}
	return status, nil
}

// Channels returns the layout of every managed channel.
func (s *Service) Channels() []Channel {
	channels := s.exec.Channels()
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, FromChannel(ch))
	}
	return out
}

// Channel returns the layout of one channel.
func (s *Service) Channel(id int) (*Channel, error) {
	ch, err := s.channel(id)
	if err != nil {
		return nil, err
	}
	dto := FromChannel(ch)
	return &dto, nil
}

func (s *Service) channel(id int) (*caspar.Channel, error) {
	ch, ok := s.exec.Channel(id)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "api", "channel", fmt.Sprintf("channel %d is not managed", id), nil)
	}
	return ch, nil
}

// Effects returns every live effect ordered by channel, then id.
func (s *Service) Effects() []Effect {
	var out []Effect
	s.effects.Range(func(_ string, e caspar.Effect) bool {
		out = append(out, FromEffect(e))
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// GetEffect returns one live effect.
func (s *Service) GetEffect(id string) (*Effect, error) {
	e, err := s.lookupEffect(id)
	if err != nil {
		return nil, err
	}
	dto := FromEffect(e)
	return &dto, nil
}

func (s *Service) lookupEffect(id string) (caspar.Effect, error) {
	e, ok := s.effects.Load(strings.TrimSpace(id))
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "api", "effect", fmt.Sprintf("effect %q not found", id), nil)
	}
	return e, nil
}

// CreateEffect creates an effect in a group of a channel and, unless asked
// not to, activates it. A failed activation disposes the effect.
func (s *Service) CreateEffect(ctx context.Context, channelID int, req CreateEffectRequest) (*Effect, error) {
	ch, err := s.channel(channelID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Group)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "create effect", "group is required", nil)
	}
	group, ok := ch.LookupGroup(name)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "api", "create effect", fmt.Sprintf("channel %d has no group %q", channelID, name), nil)
	}
	e, err := s.registry.Create(req.Type, group, req.Options)
	if err != nil {
		return nil, err
	}
	s.effects.Store(e.ID(), e)

	logger := logging.WithContext(ctx, s.logger).With(
		logging.Channel(channelID),
		logging.EffectID(e.ID()),
		logging.String("effect", e.Name()))
	if req.Activate == nil || *req.Activate {
		if err := e.Activate(ctx); err != nil {
			s.effects.Delete(e.ID())
			if derr := e.Dispose(context.WithoutCancel(ctx)); derr != nil {
				logger.Debug("dispose after failed activation", logging.Error(derr))
			}
			return nil, err
		}
	}
	logger.Info("effect created", logging.String("group", name), logging.Bool("active", e.Active()))
	dto := FromEffect(e)
	return &dto, nil
}

// ActivateEffect activates a live effect.
func (s *Service) ActivateEffect(ctx context.Context, id string) (*Effect, error) {
	e, err := s.lookupEffect(id)
	if err != nil {
		return nil, err
	}
	if err := e.Activate(ctx); err != nil {
		return nil, err
	}
	dto := FromEffect(e)
	return &dto, nil
}

// DeactivateEffect deactivates a live effect. Effects created with
// dispose_on_stop are gone afterwards.
func (s *Service) DeactivateEffect(ctx context.Context, id string) (*Effect, error) {
	e, err := s.lookupEffect(id)
	if err != nil {
		return nil, err
	}
	if err := e.Deactivate(ctx); err != nil {
		return nil, err
	}
	dto := FromEffect(e)
	return &dto, nil
}

// DeleteEffect deactivates and disposes a live effect.
func (s *Service) DeleteEffect(ctx context.Context, id string) error {
	e, err := s.lookupEffect(id)
	if err != nil {
		return err
	}
	if err := e.Dispose(ctx); err != nil {
		return err
	}
	s.effects.Delete(e.ID())
	logging.WithContext(ctx, s.logger).Info("effect deleted", logging.EffectID(e.ID()))
	return nil
}

// UpdateTemplate sends new data to a template effect.
func (s *Service) UpdateTemplate(ctx context.Context, id string, req TemplateUpdateRequest) error {
	t, err := s.template(id)
	if err != nil {
		return err
	}
	return t.Update(ctx, req.Data)
}

// InvokeTemplate calls a method of a template effect.
func (s *Service) InvokeTemplate(ctx context.Context, id string, req TemplateInvokeRequest) error {
	t, err := s.template(id)
	if err != nil {
		return err
	}
	return t.Invoke(ctx, req.Method)
}

func (s *Service) template(id string) (*effects.Template, error) {
	e, err := s.lookupEffect(id)
	if err != nil {
		return nil, err
	}
	t, ok := e.(*effects.Template)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "api", "template", fmt.Sprintf("effect %s is a %s, not a template", id, e.Name()), nil)
	}
	return t, nil
}

// Send transmits a raw command. Failure codes from the engine are returned
// as responses rather than errors.
func (s *Service) Send(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	text := strings.TrimSpace(req.Command)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "api", "send", "command is required", nil)
	}
	responses, err := s.exec.Execute(ctx, &amcp.RawCommand{Text: text})
	if err != nil && !errors.Is(err, services.ErrEngine) {
		return nil, err
	}
	return &CommandResult{Responses: FromResponses(responses)}, nil
}

// Media lists the catalogue.
func (s *Service) Media(ctx context.Context, filter media.ListFilter) (*MediaListResponse, error) {
	if s.media == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "media", "media database unavailable", nil)
	}
	items, err := s.media.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &MediaListResponse{Items: FromMediaItems(items)}, nil
}

// RefreshMedia rescans the engine's media listing.
func (s *Service) RefreshMedia(ctx context.Context) (*RefreshResult, error) {
	if s.scanner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "media refresh", "media scanner unavailable", nil)
	}
	result, err := s.scanner.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	dto := FromRefreshResult(result)
	return &dto, nil
}

// Routes lists stored routes.
func (s *Service) Routes(ctx context.Context) (*RouteListResponse, error) {
	if err := s.requireRoutes(); err != nil {
		return nil, err
	}
	list, err := s.routes.List(ctx)
	if err != nil {
		return nil, err
	}
	out := &RouteListResponse{Routes: make([]Route, 0, len(list))}
	for _, r := range list {
		out.Routes = append(out.Routes, FromRoute(r))
	}
	return out, nil
}

// CreateRoute stores and, when enabled, starts a route.
func (s *Service) CreateRoute(ctx context.Context, req RouteRequest) (*Route, error) {
	if err := s.requireRoutes(); err != nil {
		return nil, err
	}
	r, err := s.routes.Create(ctx, ToRouteSpec(req))
	if err != nil {
		return nil, err
	}
	status, err := s.routes.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	dto := FromRoute(*status)
	return &dto, nil
}

// EnableRoute starts a stored route.
func (s *Service) EnableRoute(ctx context.Context, id string) (*Route, error) {
	if err := s.requireRoutes(); err != nil {
		return nil, err
	}
	status, err := s.routes.Enable(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromRoute(*status)
	return &dto, nil
}

// DisableRoute stops a stored route.
func (s *Service) DisableRoute(ctx context.Context, id string) (*Route, error) {
	if err := s.requireRoutes(); err != nil {
		return nil, err
	}
	status, err := s.routes.Disable(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromRoute(*status)
	return &dto, nil
}

// DeleteRoute stops and removes a route.
func (s *Service) DeleteRoute(ctx context.Context, id string) error {
	if err := s.requireRoutes(); err != nil {
		return err
	}
	return s.routes.Delete(ctx, id)
}

func (s *Service) requireRoutes() error {
	if s.routes == nil {
		return services.Wrap(services.ErrConfiguration, "api", "routes", "route manager unavailable", nil)
	}
	return nil
}
