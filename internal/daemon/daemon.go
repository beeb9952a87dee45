package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"cgmanager/internal/amcp"
	"cgmanager/internal/api"
	"cgmanager/internal/caspar"
	"cgmanager/internal/config"
	"cgmanager/internal/database"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
	"cgmanager/internal/routes"
	"cgmanager/internal/services"
)

// Daemon owns the engine connection and everything layered on top of it.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	lock   *flock.Flock

	conn    *amcp.Connection
	exec    *caspar.Executor
	db      *database.DB
	media   *media.Store
	scanner *media.Scanner
	routes  *routes.Manager
	service *api.Service
	hub     *eventHub
	apiSrv  *apiServer

	running atomic.Bool
	// connects counts established engine connections.
	connects atomic.Int64

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a daemon from configuration. Nothing talks to the engine until
// Start is called.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "daemon"),
		lock:   flock.New(cfg.LockPath()),
		db:     db,
	}

	d.conn = amcp.NewConnection(amcp.ConnectionOptions{
		Address:           cfg.CasparAddress(),
		DialTimeout:       cfg.ConnectTimeout(),
		RequestTimeout:    cfg.RequestTimeout(),
		ReconnectInterval: cfg.ReconnectInterval(),
		Logger:            logger,
	})
	d.exec = caspar.NewExecutor(d.conn, logger)
	if err := bootstrapChannels(d.exec, cfg.Channels); err != nil {
		_ = db.Close()
		return nil, err
	}

	d.media = media.NewStore(db)
	d.scanner = media.NewScanner(d.exec, d.media, logger)
	d.routes = routes.NewManager(routes.NewStore(db), d.exec, logger)
	d.service = api.NewService(api.Options{
		Executor: d.exec,
		Engine:   d.conn,
		Media:    d.media,
		Scanner:  d.scanner,
		Routes:   d.routes,
		Paths: api.Paths{
			Database: cfg.DatabasePath(),
			Lock:     cfg.LockPath(),
			Socket:   cfg.SocketPath(),
			APIBind:  cfg.Paths.APIBind,
		},
		Logger: logger,
	})

	d.hub = newEventHub(logger)
	d.exec.OnEvent(d.hub.publish)
	d.apiSrv = newAPIServer(cfg.Paths.APIBind, d.service, d.hub, logger)

	d.conn.OnStateChange(d.handleConnection)
	return d, nil
}

// bootstrapChannels registers the configured channels and creates their
// groups bottom to top.
func bootstrapChannels(exec *caspar.Executor, channels []config.Channel) error {
	for _, spec := range channels {
		ch, err := exec.AllocateChannel(spec.ID)
		if err != nil {
			return err
		}
		for _, name := range spec.Groups {
			ch.Group(name)
		}
	}
	return nil
}

// Start acquires the instance lock and begins dialing the engine.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return services.Wrap(services.ErrConflict, "daemon", "start", "daemon already running", nil)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrConflict, "daemon", "start",
			fmt.Sprintf("another cgmanager instance holds %s", d.cfg.LockPath()), nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.apiSrv.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.mu.Lock()
	d.ctx = runCtx
	d.cancel = cancel
	d.mu.Unlock()
	d.running.Store(true)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.conn.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.scanner.Run(runCtx, d.cfg.MediaRefreshInterval())
	}()

	d.logger.Info("daemon started",
		logging.String("engine", d.conn.Address()),
		logging.Int("channels", len(d.cfg.Channels)),
		logging.String("api_bind", d.cfg.Paths.APIBind),
		logging.String("lock", d.cfg.LockPath()))
	return nil
}

// Stop cancels background work, waits for it and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.apiSrv.stop()
	d.hub.close()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "release lock failed", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a new daemon may refuse to start until the lock file is removed"),
			logging.String(logging.FieldErrorHint, "remove "+d.cfg.LockPath()+" if no daemon is running"))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases the database.
func (d *Daemon) Close() error {
	d.Stop()
	return d.db.Close()
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Service returns the operations shared by HTTP and IPC.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// Executor returns the channel executor.
func (d *Daemon) Executor() *caspar.Executor {
	return d.exec
}

// APIAddress returns the bound HTTP address, or "" when the API is disabled
// or not listening.
func (d *Daemon) APIAddress() string {
	return d.apiSrv.address()
}

func (d *Daemon) runContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ctx
}

// handleConnection runs on the connection supervisor goroutine, which is
// tracked by wg, so adding to wg here cannot race with Stop's Wait.
func (d *Daemon) handleConnection(connected bool) {
	if !connected {
		return
	}
	ctx := d.runContext()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	reconnect := d.connects.Add(1) > 1
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.onConnected(ctx, reconnect)
	}()
}

// onConnected brings a fresh connection up to date. After a reconnect the
// engine may have restarted, so channels are rebuilt and active effects,
// live routes included, are played again.
func (d *Daemon) onConnected(ctx context.Context, reconnect bool) {
	if reconnect {
		if err := d.exec.Resync(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(d.logger, "channel resync after reconnect failed", "resync_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some effects may be off air although reported active"),
				logging.String(logging.FieldErrorHint, "deactivate and activate affected effects once the engine is healthy"))
		}
	}
	if err := d.exec.ExecuteAllocations(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "pending reconciliation failed after connect", "reconcile_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "layer order on the engine may differ until the next change"))
	}
	if d.cfg.Media.RefreshOnConnect {
		if _, err := d.scanner.Refresh(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(d.logger, "media refresh on connect failed", "media_refresh_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "video durations fall back to manual stop"),
				logging.String(logging.FieldErrorHint, "run cgmanager media --refresh once the engine is healthy"))
		}
	}
	if err := d.routes.Restore(ctx); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "some routes could not be restored", "route_restore_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "affected routes stay inactive until re-enabled or reconnected"))
	}
}
