package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/menuguard/internal/core/config"
	"github.com/vietddude/menuguard/internal/core/dispatch"
	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/core/logging"
	"github.com/vietddude/menuguard/internal/diagnostics"
	"github.com/vietddude/menuguard/internal/focus"
	"github.com/vietddude/menuguard/internal/recovery"
	"github.com/vietddude/menuguard/internal/resource"
)

// App is the composition root that wires the resilience layer together
// and manages its lifecycle.
type App struct {
	cfg        *config.AppConfig
	configPath string
	logger     logging.Logger
	log        logging.Tagged

	engine    *recovery.Engine
	loop      *dispatch.LoopDispatcher
	resources *resource.Manager
	focus     *focus.Manager
	monitor   *diagnostics.Monitor
	server    *diagnostics.Server

	cancel context.CancelFunc
	group  *errgroup.Group
}

type options struct {
	logger     logging.Logger
	memory     resource.MemoryProvider
	reinit     func(ctx context.Context, adapter string, simplified bool) error
	noServer   bool
	configPath string
}

// Option configures an App.
type Option func(*options)

// WithLogger replaces the logger built from the logging section.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMemoryProvider replaces the sysinfo-based memory reader.
func WithMemoryProvider(p resource.MemoryProvider) Option {
	return func(o *options) { o.memory = p }
}

// WithAdapterReinit sets how failed list adapters are rebuilt.
func WithAdapterReinit(fn func(ctx context.Context, adapter string, simplified bool) error) Option {
	return func(o *options) { o.reinit = fn }
}

// WithoutServer skips the diagnostics HTTP server.
func WithoutServer() Option {
	return func(o *options) { o.noServer = true }
}

// WithConfigWatch reloads the log level when the file at path changes.
func WithConfigWatch(path string) Option {
	return func(o *options) { o.configPath = path }
}

// NewApp creates a new App with all components initialized.
func NewApp(cfg *config.AppConfig, opts ...Option) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(cfg.LoggerConfig())
	}
	if o.memory == nil {
		o.memory = resource.SysinfoProvider{LowMemoryMB: cfg.Resources.LowMemoryMB}
	}

	// 1. Error engine
	engine := recovery.NewEngine(o.logger, cfg.RecoveryConfig())

	// 2. UI owner loop and timers
	loop := dispatch.NewLoopDispatcher(0)

	// 3. Managers
	resources := resource.NewManager(o.logger, engine, cfg.ResourceConfig(),
		resource.WithDispatcher(loop),
		resource.WithMemoryProvider(o.memory),
	)
	focusMgr := focus.NewManager(o.logger, engine, cfg.FocusConfig(),
		focus.WithScheduler(dispatch.TimerScheduler{}),
	)

	// 4. Recovery strategies
	engine.RegisterStrategy(&recovery.MemoryPressureStrategy{Reclaimer: resources})
	engine.RegisterStrategy(&recovery.FocusDeadlockStrategy{Recoverer: focusMgr})
	engine.RegisterStrategy(&recovery.AdapterInitStrategy{Reinit: o.reinit})
	engine.RegisterStrategy(&recovery.VisualEffectStrategy{Reclaimer: resources})
	engine.RegisterStrategy(&recovery.PartialCleanupStrategy{Reclaimer: resources})
	engine.RegisterStrategy(recovery.WarningStrategy{})

	engine.AddContextProvider("degraded", func() any { return resources.IsDegraded() })
	engine.AddContextProvider("memory_pressure", func() any { return resources.PressureLevel().String() })
	engine.AddContextProvider("focus_mode", func() any { return string(focusMgr.Current().Mode) })

	// 5. Diagnostics
	monitor := diagnostics.NewMonitor(resources, focusMgr, engine, diagnostics.DefaultThresholds())
	var server *diagnostics.Server
	if !o.noServer {
		server = diagnostics.NewServer(monitor, cfg.Server.Port)
	}

	return &App{
		cfg:        cfg,
		configPath: o.configPath,
		logger:     o.logger,
		log:        logging.WithTag(o.logger, "app"),
		engine:     engine,
		loop:       loop,
		resources:  resources,
		focus:      focusMgr,
		monitor:    monitor,
		server:     server,
	}
}

// Engine returns the error engine.
func (a *App) Engine() *recovery.Engine { return a.engine }

// Resources returns the resource lifecycle manager.
func (a *App) Resources() *resource.Manager { return a.resources }

// Focus returns the focus manager.
func (a *App) Focus() *focus.Manager { return a.focus }

// Monitor returns the diagnostics monitor.
func (a *App) Monitor() *diagnostics.Monitor { return a.monitor }

// Dispatcher returns the UI owner dispatcher.
func (a *App) Dispatcher() dispatch.Dispatcher { return a.loop }

// Start binds the diagnostics port, runs the owner loop, enables category
// focus and launches pressure monitoring and the server. It returns once
// everything is running; a port that cannot be bound fails Start.
func (a *App) Start(ctx context.Context) error {
	var ln net.Listener
	if a.server != nil {
		var err error
		if ln, err = a.server.Listen(); err != nil {
			return fmt.Errorf("diagnostics server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.loop.Start(ctx)
	if err := a.focus.SetFocusMode(ctx, domain.ModeCategoryPanel); err != nil {
		cancel()
		a.loop.Stop()
		if ln != nil {
			ln.Close()
		}
		return fmt.Errorf("enable focus: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.resources.StartMonitoring(gctx, a.cfg.Resources.MonitorInterval)
		return nil
	})
	if ln != nil {
		g.Go(func() error {
			a.log.Info("diagnostics server listening", "addr", ln.Addr().String())
			if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("diagnostics server: %w", err)
			}
			return nil
		})
	}
	if a.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, a.configPath, a.reload)
		})
	}
	a.group = g

	a.log.Info("menu resilience layer started",
		"monitor_interval", a.cfg.Resources.MonitorInterval,
		"server", a.server != nil,
	)
	return nil
}

func (a *App) reload(cfg *config.AppConfig, err error) {
	if err != nil {
		a.log.Warn("config reload rejected, keeping previous", "error", err)
		return
	}
	debug := cfg.LoggerConfig().Debug
	a.logger.SetDebug(debug)
	a.log.Info("config reloaded", "debug", debug)
}

// Stop clears focus, releases every resource and shuts down the server and
// owner loop. Cleanup failures are returned after shutdown completes.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping menu resilience layer")

	a.focus.Cleanup(ctx)

	var errs []error
	report, err := a.resources.CleanupAll(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if len(report.Failed) > 0 && (report.Recovery == nil || !report.Recovery.OK()) {
		errs = append(errs, fmt.Errorf("%d resource(s) failed cleanup", len(report.Failed)))
	}

	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop diagnostics server: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.group != nil {
		if err := a.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	a.loop.Stop()

	a.log.Info("menu resilience layer stopped", "cleaned", report.Cleaned, "failed", len(report.Failed))
	return errors.Join(errs...)
}
