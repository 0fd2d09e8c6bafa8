package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"mousewatch/internal/config"
	"mousewatch/internal/dispatch"
	"mousewatch/internal/health"
	"mousewatch/internal/hook"
	"mousewatch/internal/logging"
	"mousewatch/internal/metrics"
	"mousewatch/internal/msgloop"
)

// maxDropRatio is the share of dropped events above which the queue check
// reports degraded.
const maxDropRatio = 0.01

type daemonOptions struct {
	configPath       string
	simulate         bool
	simulateInterval time.Duration

	// logWriter replaces the console log stream; used by tests.
	logWriter io.Writer
}

type daemon struct {
	opts   daemonOptions
	loader *config.Loader
	cfg    *config.Config

	log      *logging.Logger
	logger   *slog.Logger
	logLevel slog.LevelVar

	loop    *msgloop.Loop
	sim     *hook.SimulatedPlatform
	manager *hook.Manager
	queue   *dispatch.Queue[hook.MouseEvent]
	metrics *metrics.HookMetrics
	checker *health.Checker

	listener net.Listener
	server   *http.Server

	wantMouse atomic.Bool
	logEvents atomic.Bool
	// reloadMu serialises hook changes from config reloads with shutdown.
	reloadMu sync.Mutex
	stopped  bool

	simCancel context.CancelFunc
	simDone   chan struct{}
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration file")
	simulate := fs.Bool("simulate", false, "Use a simulated hook chain with synthetic input")
	interval := fs.Duration("simulate-interval", 50*time.Millisecond, "Delay between synthetic events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "mousewatchd",
	})

	var runErr error
	panicked := crash.Recover(map[string]any{"command": "run"}, func() {
		runErr = runDaemon(ctx, daemonOptions{
			configPath:       *configPath,
			simulate:         *simulate,
			simulateInterval: *interval,
		})
	})
	if panicked {
		return errors.New("daemon panicked; see crash report")
	}
	return runErr
}

func runDaemon(ctx context.Context, opts daemonOptions) error {
	d, err := newDaemon(opts)
	if err != nil {
		return err
	}
	if err := d.start(); err != nil {
		return errors.Join(err, d.shutdown())
	}
	<-ctx.Done()
	return d.shutdown()
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

// newDaemon loads the configuration and builds every component without
// installing anything.
func newDaemon(opts daemonOptions) (*daemon, error) {
	d := &daemon{opts: opts}

	d.loader = config.NewLoader(resolveConfigPath(opts.configPath), nil)
	cfg, err := d.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.simulate {
		cfg = cfg.Clone()
		cfg.Hook.Simulate = true
	}
	d.cfg = cfg

	logCfg, err := cfg.LoggingOptions()
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	d.logLevel.Set(logCfg.Level)
	logCfg.Leveler = &d.logLevel
	logCfg.Writer = opts.logWriter
	logCfg.Component = "mousewatchd"
	d.log, err = logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	d.logger = d.log.Logger

	d.loop = msgloop.New()
	d.loop.Logger = d.log.WithComponent("msgloop")

	var platform hook.Platform
	if cfg.Hook.Simulate {
		d.sim = hook.NewSimulatedPlatform()
		d.sim.SetCursor(hook.Point{X: simCenterX, Y: simCenterY})
		platform = d.sim
	} else {
		platform = hook.NewPlatform()
	}

	d.metrics = metrics.NewHookMetrics(metrics.NewRegistry("mousewatch", ""))
	d.manager = hook.NewManager(hook.Options{
		Platform: platform,
		Executor: d.loop,
		Logger:   d.logger,
		Observer: d.metrics,
	})

	d.queue = dispatch.NewQueue(cfg.Dispatch.QueueSize, d.handleEvent, d.log.WithComponent("dispatch"))
	d.metrics.TrackQueue(d.queue)
	d.manager.Subscribe(func(ev hook.MouseEvent) { d.queue.Handle(ev) })

	d.checker = health.NewChecker()
	d.checker.RegisterFunc("hook", true, health.HookCheck(d.manager, d.wantMouse.Load))
	d.checker.RegisterFunc("queue", false, health.QueueCheck(d.queue, maxDropRatio))

	d.wantMouse.Store(cfg.Hook.InstallMouse)
	d.logEvents.Store(cfg.Dispatch.LogEvents)
	return d, nil
}

// start brings the daemon up: loop thread, hook, HTTP endpoint, config
// watch and, when simulating, the synthetic input source.
func (d *daemon) start() error {
	if err := d.loop.Start(); err != nil {
		return fmt.Errorf("start message loop: %w", err)
	}

	if err := d.manager.StartMouse(d.cfg.Hook.InstallMouse); err != nil {
		return err
	}

	if d.cfg.Metrics.Enabled {
		if err := d.serve(d.cfg.Metrics.ListenAddr); err != nil {
			return err
		}
	}

	d.loader.OnChange(d.applyConfig)
	if err := d.loader.Watch(); err != nil {
		// Hot reload is a convenience; the daemon runs without it.
		d.logger.Warn("config watch unavailable", "path", d.loader.Path(), "error", err)
	}

	if d.sim != nil {
		ctx, cancel := context.WithCancel(context.Background())
		d.simCancel = cancel
		d.simDone = make(chan struct{})
		go func() {
			defer close(d.simDone)
			simulateInput(ctx, d.loop, d.sim, d.opts.simulateInterval)
		}()
	}

	d.checker.SetReady(true)
	d.logger.Info("mousewatchd started",
		"version", version,
		"config", d.loader.Path(),
		"simulate", d.sim != nil,
		"hook_installed", d.manager.Installed(),
		"queue_size", d.queue.Cap(),
	)
	return nil
}

func (d *daemon) serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", d.metrics.Registry().HTTPHandler())
	d.checker.RegisterHandlers(mux)

	d.listener = ln
	d.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", "error", err)
		}
	}()
	d.logger.Info("serving metrics and health", "addr", ln.Addr().String())
	return nil
}

// addr returns the HTTP listen address, or "" when metrics are disabled.
func (d *daemon) addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *daemon) handleEvent(ev hook.MouseEvent) {
	timer := d.metrics.HandlerDuration.Timer()
	defer timer.Stop()

	d.metrics.ObserveEvent(ev)
	if d.logEvents.Load() {
		d.logger.Debug("mouse event",
			"message", ev.Message.String(),
			"x", ev.Position.X,
			"y", ev.Position.Y,
			"wheel", ev.WheelDelta,
			"xbutton", ev.XButton,
			"injected", ev.Injected,
			"device", ev.Device.String(),
			"time", ev.Timestamp,
		)
	}
}

// applyConfig reacts to a reloaded configuration. Only the log level, event
// logging and the mouse hook switch take effect live.
func (d *daemon) applyConfig(old, next *config.Config) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	if d.stopped {
		return
	}

	if level, err := logging.ParseLevel(next.Logging.Level); err == nil && level != d.logLevel.Level() {
		d.logLevel.Set(level)
		d.logger.Info("log level changed", "level", next.Logging.Level)
	}
	d.logEvents.Store(next.Dispatch.LogEvents)

	if next.Hook.InstallMouse != d.wantMouse.Load() {
		d.wantMouse.Store(next.Hook.InstallMouse)
		var err error
		if next.Hook.InstallMouse {
			err = d.manager.StartMouse(true)
		} else {
			err = d.manager.StopMouse(true, true)
		}
		if err != nil {
			d.logger.Error("apply install_mouse", "install_mouse", next.Hook.InstallMouse, "error", err)
		}
	}

	if old != nil && (old.Dispatch.QueueSize != next.Dispatch.QueueSize ||
		old.Metrics != next.Metrics ||
		old.Logging.Output != next.Logging.Output ||
		old.Logging.FilePath != next.Logging.FilePath ||
		old.Logging.Format != next.Logging.Format ||
		old.Hook.Simulate != next.Hook.Simulate) {
		d.logger.Warn("some configuration changes take effect after a restart")
	}
}

// shutdown tears everything down in reverse order. Each step runs even if
// an earlier one failed.
func (d *daemon) shutdown() error {
	d.reloadMu.Lock()
	d.stopped = true
	d.reloadMu.Unlock()

	var errs []error

	d.checker.SetReady(false)
	if err := d.loader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close config watcher: %w", err))
	}

	if d.simCancel != nil {
		d.simCancel()
		<-d.simDone
	}

	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
		cancel()
	}

	if err := d.manager.StopMouse(true, d.cfg.Hook.StrictUninstall); err != nil {
		errs = append(errs, err)
	}
	if err := d.loop.Close(); err != nil && !errors.Is(err, msgloop.ErrClosed) {
		errs = append(errs, fmt.Errorf("close message loop: %w", err))
	}

	d.queue.Close()
	d.logger.Info("mousewatchd stopped",
		"delivered", d.queue.Delivered(),
		"dropped", d.queue.Dropped(),
	)

	if err := d.log.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log: %v\n", err)
	}
	return errors.Join(errs...)
}
