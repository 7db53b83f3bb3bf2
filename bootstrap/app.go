package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/backendkit/admin"
	"github.com/kbukum/backendkit/backends"
	"github.com/kbukum/backendkit/config"
	"github.com/kbukum/backendkit/enhanced"
	"github.com/kbukum/backendkit/events/kafka"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/observability"
	"github.com/kbukum/backendkit/registry"
)

// App owns the registry, the admin API and the telemetry exporters of one
// process.
type App struct {
	Name     string
	Version  string
	Cfg      *Config
	Registry *registry.Registry
	Bridge   *enhanced.Bridge
	Admin    *admin.Server
	Logger   *logger.Logger
	Summary  *Summary

	gracefulTimeout time.Duration
	sink            *kafka.Sink
	meter           *sdkmetric.MeterProvider
	tracer          *sdktrace.TracerProvider

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewApp validates cfg and builds the registry with every built-in
// factory registered. Nothing is started until Run or Start.
func NewApp(cfg *Config, opts ...Option) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	o := resolveOptions(opts)

	app := &App{
		Name:            cfg.Name,
		Version:         cfg.Version,
		Cfg:             cfg,
		gracefulTimeout: 15 * time.Second,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		logger.Init(cfg.Logging)
		app.Logger = logger.GetGlobalLogger()
	}

	regOpts := []registry.Option{
		registry.WithConfig(cfg.Registry),
		registry.WithLogger(app.Logger.WithComponent("registry")),
	}
	if o.configFile != "" {
		regOpts = append(regOpts, registry.WithConfigSource(config.NewFileSource(o.configFile)))
	}
	if cfg.Telemetry.Enabled {
		regOpts = append(regOpts, registry.WithMeter(otel.Meter("github.com/kbukum/backendkit/registry")))
	}
	app.Registry = registry.New(regOpts...)

	if err := backends.Register(app.Registry, app.Logger); err != nil {
		return nil, fmt.Errorf("registering backends: %w", err)
	}
	for _, f := range o.factories {
		if err := app.Registry.RegisterFactory(f); err != nil {
			return nil, fmt.Errorf("registering factory %s: %w", f.Name(), err)
		}
	}

	app.Bridge = enhanced.New(app.Registry)
	if cfg.Admin.Enabled {
		app.Admin = admin.New(cfg.Admin, app.Bridge, app.Logger)
	}
	app.Summary = NewSummary(cfg.Name, cfg.Version)
	return app, nil
}

// Run starts the application, blocks until a signal or ctx is done, then
// shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		_ = a.stop()
		return err
	}
	a.Logger.Info("application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.stop()
}

// Start runs the startup sequence: telemetry, event forwarding, provider
// registration, registry start, OnStart hooks, admin API, OnReady hooks.
// A provider that fails to register or start is logged and does not fail
// Start.
func (a *App) Start(ctx context.Context) error {
	start := time.Now()
	a.Logger.Info("starting application", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.startTelemetry(ctx); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := a.startEventSink(); err != nil {
		return fmt.Errorf("event sink: %w", err)
	}

	a.registerProviders(ctx)
	res, err := a.Registry.Start(ctx)
	if err != nil {
		return fmt.Errorf("registry start: %w", err)
	}
	for name, reason := range res.Failed {
		a.Logger.Warn("provider failed to start", logger.Fields(logger.FieldProvider, name, logger.FieldError, reason))
	}

	if err := a.runHooks(ctx, phaseStart); err != nil {
		return err
	}

	if a.Admin != nil {
		if err := a.Admin.Start(ctx); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
	}

	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}
	if err := a.runHooks(ctx, phaseReady); err != nil {
		return err
	}

	a.Summary.SetStartupDuration(time.Since(start))
	a.Summary.Collect(a)
	a.Summary.Display(a.Logger)
	return nil
}

func (a *App) startTelemetry(ctx context.Context) error {
	if !a.Cfg.Telemetry.Enabled {
		return nil
	}
	id := observability.Identity{Name: a.Name, Version: a.Version, Environment: a.Cfg.Environment}
	mp, err := observability.InitMeter(ctx, id, a.Cfg.Telemetry)
	if err != nil {
		return err
	}
	a.meter = mp
	tp, err := observability.InitTracer(ctx, id, a.Cfg.Telemetry)
	if err != nil {
		return err
	}
	a.tracer = tp
	return nil
}

func (a *App) startEventSink() error {
	if !a.Cfg.Events.Enabled {
		return nil
	}
	sink, err := kafka.NewSink(a.Cfg.Events, a.Logger)
	if err != nil {
		return err
	}
	sink.Attach(a.Registry.Bus())
	a.sink = sink
	return nil
}

// registerProviders registers the configured providers through the bridge
// so that enhanced providers are checked for services and setup steps.
func (a *App) registerProviders(ctx context.Context) {
	for _, pc := range a.Cfg.Providers {
		v, err := a.Bridge.RegisterProvider(ctx, pc.Name, pc.Type, pc)
		if err != nil {
			a.Logger.Error("provider registration failed", logger.Fields(
				logger.FieldProvider, pc.Name,
				logger.FieldProviderType, string(pc.Type),
				logger.FieldError, err.Error(),
			))
			a.Summary.TrackRejected(pc.Name, string(pc.Type), err.Error())
			continue
		}
		a.Logger.Debug("provider registered", logger.Fields(
			logger.FieldProvider, v.Name,
			"category", v.Category,
			"enhanced", v.Enhanced,
		))
	}
}

// ReadyCheck fails when the registry reports unhealthy providers.
func (a *App) ReadyCheck(ctx context.Context) error {
	a.Registry.CheckAllHealth(ctx)
	sum := a.Registry.HealthSummary()
	if sum.Unhealthy > 0 {
		return fmt.Errorf("%d unhealthy providers: %v", sum.Unhealthy, sum.CriticalIssues)
	}
	return nil
}

// WaitForSignal blocks until SIGINT, SIGTERM or ctx is done.
func (a *App) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("context canceled, shutting down")
		return nil
	}
}

// Shutdown stops everything Start brought up.
func (a *App) Shutdown(context.Context) error {
	return a.stop()
}

// stop shuts down in reverse startup order within the graceful timeout.
// Every step runs even when an earlier one fails.
func (a *App) stop() error {
	a.Logger.Info("shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	if err := a.runHooks(ctx, phaseStop); err != nil {
		errs = append(errs, err)
	}
	if a.Admin != nil {
		if err := a.Admin.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin: %w", err))
		}
	}
	if err := a.Registry.Destroy(ctx); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event sink: %w", err))
		}
		a.sink = nil
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
		a.tracer = nil
	}
	if a.meter != nil {
		errs = append(errs, a.meter.Shutdown(ctx))
		a.meter = nil
	}

	err := stderrors.Join(errs...)
	if err != nil {
		a.Logger.Error("shutdown completed with errors", logger.Fields(logger.FieldError, err.Error()))
	} else {
		a.Logger.Info("application shutdown complete")
	}
	return err
}
