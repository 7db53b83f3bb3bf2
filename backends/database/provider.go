package database

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// Version is reported by every database provider.
const Version = "1.0.0"

// DriverSQLite is the built-in driver.
const DriverSQLite = "sqlite"

var dialectors = map[string]func(dsn string) gorm.Dialector{
	DriverSQLite: sqlite.Open,
}

// Drivers lists the supported driver names.
func Drivers() []string {
	return slices.Sorted(maps.Keys(dialectors))
}

// Provider is a gorm-backed database provider.
type Provider struct {
	*provider.Base
	log *logger.Logger

	mu       sync.RWMutex
	settings Settings
	db       *gorm.DB
	models   []any
}

// New creates a database provider for cfg. Settings are decoded on
// Initialize.
func New(cfg provider.Config, log *logger.Logger) *Provider {
	return &Provider{
		Base: provider.NewBase(cfg, Version, provider.CapDiagnostics),
		log:  log.WithProvider(cfg.Name),
	}
}

// RegisterModels adds models migrated on every Start when auto_migrate is
// set. Call it before the provider starts.
func (p *Provider) RegisterModels(models ...any) {
	p.mu.Lock()
	p.models = append(p.models, models...)
	p.mu.Unlock()
}

func settingsFrom(cfg provider.Config) (Settings, error) {
	var s Settings
	if err := cfg.DecodeSettings(&s); err != nil {
		return Settings{}, err
	}
	s.DSN = cfg.Secret("dsn", s.DSN)
	s.ApplyDefaults()
	return s, s.Validate()
}

func (p *Provider) Initialize(ctx context.Context, cfg provider.Config) error {
	s, err := settingsFrom(cfg)
	if err != nil {
		return errors.Configuration(cfg.Name, err.Error())
	}
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
	return p.Base.Initialize(ctx, cfg)
}

// Start opens the connection pool and verifies it with a ping.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return nil
	}

	s := p.settings
	db, err := gorm.Open(dialectors[s.Driver](s.DSN), &gorm.Config{
		Logger: newQueryLogger(p.log, s.SlowQueryThreshold, parseLogLevel(s.LogLevel)),
	})
	if err != nil {
		return fmt.Errorf("opening %s database: %w", s.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("database ping: %w", err)
	}
	sqlDB.SetMaxOpenConns(s.MaxOpenConns)
	sqlDB.SetMaxIdleConns(s.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(s.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(s.ConnMaxIdleTime)

	if s.AutoMigrate && len(p.models) > 0 {
		if err := db.WithContext(ctx).AutoMigrate(p.models...); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	p.db = db
	p.SetRunning(true)
	p.log.Info("database connection established", logger.Fields(
		"driver", s.Driver,
		"max_open_conns", s.MaxOpenConns,
		"models", len(p.models),
	))
	return nil
}

// Stop closes the connection pool.
func (p *Provider) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SetRunning(false)
	if p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	p.db = nil
	if err != nil {
		return err
	}
	p.log.Info("closing database connection")
	return sqlDB.Close()
}

func (p *Provider) Destroy(ctx context.Context) error {
	if err := p.Stop(ctx); err != nil {
		return err
	}
	return p.Base.Destroy(ctx)
}

// DB returns a session bound to ctx, or nil before Start.
func (p *Provider) DB(ctx context.Context) *gorm.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil
	}
	return p.db.WithContext(ctx)
}

// Transaction runs fn in a transaction and records it as one request.
func (p *Provider) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := p.DB(ctx)
	if db == nil {
		return errors.Lifecycle("transaction", p.Name(), fmt.Errorf("database is not running"))
	}
	return p.Recorder().Track(func() error { return db.Transaction(fn) })
}

func (p *Provider) sqlDB() (*sql.DB, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, fmt.Errorf("database is not running")
	}
	return p.db.DB()
}

// Health pings the database. A pool with every connection in use reports
// degraded.
func (p *Provider) Health(ctx context.Context) (provider.Health, error) {
	start := time.Now()
	h := provider.Health{State: provider.HealthHealthy, CheckedAt: start}

	sqlDB, err := p.sqlDB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	h.Latency = time.Since(start)
	if err != nil {
		h.State, h.Message, h.Errors = provider.HealthUnhealthy, err.Error(), 1
		return h, nil
	}

	stats := sqlDB.Stats()
	h.Details = map[string]any{
		"open_connections":   stats.OpenConnections,
		"in_use_connections": stats.InUse,
		"idle_connections":   stats.Idle,
		"wait_count":         stats.WaitCount,
	}
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		h.State = provider.HealthDegraded
		h.Message = "connection pool exhausted"
		h.Warnings = 1
	}
	return h, nil
}

// Metrics returns the recorded transaction metrics plus pool figures.
func (p *Provider) Metrics(ctx context.Context) (provider.Metrics, error) {
	if sqlDB, err := p.sqlDB(); err == nil {
		stats := sqlDB.Stats()
		p.Recorder().SetResources(provider.ResourceMetrics{Connections: stats.OpenConnections})
	}
	return p.Base.Metrics(ctx)
}

// Diagnose checks connectivity and that a trivial query round-trips.
func (p *Provider) Diagnose(ctx context.Context) []provider.CheckResult {
	ping := timedCheck("ping", func() error {
		sqlDB, err := p.sqlDB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	query := timedCheck("query", func() error {
		db := p.DB(ctx)
		if db == nil {
			return fmt.Errorf("database is not running")
		}
		var one int
		return db.Raw("SELECT 1").Scan(&one).Error
	})
	return []provider.CheckResult{ping, query}
}

func timedCheck(name string, fn func() error) provider.CheckResult {
	start := time.Now()
	err := fn()
	res := provider.CheckResult{Name: name, Passed: err == nil, Duration: time.Since(start)}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}
