package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// Version is reported by every realtime provider.
const Version = "1.0.0"

// Provider is a Redis pub/sub realtime provider.
type Provider struct {
	*provider.Base
	log *logger.Logger

	mu       sync.RWMutex
	settings Settings
	rdb      *goredis.Client
	subs     map[*Subscription]struct{}
}

func New(cfg provider.Config, log *logger.Logger) *Provider {
	return &Provider{
		Base: provider.NewBase(cfg, Version, provider.CapDiagnostics),
		log:  log.WithProvider(cfg.Name),
		subs: make(map[*Subscription]struct{}),
	}
}

func settingsFrom(cfg provider.Config) (Settings, error) {
	var s Settings
	if err := cfg.DecodeSettings(&s); err != nil {
		return Settings{}, err
	}
	s.password = cfg.Secret("password", "")
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

// Start connects and pings the server.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rdb != nil {
		return nil
	}
	s := p.settings
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         s.Addr,
		Password:     s.password,
		DB:           s.DB,
		PoolSize:     s.PoolSize,
		MinIdleConns: s.MinIdleConns,
		MaxRetries:   s.MaxRetries,
		DialTimeout:  s.DialTimeout,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping %s: %w", s.Addr, err)
	}
	p.rdb = rdb
	p.SetRunning(true)
	p.log.Info("realtime connection established", logger.Fields(
		"addr", s.Addr,
		"db", s.DB,
		"pool_size", s.PoolSize,
	))
	return nil
}

// Stop closes every open subscription and the client.
func (p *Provider) Stop(context.Context) error {
	p.mu.Lock()
	subs := make([]*Subscription, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	rdb := p.rdb
	p.rdb = nil
	p.mu.Unlock()
	p.SetRunning(false)

	for _, s := range subs {
		_ = s.Close()
	}
	if rdb == nil {
		return nil
	}
	p.log.Info("closing realtime connection", logger.Fields("subscriptions", len(subs)))
	return rdb.Close()
}

func (p *Provider) client(op string) (*goredis.Client, Settings, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.rdb == nil {
		return nil, Settings{}, errors.Lifecycle(op, p.Name(), fmt.Errorf("realtime provider is not running"))
	}
	return p.rdb, p.settings, nil
}

// Health pings the server. Pool timeouts since start mark it degraded.
func (p *Provider) Health(ctx context.Context) (provider.Health, error) {
	start := time.Now()
	h := provider.Health{State: provider.HealthHealthy, CheckedAt: start}
	rdb, _, err := p.client("health")
	if err == nil {
		err = rdb.Ping(ctx).Err()
	}
	h.Latency = time.Since(start)
	if err != nil {
		h.State, h.Message, h.Errors = provider.HealthUnhealthy, err.Error(), 1
		return h, nil
	}
	stats := rdb.PoolStats()
	h.Details = map[string]any{
		"total_conns":   stats.TotalConns,
		"idle_conns":    stats.IdleConns,
		"timeouts":      stats.Timeouts,
		"subscriptions": p.SubscriptionCount(),
	}
	if stats.Timeouts > 0 {
		h.State, h.Message, h.Warnings = provider.HealthDegraded, "connection pool timeouts", 1
	}
	return h, nil
}

func (p *Provider) Metrics(ctx context.Context) (provider.Metrics, error) {
	if rdb, _, err := p.client("metrics"); err == nil {
		p.Recorder().SetResources(provider.ResourceMetrics{Connections: int(rdb.PoolStats().TotalConns)})
	}
	m, err := p.Base.Metrics(ctx)
	if m.Business == nil {
		m.Business = make(map[string]float64)
	}
	m.Business["active_subscriptions"] = float64(p.SubscriptionCount())
	return m, err
}

// Diagnose pings the server and round-trips a message.
func (p *Provider) Diagnose(ctx context.Context) []provider.CheckResult {
	ping := check("ping", func() error {
		rdb, _, err := p.client("diagnose")
		if err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	roundTrip := check("pubsub_roundtrip", func() error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		const channel = "diagnostics"
		sub, err := p.Subscribe(ctx, channel)
		if err != nil {
			return err
		}
		defer sub.Close() //nolint:errcheck
		if _, err := p.Publish(ctx, channel, "ping"); err != nil {
			return err
		}
		select {
		case msg := <-sub.Messages():
			if msg.Payload != "ping" {
				return fmt.Errorf("unexpected payload %q", msg.Payload)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("no message received: %w", ctx.Err())
		}
	})
	return []provider.CheckResult{ping, roundTrip}
}

func check(name string, fn func() error) provider.CheckResult {
	start := time.Now()
	err := fn()
	res := provider.CheckResult{Name: name, Passed: err == nil, Duration: time.Since(start)}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}
