package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/util"
)

// Version is reported by every storage provider.
const Version = "1.0.0"

// Provider is an object storage provider backed by a local directory or
// an S3 bucket.
type Provider struct {
	*provider.Base
	log *logger.Logger

	mu       sync.RWMutex
	settings Settings
	store    Store
}

func New(cfg provider.Config, log *logger.Logger) *Provider {
	return &Provider{
		Base: provider.NewBase(cfg, Version, provider.CapDiagnostics),
		log:  log.WithProvider(cfg.Name),
	}
}

func settingsFrom(cfg provider.Config) (Settings, error) {
	var s Settings
	if err := cfg.DecodeSettings(&s); err != nil {
		return Settings{}, err
	}
	s.AccessKey = cfg.Secret("access_key", "")
	s.SecretKey = cfg.Secret("secret_key", "")
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

// Start opens the driver and probes it once.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil {
		return nil
	}

	var (
		store Store
		err   error
	)
	switch p.settings.Driver {
	case DriverS3:
		store, err = newS3Store(ctx, p.settings)
	default:
		store, err = newLocalStore(p.settings.BasePath)
	}
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", p.settings.Driver, err)
	}
	if err := store.Probe(ctx); err != nil {
		return fmt.Errorf("storage probe: %w", err)
	}

	p.store = store
	p.SetRunning(true)
	p.log.Info("storage ready", logger.Fields("driver", p.settings.Driver, "location", p.location()))
	return nil
}

func (p *Provider) location() string {
	if p.settings.Driver == DriverS3 {
		return p.settings.Bucket
	}
	return p.settings.BasePath
}

func (p *Provider) Stop(context.Context) error {
	p.mu.Lock()
	p.store = nil
	p.mu.Unlock()
	p.SetRunning(false)
	return nil
}

func (p *Provider) current(op string) (Store, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, errors.Lifecycle(op, p.Name(), fmt.Errorf("storage is not running"))
	}
	return p.store, nil
}

// Upload stores the object. Objects larger than max_object_size are
// rejected before anything is written.
func (p *Provider) Upload(ctx context.Context, path string, r io.Reader) error {
	store, err := p.current("upload")
	if err != nil {
		return err
	}
	counted := &countingReader{r: r}
	var body io.Reader = counted
	if limit := p.settings.maxBytes; limit > 0 {
		body = &limitedReader{r: counted, left: limit, path: path}
	}
	err = p.Recorder().Track(func() error { return store.Upload(ctx, path, body) })
	if errors.HasCode(err, errors.ErrCodeInvalidInput) {
		_ = store.Delete(ctx, path)
	}
	if err == nil {
		p.Recorder().AddBusiness("objects_uploaded", 1)
		p.Recorder().AddBusiness("bytes_uploaded", float64(counted.n))
	}
	return err
}

func (p *Provider) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	store, err := p.current("download")
	if err != nil {
		return nil, err
	}
	var rc io.ReadCloser
	err = p.Recorder().Track(func() (err error) {
		rc, err = store.Download(ctx, path)
		return err
	})
	return rc, err
}

func (p *Provider) Delete(ctx context.Context, path string) error {
	store, err := p.current("delete")
	if err != nil {
		return err
	}
	return p.Recorder().Track(func() error { return store.Delete(ctx, path) })
}

func (p *Provider) Exists(ctx context.Context, path string) (bool, error) {
	store, err := p.current("exists")
	if err != nil {
		return false, err
	}
	return store.Exists(ctx, path)
}

func (p *Provider) URL(ctx context.Context, path string) (string, error) {
	store, err := p.current("url")
	if err != nil {
		return "", err
	}
	return store.URL(ctx, path)
}

func (p *Provider) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	store, err := p.current("list")
	if err != nil {
		return nil, err
	}
	return store.List(ctx, prefix)
}

func (p *Provider) Health(ctx context.Context) (provider.Health, error) {
	start := time.Now()
	h := provider.Health{State: provider.HealthHealthy, CheckedAt: start}
	store, err := p.current("health")
	if err == nil {
		err = store.Probe(ctx)
	}
	h.Latency = time.Since(start)
	if err != nil {
		h.State, h.Message, h.Errors = provider.HealthUnhealthy, err.Error(), 1
		return h, nil
	}
	h.Details = map[string]any{"driver": p.settings.Driver, "location": p.location()}
	if p.settings.maxBytes > 0 {
		h.Details["max_object_size"] = util.FormatSize(p.settings.maxBytes)
	}
	return h, nil
}

// Diagnose probes the location and round-trips a small object.
func (p *Provider) Diagnose(ctx context.Context) []provider.CheckResult {
	const key = ".diagnostics/roundtrip"
	probe := check("probe", func() error {
		store, err := p.current("diagnose")
		if err != nil {
			return err
		}
		return store.Probe(ctx)
	})
	roundTrip := check("roundtrip", func() error {
		store, err := p.current("diagnose")
		if err != nil {
			return err
		}
		if err := store.Upload(ctx, key, io.LimitReader(zeroReader{}, 16)); err != nil {
			return err
		}
		defer store.Delete(ctx, key) //nolint:errcheck
		ok, err := store.Exists(ctx, key)
		if err == nil && !ok {
			err = fmt.Errorf("uploaded object not found")
		}
		return err
	})
	return []provider.CheckResult{probe, roundTrip}
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

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += int64(n)
	return n, err
}

type limitedReader struct {
	r    io.Reader
	left int64
	path string
}

func (l *limitedReader) Read(b []byte) (int, error) {
	n, err := l.r.Read(b)
	l.left -= int64(n)
	if l.left < 0 {
		return n, errors.InvalidInput("object", fmt.Sprintf("%s exceeds the maximum object size", l.path))
	}
	return n, err
}

type zeroReader struct{}

func (zeroReader) Read(b []byte) (int, error) {
	clear(b)
	return len(b), nil
}
