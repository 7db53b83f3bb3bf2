package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// Version is reported by every auth provider.
const Version = "1.0.0"

// Provider issues and verifies JWTs and hashes passwords. Dependencies
// named in depends_on are injected by the registry; their health feeds
// into this provider's.
type Provider struct {
	*provider.Base
	log *logger.Logger

	mu         sync.RWMutex
	settings   Settings
	revokedJTI map[string]time.Time
	now        func() time.Time
}

func New(cfg provider.Config, log *logger.Logger) *Provider {
	return &Provider{
		Base:       provider.NewBase(cfg, Version, provider.CapDependencyInjection, provider.CapDiagnostics),
		log:        log.WithProvider(cfg.Name),
		revokedJTI: make(map[string]time.Time),
		now:        time.Now,
	}
}

func settingsFrom(cfg provider.Config) (Settings, error) {
	var s Settings
	if err := cfg.DecodeSettings(&s); err != nil {
		return Settings{}, err
	}
	s.signingKey = []byte(cfg.Secret("signing_key", ""))
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

func (p *Provider) Start(context.Context) error {
	p.SetRunning(true)
	s := p.current()
	p.log.Info("auth provider ready", logger.Fields(
		"method", s.Method,
		"hasher", s.Hasher,
		"access_ttl", s.AccessTokenTTL.String(),
	))
	return nil
}

func (p *Provider) Stop(context.Context) error {
	p.SetRunning(false)
	return nil
}

func (p *Provider) current() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

func (p *Provider) ensureRunning(op string) error {
	if !p.Running() {
		return errors.Lifecycle(op, p.Name(), fmt.Errorf("auth provider is not running"))
	}
	return nil
}

// IssueToken signs an access and refresh token pair for subject.
func (p *Provider) IssueToken(_ context.Context, subject string, roles ...string) (TokenPair, error) {
	if err := p.ensureRunning("issue_token"); err != nil {
		return TokenPair{}, err
	}
	if subject == "" {
		return TokenPair{}, errors.InvalidInput("subject", "subject is required")
	}
	var pair TokenPair
	err := p.Recorder().Track(func() error {
		s, now := p.current(), p.now()
		var err error
		if pair.AccessToken, pair.ExpiresAt, err = p.sign(s, subject, KindAccess, roles, s.AccessTokenTTL, now); err != nil {
			return err
		}
		pair.RefreshToken, _, err = p.sign(s, subject, KindRefresh, roles, s.RefreshTokenTTL, now)
		return err
	})
	if err == nil {
		p.Recorder().AddBusiness("tokens_issued", 1)
	}
	return pair, err
}

// VerifyToken validates an access token and returns its claims.
func (p *Provider) VerifyToken(_ context.Context, token string) (*Claims, error) {
	if err := p.ensureRunning("verify_token"); err != nil {
		return nil, err
	}
	var claims *Claims
	err := p.Recorder().Track(func() (err error) {
		claims, err = p.parse(p.current(), token)
		if err == nil && claims.Kind != KindAccess {
			err = errors.InvalidInput("token", "not an access token")
		}
		return err
	})
	if err != nil {
		p.Recorder().AddBusiness("verify_failures", 1)
		return nil, err
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is revoked.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if err := p.ensureRunning("refresh_token"); err != nil {
		return TokenPair{}, err
	}
	claims, err := p.parse(p.current(), refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Kind != KindRefresh {
		return TokenPair{}, errors.InvalidInput("token", "not a refresh token")
	}
	p.revoke(claims)
	return p.IssueToken(ctx, claims.Subject, claims.Roles...)
}

// Revoke invalidates a token until it would have expired anyway.
func (p *Provider) Revoke(_ context.Context, token string) error {
	claims, err := p.parse(p.current(), token)
	if err != nil {
		return err
	}
	p.revoke(claims)
	return nil
}

func (p *Provider) revoke(c *Claims) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for jti, exp := range p.revokedJTI {
		if now.After(exp) {
			delete(p.revokedJTI, jti)
		}
	}
	p.revokedJTI[c.ID] = c.ExpiresAt.Time
}

func (p *Provider) revoked(jti string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.revokedJTI[jti]
	return ok
}

// HashPassword hashes password with the configured scheme.
func (p *Provider) HashPassword(_ context.Context, password string) (string, error) {
	if err := p.ensureRunning("hash_password"); err != nil {
		return "", err
	}
	s := p.current()
	if len(password) < s.MinPasswordLength {
		return "", errors.InvalidInput("password", fmt.Sprintf("must be at least %d characters", s.MinPasswordLength))
	}
	var hash string
	err := p.Recorder().Track(func() (err error) {
		hash, err = hasherFor(s).Hash(password)
		return err
	})
	if err != nil {
		return "", errors.InvalidInput("password", err.Error())
	}
	return hash, nil
}

// CheckPassword returns ErrPasswordMismatch when password does not match
// hash.
func (p *Provider) CheckPassword(_ context.Context, password, hash string) error {
	if err := p.ensureRunning("check_password"); err != nil {
		return err
	}
	s := p.current()
	return p.Recorder().Track(func() error { return verifierFor(hash, s).Verify(password, hash) })
}

// Health is unhealthy when stopped and degraded when an injected dependency
// is missing or not healthy.
func (p *Provider) Health(ctx context.Context) (provider.Health, error) {
	h, _ := p.Base.Health(ctx)
	if h.State != provider.HealthHealthy {
		return h, nil
	}
	deps := make(map[string]any)
	for _, name := range p.Dependencies() {
		dep, ok := p.Dependency(name)
		if !ok {
			deps[name] = "not injected"
			h.Warnings++
			continue
		}
		dh, err := dep.Health(ctx)
		switch {
		case err != nil:
			deps[name] = err.Error()
			h.Warnings++
		case dh.State != provider.HealthHealthy:
			deps[name] = string(dh.State)
			h.Warnings++
		default:
			deps[name] = string(dh.State)
		}
	}
	if len(deps) > 0 {
		h.Details = map[string]any{"dependencies": deps}
	}
	if h.Warnings > 0 {
		h.State = provider.HealthDegraded
		h.Message = "dependency not healthy"
	}
	return h, nil
}

// Diagnose round-trips a token and a password hash.
func (p *Provider) Diagnose(ctx context.Context) []provider.CheckResult {
	token := check("token_roundtrip", func() error {
		pair, err := p.IssueToken(ctx, "diagnostics")
		if err != nil {
			return err
		}
		_, err = p.VerifyToken(ctx, pair.AccessToken)
		return err
	})
	hash := check("password_roundtrip", func() error {
		s := p.current()
		h := hasherFor(s)
		encoded, err := h.Hash("diagnostics-password")
		if err != nil {
			return err
		}
		return h.Verify("diagnostics-password", encoded)
	})
	return []provider.CheckResult{token, hash}
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
