package auth

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/providertest"
)

const testKey = "0123456789abcdef0123456789abcdef"

func testConfig(settings map[string]any) provider.Config {
	base := map[string]any{"issuer": "backendkit-test", "bcrypt_cost": 4}
	for k, v := range settings {
		base[k] = v
	}
	return provider.Config{
		Name:     "auth",
		Type:     provider.TypeAuth,
		Settings: base,
		Secrets:  map[string]string{"signing_key": testKey},
	}
}

func startProvider(t *testing.T, cfg provider.Config) *Provider {
	t.Helper()
	ctx := context.Background()
	p := New(cfg, logger.NewNop())
	if err := p.Initialize(ctx, cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return p
}

func TestIssueAndVerify(t *testing.T) {
	ctx := context.Background()
	p := startProvider(t, testConfig(nil))

	pair, err := p.IssueToken(ctx, "user-1", "admin", "ops")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := p.VerifyToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "user-1" || !claims.HasRole("ops") || claims.Issuer != "backendkit-test" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := p.VerifyToken(ctx, pair.RefreshToken); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
	if _, err := p.VerifyToken(ctx, pair.AccessToken+"x"); err == nil {
		t.Error("tampered token accepted")
	}
	if _, err := p.IssueToken(ctx, ""); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty subject: %v", err)
	}

	m, _ := p.Metrics(ctx)
	if m.Business["tokens_issued"] != 1 || m.Business["verify_failures"] != 2 {
		t.Errorf("business = %v", m.Business)
	}
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	p := startProvider(t, testConfig(map[string]any{"access_token_ttl": "1m"}))
	now := time.Now()
	p.now = func() time.Time { return now }

	pair, err := p.IssueToken(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := p.VerifyToken(ctx, pair.AccessToken); err == nil {
		t.Fatal("expired token accepted")
	}
	// The refresh token outlives the access token.
	if _, err := p.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("refresh: %v", err)
	}
}

func TestRefreshRevokesPresentedToken(t *testing.T) {
	ctx := context.Background()
	p := startProvider(t, testConfig(nil))

	pair, _ := p.IssueToken(ctx, "user-1", "admin")
	next, err := p.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := p.VerifyToken(ctx, next.AccessToken)
	if err != nil || !claims.HasRole("admin") {
		t.Fatalf("refreshed claims = %+v, %v", claims, err)
	}
	if _, err := p.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Error("refresh token reused")
	}
	if _, err := p.Refresh(ctx, next.AccessToken); err == nil {
		t.Error("access token accepted for refresh")
	}

	if err := p.Revoke(ctx, next.AccessToken); err != nil {
		t.Fatal(err)
	}
	if _, err := p.VerifyToken(ctx, next.AccessToken); err == nil {
		t.Error("revoked token accepted")
	}
}

func TestPasswords(t *testing.T) {
	for _, scheme := range []string{HasherBcrypt, HasherArgon2} {
		t.Run(scheme, func(t *testing.T) {
			ctx := context.Background()
			p := startProvider(t, testConfig(map[string]any{"hasher": scheme}))

			hash, err := p.HashPassword(ctx, "correct horse")
			if err != nil {
				t.Fatal(err)
			}
			if err := p.CheckPassword(ctx, "correct horse", hash); err != nil {
				t.Errorf("matching password: %v", err)
			}
			if err := p.CheckPassword(ctx, "wrong horse!", hash); !stderrors.Is(err, ErrPasswordMismatch) {
				t.Errorf("mismatch = %v", err)
			}
			if _, err := p.HashPassword(ctx, "short"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
				t.Errorf("short password: %v", err)
			}
		})
	}
}

func TestHashesSurviveSchemeChange(t *testing.T) {
	ctx := context.Background()
	old := startProvider(t, testConfig(map[string]any{"hasher": HasherBcrypt}))
	hash, err := old.HashPassword(ctx, "long enough")
	if err != nil {
		t.Fatal(err)
	}
	p := startProvider(t, testConfig(map[string]any{"hasher": HasherArgon2}))
	if err := p.CheckPassword(ctx, "long enough", hash); err != nil {
		t.Errorf("bcrypt hash rejected after switching to argon2id: %v", err)
	}
}

func TestHealthFollowsDependencies(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(nil)
	cfg.DependsOn = []string{"db"}
	p := startProvider(t, cfg)

	h, _ := p.Health(ctx)
	if h.State != provider.HealthDegraded {
		t.Errorf("missing dependency: state = %s", h.State)
	}

	db := providertest.NewProvider(provider.Config{Name: "db", Type: provider.TypeDatabase})
	_ = db.Start(ctx)
	_ = p.SetDependency("db", db)
	h, _ = p.Health(ctx)
	if h.State != provider.HealthHealthy {
		t.Errorf("healthy dependency: state = %s (%v)", h.State, h.Details)
	}

	db.SetHealth(provider.Health{State: provider.HealthUnhealthy})
	h, _ = p.Health(ctx)
	if h.State != provider.HealthDegraded || h.Warnings != 1 {
		t.Errorf("unhealthy dependency: %+v", h)
	}

	_ = p.Stop(ctx)
	h, _ = p.Health(ctx)
	if h.State != provider.HealthUnhealthy {
		t.Errorf("stopped: state = %s", h.State)
	}
	if _, err := p.IssueToken(ctx, "u"); !errors.HasCode(err, errors.ErrCodeLifecycle) {
		t.Errorf("issue on stopped provider: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		cfg      provider.Config
		valid    bool
		warnings int
	}{
		{"ok", testConfig(nil), true, 1},
		{"no key", provider.Config{Name: "a", Settings: map[string]any{"issuer": "x"}}, false, 0},
		{"short key", provider.Config{Name: "a", Secrets: map[string]string{"signing_key": "short"}}, false, 0},
		{"rsa method", testConfig(map[string]any{"method": "RS256"}), false, 0},
		{"ttl order", testConfig(map[string]any{"access_token_ttl": "2h", "refresh_token_ttl": "1h"}), false, 0},
		{"unknown hasher", testConfig(map[string]any{"hasher": "md5"}), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(provider.TypeAuth, tt.cfg)
			if res.Valid != tt.valid || len(res.Warnings) != tt.warnings {
				t.Errorf("Validate = %+v", res)
			}
		})
	}
	if res := Validate(provider.TypeAuth, testConfig(nil)); !strings.Contains(res.Warnings[0], "bcrypt_cost") {
		t.Errorf("warning = %v", res.Warnings)
	}
}
