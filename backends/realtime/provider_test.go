package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

func startProvider(t *testing.T, settings map[string]any) (*Provider, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := map[string]any{"addr": mr.Addr()}
	for k, v := range settings {
		s[k] = v
	}
	cfg := provider.Config{Name: "rt", Type: provider.TypeRealtime, Settings: s}

	ctx := context.Background()
	p := New(cfg, logger.NewNop())
	if err := p.Initialize(ctx, cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p, mr
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscription closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	p, _ := startProvider(t, map[string]any{"channel_prefix": "app:"})

	sub, err := p.Subscribe(ctx, "orders", "users")
	if err != nil {
		t.Fatal(err)
	}
	if p.SubscriptionCount() != 1 {
		t.Errorf("subscriptions = %d", p.SubscriptionCount())
	}

	n, err := p.Publish(ctx, "orders", map[string]any{"id": 7})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("receivers = %d", n)
	}
	msg := receive(t, sub)
	if msg.Channel != "orders" {
		t.Errorf("channel = %q, prefix should be stripped", msg.Channel)
	}
	var body struct{ ID int }
	if err := msg.Decode(&body); err != nil || body.ID != 7 {
		t.Errorf("decoded %+v, %v", body, err)
	}

	if _, err := p.Publish(ctx, "users", "plain"); err != nil {
		t.Fatal(err)
	}
	if msg := receive(t, sub); msg.Payload != "plain" || msg.Channel != "users" {
		t.Errorf("message = %+v", msg)
	}

	if err := sub.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-sub.Messages(); ok {
		t.Error("messages channel should be closed")
	}
	if p.SubscriptionCount() != 0 {
		t.Errorf("subscriptions after close = %d", p.SubscriptionCount())
	}

	m, _ := p.Metrics(ctx)
	if m.Business["messages_published"] != 2 || m.Requests.Total != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestInputValidation(t *testing.T) {
	ctx := context.Background()
	p, _ := startProvider(t, nil)
	if _, err := p.Publish(ctx, "", "x"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("empty channel: %v", err)
	}
	if _, err := p.Publish(ctx, "c", func() {}); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unencodable payload: %v", err)
	}
	if _, err := p.Subscribe(ctx); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("no channels: %v", err)
	}
}

func TestStopClosesSubscriptions(t *testing.T) {
	ctx := context.Background()
	p, _ := startProvider(t, nil)
	sub, err := p.Subscribe(ctx, "events")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Error("unexpected message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed by Stop")
	}
	if _, err := p.Publish(ctx, "events", "x"); !errors.HasCode(err, errors.ErrCodeLifecycle) {
		t.Errorf("publish after stop: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	p, mr := startProvider(t, map[string]any{"dial_timeout": "200ms", "read_timeout": "200ms"})
	h, _ := p.Health(ctx)
	if h.State != provider.HealthHealthy {
		t.Fatalf("Health = %+v", h)
	}
	for _, c := range p.Diagnose(ctx) {
		if !c.Passed {
			t.Errorf("%s: %s", c.Name, c.Message)
		}
	}

	mr.Close()
	h, _ = p.Health(ctx)
	if h.State != provider.HealthUnhealthy {
		t.Errorf("health with server down = %s", h.State)
	}
}

func TestStartFailsWithoutServer(t *testing.T) {
	cfg := provider.Config{Name: "rt", Type: provider.TypeRealtime, Settings: map[string]any{
		"addr":         "127.0.0.1:1",
		"dial_timeout": "100ms",
		"max_retries":  0,
	}}
	p := New(cfg, logger.NewNop())
	ctx := context.Background()
	if err := p.Initialize(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected start to fail")
	}
	if p.Running() {
		t.Error("failed start left the provider running")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		valid    bool
	}{
		{"defaults", nil, true},
		{"db out of range", map[string]any{"db": 16}, false},
		{"idle above pool", map[string]any{"pool_size": 2, "min_idle_conns": 3}, false},
		{"bad duration", map[string]any{"dial_timeout": "soon"}, false},
		{"negative retries", map[string]any{"max_retries": -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(provider.TypeRealtime, provider.Config{Name: "rt", Settings: tt.settings})
			if res.Valid != tt.valid {
				t.Errorf("Validate = %+v", res)
			}
		})
	}
}
