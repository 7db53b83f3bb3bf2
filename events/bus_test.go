package events

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kbukum/backendkit/logger"
)

func newTestBus(opts ...Option) *Bus {
	return NewBus(append([]Option{WithLogger(logger.NewNop())}, opts...)...)
}

func TestEmit_BuildsEvent(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b := newTestBus(WithClock(func() time.Time { return fixed }))

	data := map[string]any{"attempt": 1}
	ev := b.Emit(ProviderFailed, "db", data, errors.New("connection refused"))

	if ev.ID == "" {
		t.Error("expected generated id")
	}
	if ev.Type != ProviderFailed || ev.ProviderID != "db" || !ev.Timestamp.Equal(fixed) {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Severity != SeverityError {
		t.Errorf("expected error severity, got %s", ev.Severity)
	}
	if ev.Error != "connection refused" {
		t.Errorf("unexpected error text %q", ev.Error)
	}

	data["attempt"] = 99
	ev.Data["attempt"] = 42
	stored := b.History("", 0)[0]
	if stored.Data["attempt"] != 1 {
		t.Errorf("stored event was mutated: %v", stored.Data)
	}
}

func TestSeverity(t *testing.T) {
	tests := map[Type]Severity{
		ProviderRegistered:      SeverityInfo,
		ProviderStarted:         SeverityInfo,
		ProviderFailed:          SeverityError,
		ProviderHealthChanged:   SeverityWarning,
		MetricsCollectionFailed: SeverityWarning,
	}
	for typ, want := range tests {
		if got := typ.Severity(); got != want {
			t.Errorf("%s: expected %s, got %s", typ, want, got)
		}
	}
}

func TestHistory_BoundedAt1000(t *testing.T) {
	b := newTestBus()
	for i := 0; i < 1001; i++ {
		b.Emit(ProviderStarted, fmt.Sprintf("p%d", i), nil, nil)
	}

	h := b.History("", 0)
	if len(h) != DefaultHistorySize {
		t.Fatalf("expected %d events, got %d", DefaultHistorySize, len(h))
	}
	if h[0].ProviderID != "p1" {
		t.Errorf("oldest event should have been evicted, first is %s", h[0].ProviderID)
	}
	if h[len(h)-1].ProviderID != "p1000" {
		t.Errorf("newest event missing, last is %s", h[len(h)-1].ProviderID)
	}
	if b.Counts()[ProviderStarted] != 1001 {
		t.Errorf("counts should include evicted events, got %d", b.Counts()[ProviderStarted])
	}
}

func TestHistory_FilterAndLimit(t *testing.T) {
	b := newTestBus(WithHistorySize(10))
	for i := 0; i < 4; i++ {
		b.Emit(ProviderStarted, "db", map[string]any{"i": i}, nil)
		b.Emit(ProviderStarted, "cache", nil, nil)
	}

	db := b.History("db", 0)
	if len(db) != 4 {
		t.Fatalf("expected 4 db events, got %d", len(db))
	}
	last2 := b.History("db", 2)
	if len(last2) != 2 || last2[0].Data["i"] != 2 || last2[1].Data["i"] != 3 {
		t.Errorf("expected the two most recent db events, got %+v", last2)
	}
	if got := b.History("unknown", 0); len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
	if b.Len() != 8 {
		t.Errorf("expected 8 stored, got %d", b.Len())
	}
}

func TestSubscribers_OrderAndTypeFiltering(t *testing.T) {
	b := newTestBus()
	var got []string

	b.On(ProviderStarted, func(Event) { got = append(got, "first") })
	b.On(ProviderStopped, func(Event) { got = append(got, "stopped") })
	b.OnAll(func(e Event) { got = append(got, "all:"+string(e.Type)) })
	b.On(ProviderStarted, func(Event) { got = append(got, "second") })

	b.Emit(ProviderStarted, "db", nil, nil)

	want := []string{"first", "second", "all:provider_started"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if b.SubscriberCount(ProviderStarted) != 3 {
		t.Errorf("expected 3 subscribers, got %d", b.SubscriberCount(ProviderStarted))
	}
}

func TestSubscriber_PanicDoesNotStopDelivery(t *testing.T) {
	b := newTestBus()
	delivered := 0

	b.On(ProviderFailed, func(Event) { panic("boom") })
	b.On(ProviderFailed, func(Event) { delivered++ })

	b.Emit(ProviderFailed, "db", nil, nil)

	if delivered != 1 {
		t.Errorf("expected second subscriber to run, delivered=%d", delivered)
	}
	if b.Len() != 1 {
		t.Errorf("history corrupted, len=%d", b.Len())
	}
}

func TestOff(t *testing.T) {
	b := newTestBus()
	calls := 0
	sub := b.On(ProviderStarted, func(Event) { calls++ })
	allSub := b.OnAll(func(Event) { calls++ })

	if sub.Type() != ProviderStarted || allSub.Type() != "" {
		t.Error("unexpected subscription types")
	}
	if !b.Off(sub) || !b.Off(allSub) {
		t.Fatal("expected subscriptions to be removed")
	}
	if b.Off(sub) {
		t.Error("second Off should report false")
	}

	b.Emit(ProviderStarted, "db", nil, nil)
	if calls != 0 {
		t.Errorf("expected no deliveries, got %d", calls)
	}
}

func TestHandlerReceivesCopy(t *testing.T) {
	b := newTestBus()
	b.On(ProviderStarted, func(e Event) { e.Data["k"] = "mutated" })
	b.Emit(ProviderStarted, "db", map[string]any{"k": "v"}, nil)

	if b.History("db", 1)[0].Data["k"] != "v" {
		t.Error("subscriber mutated stored event")
	}
}
