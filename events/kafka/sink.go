package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kbukum/backendkit/events"
	"github.com/kbukum/backendkit/logger"
)

// messageWriter is the subset of *kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink publishes bus events to Kafka.
type Sink struct {
	writer  messageWriter
	queue   chan events.Event
	log     *logger.Logger
	sub     events.Subscription
	bus     *events.Bus
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
	sent    atomic.Int64
}

// NewSink creates a sink for cfg. It does not connect until events flow.
func NewSink(cfg Config, log *logger.Logger) (*Sink, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka sink config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("kafka sink is disabled")
	}
	w, err := newWriter(&cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka sink writer: %w", err)
	}
	return newSink(w, cfg.BufferSize, log), nil
}

func newSink(w messageWriter, buffer int, log *logger.Logger) *Sink {
	return &Sink{
		writer: w,
		queue:  make(chan events.Event, buffer),
		log:    log.WithComponent("events.kafka"),
	}
}

// Attach subscribes the sink to every event on bus and starts the writer
// goroutine. The goroutine exits when Close is called.
func (s *Sink) Attach(bus *events.Bus) {
	s.bus = bus
	s.sub = bus.OnAll(s.enqueue)
	s.wg.Add(1)
	go s.run()
}

func (s *Sink) enqueue(ev events.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	for ev := range s.queue {
		msg, err := Encode(ev)
		if err == nil {
			err = s.writer.WriteMessages(context.Background(), msg)
		}
		if err != nil {
			s.failed.Add(1)
			s.log.Warn("failed to publish event", logger.Fields(
				logger.FieldEvent, string(ev.Type),
				logger.FieldProvider, ev.ProviderID,
				logger.FieldError, err.Error(),
			))
			continue
		}
		s.sent.Add(1)
	}
}

// Close unsubscribes, drains the queue and closes the writer.
func (s *Sink) Close() error {
	var err error
	s.once.Do(func() {
		if s.bus != nil {
			s.bus.Off(s.sub)
		}
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.writer.Close()
	})
	return err
}

// Stats reports delivery counters.
func (s *Sink) Stats() (sent, failed, dropped int64) {
	return s.sent.Load(), s.failed.Load(), s.dropped.Load()
}

// Encode converts an event into a Kafka message keyed by provider.
func Encode(ev events.Event) (kafkago.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(ev.ProviderID),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "severity", Value: []byte(ev.Severity)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	}, nil
}
