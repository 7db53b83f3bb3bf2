package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/backendkit/errors"
)

// Message is one received publication.
type Message struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
}

// Decode unmarshals a JSON payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal([]byte(m.Payload), v)
}

// Subscription delivers messages for a set of channels until closed.
type Subscription struct {
	ps       *goredis.PubSub
	out      chan Message
	owner    *Provider
	channels []string
	once     sync.Once
	done     chan struct{}
}

// Messages returns the delivery channel. It is closed when the
// subscription ends.
func (s *Subscription) Messages() <-chan Message { return s.out }

// Channels returns the subscribed channel names without the prefix.
func (s *Subscription) Channels() []string { return append([]string(nil), s.channels...) }

// Close ends the subscription.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.owner.forget(s)
	})
	return err
}

func (s *Subscription) pump(prefix string) {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- Message{Channel: strings.TrimPrefix(msg.Channel, prefix), Payload: msg.Payload}:
			case <-s.done:
				return
			}
		}
	}
}

func encodePayload(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", errors.InvalidInput("payload", err.Error())
		}
		return string(b), nil
	}
}

// Publish sends payload on channel and returns how many subscribers
// received it. Strings and byte slices are sent as is; anything else is
// encoded as JSON.
func (p *Provider) Publish(ctx context.Context, channel string, payload any) (int64, error) {
	rdb, s, err := p.client("publish")
	if err != nil {
		return 0, err
	}
	if channel == "" {
		return 0, errors.InvalidInput("channel", "channel is required")
	}
	body, err := encodePayload(payload)
	if err != nil {
		return 0, err
	}
	var receivers int64
	err = p.Recorder().Track(func() (err error) {
		receivers, err = rdb.Publish(ctx, s.ChannelPrefix+channel, body).Result()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("publish to %s: %w", channel, err)
	}
	p.Recorder().AddBusiness("messages_published", 1)
	return receivers, nil
}

// Subscribe listens on channels. The subscription is confirmed before it
// is returned, so a Publish that follows is delivered.
func (p *Provider) Subscribe(ctx context.Context, channels ...string) (*Subscription, error) {
	rdb, s, err := p.client("subscribe")
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, errors.InvalidInput("channels", "at least one channel is required")
	}
	full := make([]string, len(channels))
	for i, c := range channels {
		full[i] = s.ChannelPrefix + c
	}

	ps := rdb.Subscribe(ctx, full...)
	for range full {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe: %w", err)
		}
	}

	sub := &Subscription{
		ps:       ps,
		out:      make(chan Message, s.BufferSize),
		owner:    p,
		channels: append([]string(nil), channels...),
		done:     make(chan struct{}),
	}
	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()
	go sub.pump(s.ChannelPrefix)
	return sub, nil
}

func (p *Provider) forget(s *Subscription) {
	p.mu.Lock()
	delete(p.subs, s)
	p.mu.Unlock()
}

// SubscriptionCount returns the number of open subscriptions.
func (p *Provider) SubscriptionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}
