package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/kbukum/backendkit/errors"
)

// WithTimeout runs fn and waits at most d for it. When d elapses first a
// TIMEOUT error for op is returned and fn keeps running in the background
// with a cancelled context; there is no guarantee it has stopped. A
// non-positive d runs fn without a deadline. A panic in fn is returned as
// an internal error.
func WithTimeout(ctx context.Context, d time.Duration, op string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return call(ctx, fn)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- call(tctx, fn) }()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Timeout(op).WithDetail("timeout", d.String())
	}
}

func call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal(fmt.Errorf("panic: %v", r))
		}
	}()
	return fn(ctx)
}
