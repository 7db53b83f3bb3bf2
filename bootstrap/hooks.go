package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Hook is a lifecycle callback.
type Hook func(ctx context.Context) error

type phase string

const (
	phaseStart phase = "start"
	phaseReady phase = "ready"
	phaseStop  phase = "stop"
)

// OnStart adds hooks that run once providers are registered and the
// registry has started, before the admin API listens. The first failing
// hook aborts Start.
func (a *App) OnStart(hooks ...Hook) { a.onStart = append(a.onStart, hooks...) }

// OnReady adds hooks that run after the admin API is listening.
func (a *App) OnReady(hooks ...Hook) { a.onReady = append(a.onReady, hooks...) }

// OnStop adds hooks that run first during shutdown while providers are
// still up. They run in reverse registration order and all of them run.
func (a *App) OnStop(hooks ...Hook) { a.onStop = append(a.onStop, hooks...) }

func (a *App) runHooks(ctx context.Context, p phase) error {
	switch p {
	case phaseStop:
		var errs []error
		for i := len(a.onStop) - 1; i >= 0; i-- {
			if err := a.onStop[i](ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s hook %d: %w", p, i, err))
			}
		}
		return stderrors.Join(errs...)
	case phaseStart, phaseReady:
		hooks := a.onStart
		if p == phaseReady {
			hooks = a.onReady
		}
		for i, h := range hooks {
			if err := h(ctx); err != nil {
				return fmt.Errorf("%s hook %d: %w", p, i, err)
			}
		}
	}
	return nil
}
