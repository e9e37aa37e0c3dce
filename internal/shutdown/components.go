package shutdown

import (
	"context"
	"io"
)

// CloserComponent wraps an io.Closer such as the store.
type CloserComponent struct {
	name   string
	closer io.Closer
}

// NewCloserComponent creates a new closer shutdown component.
func NewCloserComponent(name string, closer io.Closer) *CloserComponent {
	return &CloserComponent{name: name, closer: closer}
}

// Name returns the component name.
func (c *CloserComponent) Name() string {
	return c.name
}

// Shutdown closes the underlying resource.
func (c *CloserComponent) Shutdown(context.Context) error {
	return c.closer.Close()
}

// FuncComponent wraps a shutdown function, such as a trace flush.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a new function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{name: name, fn: fn}
}

// Name returns the component name.
func (c *FuncComponent) Name() string {
	return c.name
}

// Shutdown calls the wrapped function.
func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}

// Stopper is a background loop that can be asked to stop.
type Stopper interface {
	Stop()
}

// RunnerComponent stops a background loop and waits for its Run call to
// return, so an in-progress pass completes before later components close.
type RunnerComponent struct {
	name   string
	runner Stopper
	done   <-chan error
}

// NewRunnerComponent creates a component for runner. done must receive the
// result of runner's Run.
func NewRunnerComponent(name string, runner Stopper, done <-chan error) *RunnerComponent {
	return &RunnerComponent{name: name, runner: runner, done: done}
}

// Name returns the component name.
func (c *RunnerComponent) Name() string {
	return c.name
}

// Shutdown stops the runner and waits for it to exit.
func (c *RunnerComponent) Shutdown(ctx context.Context) error {
	c.runner.Stop()
	select {
	case err := <-c.done:
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
