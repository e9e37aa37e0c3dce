package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) component(name string, err error) Component {
	return NewFuncComponent(name, func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.order = append(r.order, name)
		return err
	})
}

// **Feature: playdate, Property 15: Shutdown runs in reverse registration order**
// *For any* number of registered components, shutdown SHALL stop each one
// exactly once in reverse order of registration.
func TestPropertyShutdownOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("components stop last-in first-out", prop.ForAll(
		func(n int) bool {
			rec := &recorder{}
			c := NewCoordinator(WithLogger(quietLogger()))
			names := make([]string, n)
			for i := range names {
				names[i] = string(rune('a' + i))
				c.Register(rec.component(names[i], nil))
			}

			if err := c.Shutdown(); err != nil {
				return false
			}
			// A second call is a no-op.
			if err := c.Shutdown(); err != nil {
				return false
			}

			if len(rec.order) != n {
				return false
			}
			for i, name := range rec.order {
				if name != names[n-1-i] {
					return false
				}
			}
			return c.ExitCode() == 0
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func TestShutdownCollectsErrors(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(WithLogger(quietLogger()))
	c.Register(rec.component("store", nil))
	c.Register(rec.component("reconciler", errors.New("boom")))

	err := c.Shutdown()
	require.Error(t, err)
	assert.ErrorContains(t, err, "reconciler: boom")
	assert.Equal(t, []string{"reconciler", "store"}, rec.order, "a failure does not stop later components")
	assert.Equal(t, 1, c.ExitCode())
}

func TestShutdownTimeoutSkipsRemaining(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(WithLogger(quietLogger()), WithTimeout(20*time.Millisecond))
	c.Register(rec.component("store", nil))
	c.Register(NewFuncComponent("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	err := c.Shutdown()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, rec.order)
	assert.Equal(t, 1, c.ExitCode())
}

type loop struct {
	stop chan struct{}
	once sync.Once
}

func (l *loop) Stop() { l.once.Do(func() { close(l.stop) }) }

func TestRunnerComponentWaitsForRun(t *testing.T) {
	l := &loop{stop: make(chan struct{})}
	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		<-l.stop
		time.Sleep(10 * time.Millisecond)
		close(finished)
		done <- nil
	}()

	comp := NewRunnerComponent("reconciler", l, done)
	require.NoError(t, comp.Shutdown(context.Background()))

	select {
	case <-finished:
	default:
		t.Fatal("shutdown returned before the runner exited")
	}
}

func TestRunnerComponentIgnoresCancellation(t *testing.T) {
	l := &loop{stop: make(chan struct{})}
	done := make(chan error, 1)
	done <- context.Canceled
	assert.NoError(t, NewRunnerComponent("reconciler", l, done).Shutdown(context.Background()))
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestWaitForSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	cl := &closer{}
	c := NewCoordinator(WithLogger(quietLogger()), WithSignalChannel(sigCh))
	c.Register(NewCloserComponent("store", cl))

	sigCh <- syscall.SIGTERM
	require.NoError(t, c.WaitForSignal(context.Background()))
	c.Wait()
	assert.True(t, cl.closed)
}

func TestWaitForSignalOnContextDone(t *testing.T) {
	c := NewCoordinator(WithLogger(quietLogger()), WithSignalChannel(make(chan os.Signal)))
	cl := &closer{}
	c.Register(NewCloserComponent("store", cl))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.WaitForSignal(ctx))
	assert.True(t, cl.closed)
}
