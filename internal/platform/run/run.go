package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

type Runner struct {
	Logger *zap.Logger
	// ShutdownTimeout bounds each registered closer; default 10s.
	ShutdownTimeout time.Duration

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func New(log *zap.Logger) *Runner {
	return &Runner{Logger: log, ShutdownTimeout: 10 * time.Second}
}

// OnShutdown registers fn to run after start returns or a signal arrives.
// Closers run in reverse registration order.
func (r *Runner) OnShutdown(name string, fn func(context.Context) error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// WithSignals runs start until it returns or SIGINT/SIGTERM arrives, then
// runs the registered closers. It returns the process exit code.
func (r *Runner) WithSignals(start func(ctx context.Context) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, start)
}

func (r *Runner) run(ctx context.Context, start func(ctx context.Context) error) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start(ctx)
	}()

	code := 0
	select {
	case <-ctx.Done():
		r.Logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error("service exited with error", zap.Error(err))
			code = 1
		}
	}
	r.shutdown()
	return code
}

func (r *Runner) shutdown() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		ctx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
		if err := c.fn(ctx); err != nil {
			r.Logger.Warn("shutdown step failed", zap.String("step", c.name), zap.Error(err))
		}
		cancel()
	}
}

func Exit(code int) {
	os.Exit(code)
}
