package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

type ResilientOptions struct {
	// Timeout bounds every single attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialInterval seeds the exponential backoff.
	InitialInterval time.Duration
	Logger          *zap.Logger
}

// Resilient decorates a Store with per-call timeouts, bounded exponential
// retries on transient errors, and a circuit breaker that opens after
// repeated backend failures. Non-transient errors (not found, duplicate,
// encode failures) pass through on the first attempt and never trip the
// breaker.
type Resilient struct {
	next Store
	opts ResilientOptions
	cb   *gobreaker.CircuitBreaker
	log  *zap.Logger
}

func NewResilient(next Store, opts ResilientOptions) *Resilient {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "docstore",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Resilient{next: next, opts: opts, cb: cb, log: log}
}

func (r *Resilient) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.MaxRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		_, err := r.cb.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
			defer cancel()
			return nil, fn(callCtx)
		})
		if err == nil {
			return nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		r.log.Debug("docstore retry", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)
	return err
}

func (r *Resilient) Insert(ctx context.Context, coll, id string, doc any) error {
	// a retried insert that hits ErrDuplicate landed on an earlier attempt
	tries := 0
	return r.do(ctx, "insert", func(ctx context.Context) error {
		tries++
		err := r.next.Insert(ctx, coll, id, doc)
		if errors.Is(err, ErrDuplicate) && tries > 1 {
			return nil
		}
		return err
	})
}

func (r *Resilient) Get(ctx context.Context, coll, id string, dest any) error {
	return r.do(ctx, "get", func(ctx context.Context) error {
		return r.next.Get(ctx, coll, id, dest)
	})
}

func (r *Resilient) Set(ctx context.Context, coll, id string, fields map[string]any) error {
	return r.do(ctx, "set", func(ctx context.Context) error {
		return r.next.Set(ctx, coll, id, fields)
	})
}

// Delete retries like the reads do. When a later attempt finds nothing but
// an earlier one failed transiently, the earlier one may have committed, and
// ErrUnconfirmed is returned so the caller can repair what depends on it.
func (r *Resilient) Delete(ctx context.Context, coll, id string) (bool, error) {
	var removed, failedBefore bool
	err := r.do(ctx, "delete", func(ctx context.Context) error {
		ok, err := r.next.Delete(ctx, coll, id)
		if err != nil {
			failedBefore = true
			return err
		}
		removed = ok
		return nil
	})
	if err != nil {
		return false, err
	}
	if !removed && failedBefore {
		return false, ErrUnconfirmed
	}
	return removed, nil
}

func (r *Resilient) Find(ctx context.Context, coll string, q Query, dest any) error {
	return r.do(ctx, "find", func(ctx context.Context) error {
		return r.next.Find(ctx, coll, q, dest)
	})
}

func (r *Resilient) Count(ctx context.Context, coll string, q Query) (int, error) {
	var n int
	err := r.do(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = r.next.Count(ctx, coll, q)
		return err
	})
	return n, err
}

// Increment and Push are not idempotent, so they are attempted once.
// A transient failure is still reported to the breaker.

func (r *Resilient) Increment(ctx context.Context, coll, id, field string, delta int64) error {
	return r.once(ctx, func(ctx context.Context) error {
		return r.next.Increment(ctx, coll, id, field, delta)
	})
}

func (r *Resilient) Push(ctx context.Context, coll, id, field string, value any) error {
	return r.once(ctx, func(ctx context.Context) error {
		return r.next.Push(ctx, coll, id, field, value)
	})
}

func (r *Resilient) Pull(ctx context.Context, coll, id, field string, value any) error {
	return r.do(ctx, "pull", func(ctx context.Context) error {
		return r.next.Pull(ctx, coll, id, field, value)
	})
}

func (r *Resilient) Ping(ctx context.Context) error {
	return r.once(ctx, r.next.Ping)
}

// State exposes the breaker state for readiness reporting.
func (r *Resilient) State() gobreaker.State { return r.cb.State() }

func (r *Resilient) once(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
		return nil, fn(callCtx)
	})
	return err
}
