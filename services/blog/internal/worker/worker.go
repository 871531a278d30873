// Package worker consumes blog.comments.reconcile and finishes work that a
// request could not: interrupted cascade deletes and post counter recounts.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/events"
	"github.com/example/blog-platform/services/blog/internal/posts"
)

const (
	Durable    = "blog_reconcile"
	DLQSubject = "blog.dlq"
)

type Handlers struct {
	ResumeDelete func(ctx context.Context, ids []string) (int, error)
	Reconcile    func(ctx context.Context, postID string) (comments.Report, error)
}

type Worker struct {
	Log      *zap.Logger
	JS       nats.JetStreamContext
	Handlers Handlers

	MaxDeliver int
	FetchWait  time.Duration
}

func New(log *zap.Logger, js nats.JetStreamContext, h Handlers) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{Log: log, JS: js, Handlers: h, MaxDeliver: 5, FetchWait: 2 * time.Second}
}

// Run pulls from the durable consumer until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.JS.PullSubscribe(events.SubjectReconcile, Durable)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.SubjectReconcile, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	w.Log.Info("consumer started", zap.String("subject", events.SubjectReconcile))
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(w.FetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			w.Log.Warn("fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			w.handleMsg(ctx, m)
		}
	}
}

func (w *Worker) handleMsg(ctx context.Context, m *nats.Msg) {
	numDelivered := uint64(1)
	if md, _ := m.Metadata(); md != nil {
		numDelivered = md.NumDelivered
	}

	switch res := w.Process(ctx, m.Data, numDelivered); res.Action {
	case Ack:
		_ = m.Ack()
	case Retry:
		_ = m.NakWithDelay(res.Delay)
	case DeadLetter:
		if err := w.publishDLQ(m.Data, res.Reason); err != nil {
			w.Log.Error("dlq publish failed", zap.Error(err))
			_ = m.NakWithDelay(res.Delay)
			return
		}
		_ = m.Ack()
	}
}

type Action int

const (
	Ack Action = iota
	Retry
	DeadLetter
)

type Result struct {
	Action Action
	Delay  time.Duration
	Reason string
}

// Process applies one reconcile message and decides what to do with it.
func (w *Worker) Process(ctx context.Context, data []byte, numDelivered uint64) Result {
	if w.MaxDeliver > 0 && int(numDelivered) > w.MaxDeliver {
		return Result{
			Action: DeadLetter,
			Delay:  backoffDelay(numDelivered),
			Reason: fmt.Sprintf("max deliveries exceeded: %d", numDelivered),
		}
	}

	var ev events.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		w.Log.Warn("bad payload", zap.String("subject", events.SubjectReconcile), zap.Error(err))
		return Result{Action: Ack}
	}
	log := w.Log.With(
		zap.String("event_id", ev.EventID),
		zap.String("post_id", ev.PostID),
		zap.Uint64("attempt", numDelivered),
	)

	if len(ev.Pending) > 0 {
		n, err := w.Handlers.ResumeDelete(ctx, ev.Pending)
		if err != nil {
			log.Warn("resume delete failed", zap.Strings("pending", ev.Pending), zap.Int("removed", n), zap.Error(err))
			return Result{Action: Retry, Delay: backoffDelay(numDelivered)}
		}
		log.Info("resumed delete", zap.Int("removed", n))
	}

	if ev.Recount && ev.PostID != "" {
		rep, err := w.Handlers.Reconcile(ctx, ev.PostID)
		if errors.Is(err, posts.ErrNotFound) {
			// the post was deleted along with its comments
			log.Info("post gone, nothing to recount")
			return Result{Action: Ack}
		}
		if err != nil {
			log.Warn("reconcile failed", zap.Error(err))
			return Result{Action: Retry, Delay: backoffDelay(numDelivered)}
		}
		log.Debug("reconciled", zap.Bool("changed", rep.Changed()))
	}
	return Result{Action: Ack}
}

func (w *Worker) publishDLQ(data []byte, reason string) error {
	msg := map[string]any{"subject": events.SubjectReconcile, "reason": reason, "payload": json.RawMessage(data)}
	b, _ := json.Marshal(msg)
	_, err := w.JS.Publish(DLQSubject, b)
	return err
}
