// Package events publishes comment lifecycle events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	StreamName     = "BLOG"
	StreamSubjects = "blog.>"

	SubjectCommentCreated = "blog.comments.created"
	SubjectCommentUpdated = "blog.comments.updated"
	SubjectCommentDeleted = "blog.comments.deleted"
	SubjectCommentLiked   = "blog.comments.liked"
	// SubjectReconcile carries unfinished work: comment ids still to be
	// removed and posts whose counters need a recount.
	SubjectReconcile = "blog.comments.reconcile"
)

// Event is the envelope for every blog.* subject.
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	CommentID  string    `json:"comment_id,omitempty"`
	PostID     string    `json:"post_id,omitempty"`
	ParentID   string    `json:"parent_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	// Removed is the number of comments a delete took out.
	Removed int  `json:"removed,omitempty"`
	Liked   bool `json:"liked,omitempty"`
	// Pending lists comment ids, children before parents.
	Pending []string `json:"pending,omitempty"`
	Recount bool     `json:"recount,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, ev Event) error
}

// NATSPublisher publishes to JetStream. A nil JetStream context makes it a
// stub that only logs.
type NATSPublisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

func NewNATS(js nats.JetStreamContext, log *zap.Logger) *NATSPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &NATSPublisher{js: js, log: log}
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, ev Event) error {
	stamp(&ev)
	if p.js == nil {
		p.log.Debug("NATS stub: skipping publish", zap.String("subject", subject), zap.String("event_id", ev.EventID))
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ack, err := p.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(ev.EventID))
	if err != nil {
		return err
	}
	p.log.Debug("NATS event published",
		zap.String("subject", subject),
		zap.String("event_id", ev.EventID),
		zap.Uint64("seq", ack.Sequence),
	)
	return nil
}

func stamp(ev *Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

// Published is one event captured by Recorder.
type Published struct {
	Subject string
	Event   Event
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	// Err, when set, is returned from every Publish.
	Err error
}

func (r *Recorder) Publish(_ context.Context, subject string, ev Event) error {
	stamp(&ev)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, Published{Subject: subject, Event: ev})
	return nil
}

// On returns the events published to subject, in order.
func (r *Recorder) On(subject string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, p := range r.events {
		if p.Subject == subject {
			out = append(out, p.Event)
		}
	}
	return out
}
