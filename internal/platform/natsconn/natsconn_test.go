package natsconn

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

const week = 7 * 24 * time.Hour

// fakeJS keeps stream configs in memory. Methods EnsureStream does not use
// panic through the nil embedded interface.
type fakeJS struct {
	nats.JetStreamContext
	streams map[string]nats.StreamConfig
	infoErr error
	added   int
	updated int
}

func newFakeJS() *fakeJS {
	return &fakeJS{streams: map[string]nats.StreamConfig{}}
}

func (f *fakeJS) StreamInfo(name string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	cfg, ok := f.streams[name]
	if !ok {
		return nil, nats.ErrStreamNotFound
	}
	cfg.Subjects = slices.Clone(cfg.Subjects)
	return &nats.StreamInfo{Config: cfg}, nil
}

func (f *fakeJS) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.added++
	f.streams[cfg.Name] = *cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJS) UpdateStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.updated++
	f.streams[cfg.Name] = *cfg
	return &nats.StreamInfo{Config: *cfg}, nil
}

func TestEnsureStream_CreatesMissingStream(t *testing.T) {
	js := newFakeJS()
	if err := EnsureStream(js, "BLOG", "blog.>", week); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	got, ok := js.streams["BLOG"]
	if !ok || js.added != 1 {
		t.Fatalf("expected stream to be added once, added=%d", js.added)
	}
	if !slices.Equal(got.Subjects, []string{"blog.>"}) {
		t.Fatalf("unexpected subjects %v", got.Subjects)
	}
	if got.Storage != nats.FileStorage || got.MaxAge != week {
		t.Fatalf("unexpected retention storage=%v max_age=%s", got.Storage, got.MaxAge)
	}
}

func TestEnsureStream_LeavesMatchingStreamAlone(t *testing.T) {
	js := newFakeJS()
	js.streams["BLOG"] = nats.StreamConfig{Name: "BLOG", Subjects: []string{"blog.>"}, MaxAge: time.Hour}

	for i := 0; i < 2; i++ {
		if err := EnsureStream(js, "BLOG", "blog.>", week); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}
	if js.added != 0 || js.updated != 0 {
		t.Fatalf("expected no writes, added=%d updated=%d", js.added, js.updated)
	}
	if js.streams["BLOG"].MaxAge != time.Hour {
		t.Fatal("existing retention must not be overwritten")
	}
}

func TestEnsureStream_WidensExistingSubjects(t *testing.T) {
	js := newFakeJS()
	js.streams["BLOG"] = nats.StreamConfig{
		Name:     "BLOG",
		Subjects: []string{"blog.comments.created"},
		Storage:  nats.FileStorage,
		MaxAge:   48 * time.Hour,
	}

	if err := EnsureStream(js, "BLOG", "blog.comments.reconcile", week); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	got := js.streams["BLOG"]
	if js.updated != 1 || js.added != 0 {
		t.Fatalf("expected one update, added=%d updated=%d", js.added, js.updated)
	}
	want := []string{"blog.comments.created", "blog.comments.reconcile"}
	if !slices.Equal(got.Subjects, want) {
		t.Fatalf("expected subjects %v, got %v", want, got.Subjects)
	}
	if got.MaxAge != 48*time.Hour {
		t.Fatalf("widening must keep retention, got %s", got.MaxAge)
	}
}

func TestEnsureStream_PropagatesLookupFailure(t *testing.T) {
	js := newFakeJS()
	js.infoErr = nats.ErrJetStreamNotEnabled

	err := EnsureStream(js, "BLOG", "blog.>", week)
	if !errors.Is(err, nats.ErrJetStreamNotEnabled) {
		t.Fatalf("expected jetstream error, got %v", err)
	}
	if js.added != 0 || js.updated != 0 {
		t.Fatal("a failed lookup must not create the stream")
	}
}

func TestEnvInt(t *testing.T) {
	cases := map[string]int{"": 5, "0": 0, "12": 12, "-1": 5, "many": 5}
	for raw, want := range cases {
		t.Setenv("NATS_MAX_RECONNECTS", raw)
		if got := envInt("NATS_MAX_RECONNECTS", 5); got != want {
			t.Fatalf("NATS_MAX_RECONNECTS=%q: expected %d, got %d", raw, want, got)
		}
	}
}

func TestEnvDuration(t *testing.T) {
	cases := map[string]time.Duration{"": 2 * time.Second, "250ms": 250 * time.Millisecond, "0s": 2 * time.Second, "soon": 2 * time.Second}
	for raw, want := range cases {
		t.Setenv("NATS_RECONNECT_WAIT", raw)
		if got := envDuration("NATS_RECONNECT_WAIT", 2*time.Second); got != want {
			t.Fatalf("NATS_RECONNECT_WAIT=%q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestConnect_UnreachableServerFailsFast(t *testing.T) {
	start := time.Now()
	_, err := Connect(Options{
		URL:           "nats://127.0.0.1:19999",
		Name:          "blog",
		MaxReconnects: 1,
		ReconnectWait: 10 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error connecting to an unreachable server")
	}
	if !strings.Contains(err.Error(), "nats://127.0.0.1:19999") {
		t.Fatalf("expected the url in the error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("connect must not retry before the first success")
	}
}
