package bridge

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/modoterra/uxhost/pkg/logstore"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestListener() (*Listener, *logstore.Store) {
	store := logstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := NewListener(store, logger, WithClock(func() time.Time { return fixedNow }))
	return l, store
}

func TestOnKycEventFlowStarted(t *testing.T) {
	l, store := newTestListener()

	rep := Invoke(l, MethodCall{
		Method:    MethodOnKycEvent,
		Arguments: map[string]any{"type": "flowStarted", "message": "begin"},
	})
	if rep.Kind != ReplySuccess || rep.Value != nil {
		t.Fatalf("expected success(nil), got %+v", rep)
	}

	snap := store.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap))
	}
	ev := snap[0]
	if ev.Type != "flowStarted" || ev.Message != "begin" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.HasStep() || ev.HasMeta() {
		t.Errorf("step and meta should be absent: %+v", ev)
	}
	if ev.TimestampMillis != fixedNow.UnixMilli() {
		t.Errorf("timestamp: got %d, want %d", ev.TimestampMillis, fixedNow.UnixMilli())
	}
}

func TestOnKycEventWithMeta(t *testing.T) {
	l, store := newTestListener()

	Invoke(l, MethodCall{
		Method: MethodOnKycEvent,
		Arguments: map[string]any{
			"type":    "error",
			"step":    "upload",
			"message": "failed",
			"meta":    map[string]any{"code": float64(500)},
		},
	})

	ev := store.Snapshot()[0]
	if !strings.Contains(ev.MetaString(), "code: 500") {
		t.Errorf("meta text: got %q", ev.MetaString())
	}
}

func TestUnknownMethodNotImplemented(t *testing.T) {
	l, store := newTestListener()

	rep := Invoke(l, MethodCall{Method: "somethingElse", Arguments: map[string]any{"type": "x"}})
	if rep.Kind != ReplyNotImplemented {
		t.Errorf("expected not-implemented, got %s", rep.Kind)
	}
	if store.Len() != 0 {
		t.Error("store must be unchanged")
	}
	if got := l.Stats().NotImplemented; got != 1 {
		t.Errorf("not-implemented count: got %d", got)
	}
}

func TestNullPayloadDropped(t *testing.T) {
	l, store := newTestListener()

	for _, payload := range []any{nil, "text", 3.0, []any{1.0}} {
		rep := Invoke(l, MethodCall{Method: MethodOnKycEvent, Arguments: payload})
		if rep.Kind != ReplySuccess || rep.Value != nil {
			t.Errorf("payload %v: expected success(nil), got %+v", payload, rep)
		}
	}
	if store.Len() != 0 {
		t.Errorf("store should be empty, got %d", store.Len())
	}
	if got := l.Stats(); got.Dropped != 4 || got.Accepted != 0 {
		t.Errorf("stats: got %+v", got)
	}
}

func TestInvokeAlwaysReplies(t *testing.T) {
	silent := HandlerFunc(func(MethodCall, Result) {})
	if rep := Invoke(silent, MethodCall{Method: "x"}); rep.Kind != ReplyError || rep.Code != "no_reply" {
		t.Errorf("silent handler: got %+v", rep)
	}

	panicky := HandlerFunc(func(MethodCall, Result) { panic("boom") })
	if rep := Invoke(panicky, MethodCall{Method: "x"}); rep.Kind != ReplyError || rep.Code != "handler_panic" {
		t.Errorf("panicking handler: got %+v", rep)
	}

	twice := HandlerFunc(func(_ MethodCall, r Result) {
		r.Success("first")
		r.NotImplemented()
	})
	if rep := Invoke(twice, MethodCall{Method: "x"}); rep.Kind != ReplySuccess || rep.Value != "first" {
		t.Errorf("double reply: got %+v", rep)
	}
}
