package host

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modoterra/uxhost/pkg/bridge"
	"github.com/modoterra/uxhost/pkg/codec"
	"github.com/modoterra/uxhost/pkg/core"
	"github.com/modoterra/uxhost/pkg/transport/uds"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startHost(t *testing.T, c codec.Codec) (*Host, *uds.Client) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "host.sock")
	h := New(sock, c, testLogger())
	if err := h.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go h.Serve(ctx)

	client, err := uds.Dial(sock, c)
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		cancel()
		h.Shutdown()
	})
	return h, client
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEventsReachSnapshot(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON, codec.CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			h, client := startHost(t, c)
			ctx := callCtx(t)

			emit := func(args any) {
				t.Helper()
				if err := client.Call(ctx, bridge.ChannelName, bridge.MethodOnKycEvent, args, nil); err != nil {
					t.Fatalf("emit: %v", err)
				}
			}
			emit(map[string]any{"type": "flowStarted", "message": "begin", "timestamp": 1000})
			emit(map[string]any{"type": "error", "step": "upload", "message": "failed", "meta": map[string]any{"code": 500}, "timestamp": 2000})
			emit(nil)

			var snap []core.Event
			if err := client.Call(ctx, uds.ControlChannel, uds.MethodGetSnapshot, nil, &snap); err != nil {
				t.Fatalf("getSnapshot: %v", err)
			}
			if len(snap) != 2 {
				t.Fatalf("expected 2 events, got %d", len(snap))
			}
			if snap[0].Type != "error" || snap[1].Type != "flowStarted" {
				t.Errorf("order: got %q, %q", snap[0].Type, snap[1].Type)
			}
			if snap[0].StepOr("") != "upload" || snap[0].MetaString() != "{code: 500}" {
				t.Errorf("error event: %+v", snap[0])
			}
			if snap[1].HasStep() || snap[1].HasMeta() {
				t.Errorf("flowStarted should have no step or meta: %+v", snap[1])
			}
			if h.Store().Len() != 2 {
				t.Errorf("store len: got %d", h.Store().Len())
			}

			var stats StatsResponse
			if err := client.Call(ctx, uds.ControlChannel, uds.MethodStats, nil, &stats); err != nil {
				t.Fatalf("stats: %v", err)
			}
			if stats.Accepted != 2 || stats.Dropped != 1 || stats.Entries != 2 || stats.NewestMs != 2000 {
				t.Errorf("stats: got %+v", stats)
			}
		})
	}
}

func TestClearOverControlChannel(t *testing.T) {
	h, client := startHost(t, codec.JSON)
	ctx := callCtx(t)

	h.Store().Append(core.Event{Type: "flowStarted"})
	if err := client.Call(ctx, uds.ControlChannel, uds.MethodClear, nil, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}

	var snap []core.Event
	if err := client.Call(ctx, uds.ControlChannel, uds.MethodGetSnapshot, nil, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %d", len(snap))
	}
}

func TestUnknownMethods(t *testing.T) {
	h, client := startHost(t, codec.JSON)
	ctx := callCtx(t)

	if _, err := client.Request(ctx, bridge.ChannelName, "somethingElse", map[string]any{"type": "x"}); !errors.Is(err, uds.ErrNotImplemented) {
		t.Errorf("bridge: expected ErrNotImplemented, got %v", err)
	}
	if _, err := client.Request(ctx, uds.ControlChannel, "reboot", nil); !errors.Is(err, uds.ErrNotImplemented) {
		t.Errorf("control: expected ErrNotImplemented, got %v", err)
	}
	if h.Store().Len() != 0 {
		t.Error("store must be unchanged")
	}
}

func TestChangesBroadcast(t *testing.T) {
	h, client := startHost(t, codec.JSON)

	got := make(chan uds.Message, 4)
	client.OnEvent(func(msg uds.Message) { got <- msg })

	var pong uds.PingResponse
	if err := client.Call(callCtx(t), uds.ControlChannel, uds.MethodPing, nil, &pong); err != nil || !pong.Pong {
		t.Fatalf("ping: %v %+v", err, pong)
	}

	h.Store().Append(core.Event{Type: "stepStarted"})

	select {
	case msg := <-got:
		if msg.Method != uds.EventLogChanged {
			t.Errorf("method: got %q", msg.Method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for log.changed")
	}
}
