package uds

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modoterra/uxhost/pkg/bridge"
	"github.com/modoterra/uxhost/pkg/codec"
	"github.com/modoterra/uxhost/pkg/logstore"
)

func startServer(t *testing.T, c codec.Codec) (*Server, string, context.CancelFunc) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "test.sock")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	srv := NewServer(sock, c, logger)
	srv.Handle(ControlChannel, bridge.HandlerFunc(func(call bridge.MethodCall, r bridge.Result) {
		if call.Method == MethodPing {
			r.Success(PingResponse{Pong: true})
			return
		}
		r.NotImplemented()
	}))
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
	})
	return srv, sock, cancel
}

func dial(t *testing.T, sock string, c codec.Codec) *Client {
	t.Helper()
	client, err := Dial(sock, c)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func reqCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPingRoundTrip(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON, codec.CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			_, sock, _ := startServer(t, c)
			client := dial(t, sock, c)

			var pong PingResponse
			if err := client.Call(reqCtx(t), ControlChannel, MethodPing, nil, &pong); err != nil {
				t.Fatalf("ping request: %v", err)
			}
			if !pong.Pong {
				t.Error("expected pong=true")
			}
		})
	}
}

func TestUnknownChannel(t *testing.T) {
	_, sock, _ := startServer(t, codec.JSON)
	client := dial(t, sock, codec.JSON)

	_, err := client.Request(reqCtx(t), "no/such/channel", "x", nil)
	if err == nil {
		t.Error("expected error for unknown channel")
	}
	if errors.Is(err, ErrNotImplemented) {
		t.Error("unknown channel is not a not-implemented reply")
	}
}

func TestUnknownMethodNotImplemented(t *testing.T) {
	_, sock, _ := startServer(t, codec.JSON)
	client := dial(t, sock, codec.JSON)

	resp, err := client.Request(reqCtx(t), ControlChannel, "NoSuchMethod", nil)
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if !resp.NotImplemented {
		t.Error("response should carry not_implemented")
	}
}

func TestBridgeChannelOverSocket(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON, codec.CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			srv, sock, _ := startServer(t, c)
			store := logstore.New()
			srv.Handle(bridge.ChannelName, bridge.NewListener(store, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))))

			client := dial(t, sock, c)
			ctx := reqCtx(t)

			resp, err := client.Request(ctx, bridge.ChannelName, bridge.MethodOnKycEvent, map[string]any{
				"type": "error", "step": "upload", "message": "failed", "meta": map[string]any{"code": 500},
			})
			if err != nil {
				t.Fatalf("onKycEvent: %v", err)
			}
			if resp.Result != nil {
				t.Errorf("expected null result, got %v", resp.Result)
			}

			if _, err := client.Request(ctx, bridge.ChannelName, bridge.MethodOnKycEvent, nil); err != nil {
				t.Fatalf("null payload should be acknowledged: %v", err)
			}

			if _, err := client.Request(ctx, bridge.ChannelName, "somethingElse", nil); !errors.Is(err, ErrNotImplemented) {
				t.Errorf("expected ErrNotImplemented, got %v", err)
			}

			snap := store.Snapshot()
			if len(snap) != 1 {
				t.Fatalf("expected 1 stored event, got %d", len(snap))
			}
			if snap[0].MetaString() != "{code: 500}" {
				t.Errorf("meta: got %q", snap[0].MetaString())
			}
		})
	}
}

func TestCBORNonStringKeys(t *testing.T) {
	srv, sock, _ := startServer(t, codec.CBOR)
	store := logstore.New()
	srv.Handle(bridge.ChannelName, bridge.NewListener(store, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))))

	client := dial(t, sock, codec.CBOR)
	ctx := reqCtx(t)

	args := map[any]any{
		"type": "stepCompleted",
		"step": "document",
		"meta": map[any]any{1: "front", "code": 500},
	}
	if _, err := client.Request(ctx, bridge.ChannelName, bridge.MethodOnKycEvent, args); err != nil {
		t.Fatalf("onKycEvent: %v", err)
	}

	snap := store.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(snap))
	}
	if got, want := snap[0].MetaString(), `{1: "front", code: 500}`; got != want {
		t.Errorf("meta: got %q, want %q", got, want)
	}

	if _, err := client.Request(ctx, ControlChannel, MethodPing, nil); err != nil {
		t.Errorf("connection should stay usable: %v", err)
	}
}

// A client that never reads must not hold up broadcasts or other clients.
func TestStalledClientDoesNotBlockCalls(t *testing.T) {
	srv, sock, _ := startServer(t, codec.JSON)
	store := logstore.New()
	srv.Handle(bridge.ChannelName, bridge.NewListener(store, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))))

	stalled, err := net.Dial("unix", sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { stalled.Close() })

	// Connections are accepted in order, so once this ping is answered
	// the stalled connection is registered.
	viewer := dial(t, sock, codec.JSON)
	if _, err := viewer.Request(reqCtx(t), ControlChannel, MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			srv.Broadcast(NewEvent(EventLogChanged, logstore.Change{Kind: logstore.ChangeAppend, Len: i}))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a client that does not read")
	}

	module := dial(t, sock, codec.JSON)
	if _, err := module.Request(reqCtx(t), bridge.ChannelName, bridge.MethodOnKycEvent, map[string]any{"type": "flowStarted"}); err != nil {
		t.Fatalf("onKycEvent after broadcasts: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 stored event, got %d", store.Len())
	}
	if _, err := viewer.Request(reqCtx(t), ControlChannel, MethodPing, nil); err != nil {
		t.Errorf("reading client should still be served: %v", err)
	}
}

func TestBroadcastEvent(t *testing.T) {
	srv, sock, _ := startServer(t, codec.JSON)
	client := dial(t, sock, codec.JSON)

	evtCh := make(chan Message, 1)
	client.OnEvent(func(msg Message) {
		evtCh <- msg
	})

	// Ensure connection is registered by doing a ping first
	if _, err := client.Request(reqCtx(t), ControlChannel, MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	srv.Broadcast(NewEvent(EventLogChanged, logstore.Change{Kind: logstore.ChangeAppend, Len: 1}))

	select {
	case msg := <-evtCh:
		if msg.Method != EventLogChanged {
			t.Errorf("expected method %s, got %s", EventLogChanged, msg.Method)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for broadcast event")
	}
}

func TestRequestAfterServerShutdown(t *testing.T) {
	srv, sock, cancel := startServer(t, codec.JSON)
	client := dial(t, sock, codec.JSON)
	if _, err := client.Request(reqCtx(t), ControlChannel, MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	cancel()
	srv.Shutdown()

	if _, err := client.Request(reqCtx(t), ControlChannel, MethodPing, nil); err == nil {
		t.Error("expected error after shutdown")
	}
}
