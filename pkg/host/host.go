// Package host wires the event pipeline into a running process: it owns
// the log store, registers the bridge listener on the event channel and
// serves the control channel used by viewing surfaces.
package host

import (
	"context"
	"log/slog"
	"time"

	"github.com/modoterra/uxhost/internal/buildinfo"
	"github.com/modoterra/uxhost/pkg/bridge"
	"github.com/modoterra/uxhost/pkg/codec"
	"github.com/modoterra/uxhost/pkg/core"
	"github.com/modoterra/uxhost/pkg/logstore"
	"github.com/modoterra/uxhost/pkg/transport/uds"
)

// Host is the single creation point of the process-wide log store.
type Host struct {
	server   *uds.Server
	store    *logstore.Store
	listener *bridge.Listener
	logger   *slog.Logger
	started  time.Time
}

// New creates a host serving socketPath with codec c.
func New(socketPath string, c codec.Codec, logger *slog.Logger, opts ...bridge.Option) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	store := logstore.New()
	h := &Host{
		server:   uds.NewServer(socketPath, c, logger),
		store:    store,
		listener: bridge.NewListener(store, logger, opts...),
		logger:   logger,
		started:  time.Now(),
	}
	h.registerHandlers()
	return h
}

// Store returns the host's log store.
func (h *Host) Store() *logstore.Store {
	return h.store
}

// Listener returns the bridge listener registered on the event channel.
func (h *Host) Listener() *bridge.Listener {
	return h.listener
}

// Listen binds the socket so clients can connect once it returns.
func (h *Host) Listen() error {
	return h.server.Listen()
}

// Serve accepts connections and forwards store changes to connected
// clients until ctx is cancelled.
func (h *Host) Serve(ctx context.Context) error {
	go h.forwardChanges(ctx)
	return h.server.Serve(ctx)
}

// Run binds the socket and serves until ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Listen(); err != nil {
		return err
	}
	return h.Serve(ctx)
}

// Shutdown cleans up resources.
func (h *Host) Shutdown() {
	h.server.Shutdown()
}

func (h *Host) registerHandlers() {
	h.server.Handle(bridge.ChannelName, h.listener)
	h.server.Handle(uds.ControlChannel, bridge.HandlerFunc(h.handleControl))
}

func (h *Host) forwardChanges(ctx context.Context) {
	changes, cancel := h.store.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			h.server.Broadcast(uds.NewEvent(uds.EventLogChanged, c))
		}
	}
}

// StatsResponse is the result of the stats control method.
type StatsResponse struct {
	bridge.Stats
	Entries   int   `json:"entries"`
	NewestMs  int64 `json:"newest_ms,omitempty"`
	UptimeSec int64 `json:"uptime_sec"`
}

func (h *Host) handleControl(call bridge.MethodCall, result bridge.Result) {
	switch call.Method {
	case uds.MethodPing:
		result.Success(uds.PingResponse{Pong: true, Version: buildinfo.Version})
	case uds.MethodGetSnapshot:
		snap := h.store.Snapshot()
		if snap == nil {
			snap = []core.Event{}
		}
		result.Success(snap)
	case uds.MethodClear:
		h.store.Clear()
		h.logger.Info("log cleared")
		result.Success(nil)
	case uds.MethodStats:
		result.Success(h.stats())
	default:
		result.NotImplemented()
	}
}

func (h *Host) stats() StatsResponse {
	snap := h.store.Snapshot()
	resp := StatsResponse{
		Stats:     h.listener.Stats(),
		Entries:   len(snap),
		UptimeSec: int64(time.Since(h.started).Seconds()),
	}
	if len(snap) > 0 {
		resp.NewestMs = snap[0].TimestampMillis
	}
	return resp
}
