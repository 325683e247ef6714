package bridge

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/modoterra/uxhost/pkg/core"
)

// Appender is the write side of the log store.
type Appender interface {
	Append(ev core.Event)
}

// Stats counts how invocations were handled since the listener started.
type Stats struct {
	Accepted       uint64 `json:"accepted"`
	Dropped        uint64 `json:"dropped"`
	NotImplemented uint64 `json:"not_implemented"`
}

// Listener is the handler registered on ChannelName.
type Listener struct {
	store  Appender
	now    func() time.Time
	logger *slog.Logger

	accepted       atomic.Uint64
	dropped        atomic.Uint64
	notImplemented atomic.Uint64
}

// Option configures a Listener.
type Option func(*Listener)

// WithClock sets the clock used to stamp events that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		l.now = now
	}
}

// NewListener creates a listener that appends decoded events to store.
func NewListener(store Appender, logger *slog.Logger, opts ...Option) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HandleMethodCall decodes onKycEvent payloads into the store. Payloads
// that are not key-value structures are dropped but still acknowledged
// as success; other method names are answered with NotImplemented.
func (l *Listener) HandleMethodCall(call MethodCall, result Result) {
	if call.Method != MethodOnKycEvent {
		l.notImplemented.Add(1)
		l.logger.Warn("unsupported bridge method", "channel", ChannelName, "method", call.Method)
		result.NotImplemented()
		return
	}

	res := core.Decode(call.Arguments, l.now)
	if !res.OK() {
		l.dropped.Add(1)
		l.logger.Warn("dropped bridge payload", "method", call.Method, "outcome", res.Outcome.String(), "payload_type", payloadKind(call.Arguments))
		result.Success(nil)
		return
	}

	l.store.Append(res.Event)
	l.accepted.Add(1)
	l.logger.Debug("bridge event", "type", res.Event.Type, "step", res.Event.StepOr(""), "ts", res.Event.TimestampMillis)
	result.Success(nil)
}

// Stats returns the current counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Accepted:       l.accepted.Load(),
		Dropped:        l.dropped.Load(),
		NotImplemented: l.notImplemented.Load(),
	}
}

func payloadKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	default:
		return "other"
	}
}
