package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Outcome tags the result of decoding a raw payload.
type Outcome int

const (
	// OutcomeDecoded means the payload was a key-value structure and
	// produced an Event. Individual bad fields were replaced by defaults.
	OutcomeDecoded Outcome = iota
	// OutcomeShapeMismatch means the payload itself was not a key-value
	// structure (nil, scalar, list) and no Event was produced.
	OutcomeShapeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecoded:
		return "decoded"
	case OutcomeShapeMismatch:
		return "shape-mismatch"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// DecodeResult is the tagged result of Decode.
type DecodeResult struct {
	Outcome Outcome
	Event   Event
}

// OK reports whether an Event was produced.
func (r DecodeResult) OK() bool {
	return r.Outcome == OutcomeDecoded
}

// Payload keys understood by Decode.
const (
	KeyType      = "type"
	KeyStep      = "step"
	KeyMessage   = "message"
	KeyTimestamp = "timestamp"
	KeyMeta      = "meta"
)

// Decode turns an untyped channel payload into an Event. It never fails
// on individual fields: a missing or mistyped type becomes "unknown", a
// missing message becomes "", a missing timestamp becomes now(), and a
// non-string step or non-object meta is treated as absent.
func Decode(payload any, now func() time.Time) DecodeResult {
	args, ok := AsObject(payload)
	if !ok {
		return DecodeResult{Outcome: OutcomeShapeMismatch}
	}
	if now == nil {
		now = time.Now
	}

	ev := Event{
		Type:    DefaultType,
		Message: "",
	}
	if s, ok := args[KeyType].(string); ok {
		ev.Type = s
	}
	if s, ok := args[KeyStep].(string); ok {
		step := s
		ev.Step = &step
	}
	if s, ok := args[KeyMessage].(string); ok {
		ev.Message = s
	}

	if ms, ok := toMillis(args[KeyTimestamp]); ok {
		ev.TimestampMillis = ms
	} else {
		ev.TimestampMillis = now().UnixMilli()
	}

	if meta, ok := AsObject(args[KeyMeta]); ok {
		ev.Meta = cloneObject(meta)
		text := FormatMeta(ev.Meta)
		ev.MetaText = &text
	}

	return DecodeResult{Outcome: OutcomeDecoded, Event: ev}
}

// AsObject reports whether v is a key-value structure and returns it
// keyed by string. Transports produce map[string]any (JSON) or
// map[any]any (generic CBOR); non-string keys are formatted with fmt.
func AsObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		if m == nil {
			return nil, false
		}
		return m, true
	case map[any]any:
		if m == nil {
			return nil, false
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			if s, ok := k.(string); ok {
				out[s] = val
			} else {
				out[fmt.Sprint(k)] = val
			}
		}
		return out, true
	case map[string]string:
		if m == nil {
			return nil, false
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// toMillis coerces a numeric value to integer milliseconds. Fractional
// values are truncated toward zero.
func toMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return uintMillis(uint64(n))
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return uintMillis(n)
	case float32:
		return floatMillis(float64(n))
	case float64:
		return floatMillis(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatMillis(f)
	default:
		return 0, false
	}
}

func uintMillis(n uint64) (int64, bool) {
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

func floatMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// cloneObject deep-copies nested maps and slices so the stored Event does
// not share mutable state with the transport's payload.
func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	if obj, ok := AsObject(v); ok {
		return cloneObject(obj)
	}
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}
