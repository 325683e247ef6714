package core

import "time"

// DefaultType is substituted when a payload carries no usable type.
const DefaultType = "unknown"

// Event is one decoded occurrence reported by the embedded module.
// Values are never modified after Decode returns them.
type Event struct {
	Type            string         `json:"type"`
	Step            *string        `json:"step,omitempty"`
	Message         string         `json:"message"`
	Meta            map[string]any `json:"meta,omitempty"`
	MetaText        *string        `json:"meta_text,omitempty"`
	TimestampMillis int64          `json:"timestamp_ms"`
}

// HasStep reports whether the sender supplied a step. An empty string
// still counts as supplied.
func (e Event) HasStep() bool {
	return e.Step != nil
}

// StepOr returns the step, or fallback when it is absent or empty.
func (e Event) StepOr(fallback string) string {
	if e.Step == nil || *e.Step == "" {
		return fallback
	}
	return *e.Step
}

// HasMeta reports whether the sender supplied a meta mapping.
func (e Event) HasMeta() bool {
	return e.MetaText != nil
}

// MetaString returns the display form of meta, or "" when absent.
func (e Event) MetaString() string {
	if e.MetaText == nil {
		return ""
	}
	return *e.MetaText
}

// Time converts TimestampMillis to a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.TimestampMillis)
}

// Clone returns a copy of e that shares no pointers or maps with it.
func (e Event) Clone() Event {
	if e.Step != nil {
		step := *e.Step
		e.Step = &step
	}
	if e.MetaText != nil {
		text := *e.MetaText
		e.MetaText = &text
	}
	if e.Meta != nil {
		e.Meta = cloneObject(e.Meta)
	}
	return e
}
