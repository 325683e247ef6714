package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/modoterra/uxhost/pkg/core"
)

func TestByName(t *testing.T) {
	for name, want := range map[string]string{"": NameJSON, "json": NameJSON, "CBOR": NameCBOR} {
		c, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if c.Name() != want {
			t.Errorf("ByName(%q) = %s, want %s", name, c.Name(), want)
		}
	}
	if _, err := ByName("msgpack"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("expected ErrUnknownCodec, got %v", err)
	}
}

// A payload streamed through either codec must decode into the same event.
func TestStreamPayloadDecodes(t *testing.T) {
	payload := map[string]any{
		"type":      "error",
		"step":      "upload",
		"message":   "failed",
		"timestamp": 1700000000123,
		"meta":      map[string]any{"code": 500},
	}

	for _, c := range []Codec{JSON, CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			var buf bytes.Buffer
			enc := c.NewEncoder(&buf)
			if err := enc.Encode(payload); err != nil {
				t.Fatal(err)
			}
			if err := enc.Encode(nil); err != nil {
				t.Fatal(err)
			}

			dec := c.NewDecoder(&buf)
			var first, second any
			if err := dec.Decode(&first); err != nil {
				t.Fatal(err)
			}
			if err := dec.Decode(&second); err != nil {
				t.Fatal(err)
			}

			res := core.Decode(first, nil)
			if !res.OK() {
				t.Fatalf("first value should decode, got %s", res.Outcome)
			}
			if res.Event.TimestampMillis != 1700000000123 {
				t.Errorf("timestamp: got %d", res.Event.TimestampMillis)
			}
			if res.Event.MetaString() != "{code: 500}" {
				t.Errorf("meta: got %q", res.Event.MetaString())
			}
			if core.Decode(second, nil).OK() {
				t.Error("null should be a shape mismatch")
			}
		})
	}
}

func TestConvert(t *testing.T) {
	step := "selfie"
	in := []core.Event{{Type: "stepStarted", Step: &step, TimestampMillis: 42}}

	for _, c := range []Codec{JSON, CBOR} {
		var generic any
		if err := Convert(c, in, &generic); err != nil {
			t.Fatalf("%s: %v", c.Name(), err)
		}
		var out []core.Event
		if err := Convert(c, generic, &out); err != nil {
			t.Fatalf("%s: %v", c.Name(), err)
		}
		if len(out) != 1 || out[0].Type != "stepStarted" || out[0].StepOr("") != "selfie" || out[0].TimestampMillis != 42 {
			t.Errorf("%s: got %+v", c.Name(), out)
		}
	}
}
