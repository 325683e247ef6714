package core

import "testing"

func TestFormatMeta(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want string
	}{
		{"empty", map[string]any{}, "{}"},
		{"sorted keys", map[string]any{"b": 1.0, "a": "x"}, `{a: "x", b: 1}`},
		{"nested", map[string]any{"err": map[string]any{"code": 500.0}}, "{err: {code: 500}}"},
		{"list and null", map[string]any{"l": []any{true, nil}}, "{l: [true, null]}"},
		{"fraction", map[string]any{"score": 0.25}, "{score: 0.25}"},
		{"bytes", map[string]any{"raw": []byte{0xca, 0xfe}}, "{raw: 0xcafe}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatMeta(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatMetaDeterministic(t *testing.T) {
	m := map[string]any{"z": 1.0, "y": 2.0, "x": 3.0, "w": map[string]any{"b": 1.0, "a": 2.0}}
	first := FormatMeta(m)
	for i := 0; i < 20; i++ {
		if got := FormatMeta(m); got != first {
			t.Fatalf("run %d: %q != %q", i, got, first)
		}
	}
}
