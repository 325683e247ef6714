package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// FormatMeta renders a meta mapping as a single human-readable line,
// e.g. {code: 500, reason: "timeout"}. Keys are sorted so the same
// mapping always produces the same text.
func FormatMeta(m map[string]any) string {
	var b strings.Builder
	writeObject(&b, m)
	return b.String()
}

func writeObject(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		writeValue(b, m[k])
	}
	b.WriteByte('}')
}

func writeValue(b *strings.Builder, v any) {
	if obj, ok := AsObject(v); ok {
		writeObject(b, obj)
		return
	}
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(x))
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case float64:
		b.WriteString(formatFloat(x, 64))
	case float32:
		b.WriteString(formatFloat(float64(x), 32))
	case json.Number:
		b.WriteString(x.String())
	case []byte:
		b.WriteString("0x")
		b.WriteString(hex.EncodeToString(x))
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	default:
		fmt.Fprint(b, x)
	}
}

func formatFloat(f float64, bits int) string {
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}
