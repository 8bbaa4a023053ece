package store

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Metadata is the caller-visible mapping stored next to each embedding.
type Metadata map[string]any

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value under key when it is a string.
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// EncodeMetadata serializes metadata as a JSON object. A nil map encodes as {}.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(markFloats(map[string]any(m)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode metadata")
	}
	return raw, nil
}

// DecodeMetadata parses JSON produced by EncodeMetadata. Numbers written
// with a fraction or exponent come back as float64 and the rest as int64, so
// scalar tags keep their kind.
func DecodeMetadata(raw []byte) (Metadata, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Metadata{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode metadata")
	}
	for k, v := range out {
		out[k] = normalizeNumbers(v)
	}
	if out == nil {
		out = map[string]any{}
	}
	return Metadata(out), nil
}

// markFloats copies v, replacing integral floats with a literal that keeps a
// trailing ".0". encoding/json would otherwise write 2.0 as 2.
func markFloats(v any) any {
	switch val := v.(type) {
	case float64:
		return floatLiteral(val)
	case float32:
		return floatLiteral(float64(val))
	case Metadata:
		return markFloats(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = markFloats(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = markFloats(inner)
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = floatLiteral(inner)
		}
		return out
	default:
		return v
	}
}

func floatLiteral(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return f
	}
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64) + ".0")
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		lit := val.String()
		if !strings.ContainsAny(lit, ".eE") {
			if i, err := val.Int64(); err == nil {
				return i
			}
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return lit
	case map[string]any:
		for k, inner := range val {
			val[k] = normalizeNumbers(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalizeNumbers(inner)
		}
		return val
	default:
		return v
	}
}
