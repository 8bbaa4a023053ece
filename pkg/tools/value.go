package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidArguments = goerr.New("invalid tool arguments")

// Value is a validated argument. Exactly one accessor matches its Type.
type Value struct {
	kind ParamType
	str  string
	num  float64
	i    int64
	b    bool
}

func StringValue(s string) Value  { return Value{kind: TypeString, str: s} }
func NumberValue(f float64) Value { return Value{kind: TypeNumber, num: f} }
func IntegerValue(i int64) Value  { return Value{kind: TypeInteger, i: i} }
func BooleanValue(b bool) Value   { return Value{kind: TypeBoolean, b: b} }

func (v Value) Type() ParamType { return v.kind }
func (v Value) Str() string     { return v.str }
func (v Value) Int() int64      { return v.i }
func (v Value) Bool() bool      { return v.b }

// Float returns the numeric value of number and integer values.
func (v Value) Float() float64 {
	if v.kind == TypeInteger {
		return float64(v.i)
	}
	return v.num
}

// Any returns the value as a plain Go value for JSON encoding.
func (v Value) Any() any {
	switch v.kind {
	case TypeString:
		return v.str
	case TypeNumber:
		return v.num
	case TypeInteger:
		return v.i
	case TypeBoolean:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case TypeString:
		return v.str
	case TypeNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case TypeInteger:
		return strconv.FormatInt(v.i, 10)
	case TypeBoolean:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Args are the coerced arguments handed to a Handler. Absent optional
// parameters without a default are missing from the map.
type Args map[string]Value

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a Args) String(name string) string { return a[name].Str() }
func (a Args) Int(name string) int64     { return a[name].Int() }
func (a Args) Float(name string) float64 { return a[name].Float() }
func (a Args) Bool(name string) bool     { return a[name].Bool() }

// Map converts the arguments back to plain values.
func (a Args) Map() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v.Any()
	}
	return out
}

// ArgumentError lists every problem found while coercing arguments.
type ArgumentError struct {
	Problems []string
}

func (e *ArgumentError) Error() string { return strings.Join(e.Problems, "; ") }
func (e *ArgumentError) Unwrap() error { return ErrInvalidArguments }

// Coerce checks raw model arguments against params. Unknown keys are ignored.
func Coerce(params []Param, raw map[string]any) (Args, error) {
	args := make(Args, len(params))
	var problems []string
	for _, p := range params {
		rv, present := raw[p.Name]
		if !present || rv == nil {
			switch {
			case p.Required:
				problems = append(problems, fmt.Sprintf("missing required parameter %q", p.Name))
			case p.Default != nil:
				v, err := coerceValue(p, p.Default)
				if err != nil {
					problems = append(problems, fmt.Sprintf("default for %q: %s", p.Name, err))
					continue
				}
				args[p.Name] = v
			}
			continue
		}
		v, err := coerceValue(p, rv)
		if err != nil {
			problems = append(problems, fmt.Sprintf("parameter %q %s", p.Name, err))
			continue
		}
		args[p.Name] = v
	}
	if len(problems) > 0 {
		return nil, &ArgumentError{Problems: problems}
	}
	return args, nil
}

type coerceError string

func (e coerceError) Error() string { return string(e) }

func coerceValue(p Param, raw any) (Value, error) {
	switch p.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return Value{}, coerceError(fmt.Sprintf("must be a string, got %s", describe(raw)))
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return Value{}, coerceError(fmt.Sprintf("must be one of %s", strings.Join(p.Enum, ", ")))
		}
		return StringValue(s), nil

	case TypeNumber:
		f, ok := asFloat(raw)
		if !ok {
			return Value{}, coerceError(fmt.Sprintf("must be a number, got %s", describe(raw)))
		}
		return NumberValue(f), nil

	case TypeInteger:
		f, ok := asFloat(raw)
		if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return Value{}, coerceError(fmt.Sprintf("must be an integer, got %s", describe(raw)))
		}
		if n, isNum := raw.(json.Number); isNum {
			if i, err := n.Int64(); err == nil {
				return IntegerValue(i), nil
			}
		}
		return IntegerValue(int64(f)), nil

	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, coerceError(fmt.Sprintf("must be a boolean, got %s", describe(raw)))
		}
		return BooleanValue(b), nil
	}
	return Value{}, coerceError(fmt.Sprintf("has unsupported type %q", p.Type))
}

func asFloat(raw any) (float64, bool) {
	var f float64
	switch n := raw.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func describe(raw any) string {
	switch raw.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float32, float64, int, int32, int64, uint, uint32, uint64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", raw)
	}
}
