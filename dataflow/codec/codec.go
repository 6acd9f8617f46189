// Package codec converts bundles of typed domain values to and from the
// JSON-safe wire form the cache and RPC layers store and transmit (spec.md
// §4.7, C7), substituting non-finite floats for symbolic placeholders since
// JSON has no literal for them.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

const (
	nanString      = "⚠" // WARNING SIGN
	infString      = "∞" // INFINITY
	minusInfString = "-∞"
)

// Sanitize walks obj — whether it is JSON-generic (map[string]any/[]any, as
// produced by json.Unmarshal) or a domain value's own Go-native result (a
// registry.Value.Serialize implementation is free to return []float64,
// []string, or a map with a concrete value type instead of building the
// generic shape by hand) — and replaces +Inf/-Inf/NaN floats with their
// symbolic string form so the result is representable by encoding/json.
func Sanitize(obj any) any {
	switch v := obj.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = Sanitize(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = Sanitize(e)
		}
		return out
	case float64:
		return sanitizeFloat(v)
	case float32:
		return sanitizeFloat(float64(v))
	}

	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return obj
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Sanitize(iter.Value().Interface())
		}
		return out
	default:
		return obj
	}
}

func sanitizeFloat(v float64) any {
	switch {
	case math.IsInf(v, 1):
		return infString
	case math.IsInf(v, -1):
		return minusInfString
	case math.IsNaN(v):
		return nanString
	default:
		return v
	}
}

// Desanitize reverses Sanitize: symbolic strings for non-finite floats are
// converted back to their float64 values; anything else is returned
// unchanged.
func Desanitize(obj any) any {
	switch v := obj.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = Desanitize(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = Desanitize(e)
		}
		return out
	case string:
		switch v {
		case infString:
			return math.Inf(1)
		case minusInfString:
			return math.Inf(-1)
		case nanString:
			return math.NaN()
		default:
			return v
		}
	default:
		return obj
	}
}

// EncodeBundle serializes b's values through their registry.Value.Serialize
// hook, sanitizes the result, and marshals it to JSON bytes.
//
// Sanitize must run on the native Go value tree before marshaling: the raw
// serialized state may contain non-finite floats, and encoding/json errors
// on those, so marshaling first would defeat the whole point of
// sanitization.
func EncodeBundle(b registry.Bundle) ([]byte, error) {
	values := make([]any, len(b.Values))
	for i, v := range b.Values {
		state, err := v.Serialize()
		if err != nil {
			return nil, fmt.Errorf("codec: serializing value %d of datatype %s: %w", i, b.Datatype, err)
		}
		values[i] = state
	}
	wire := map[string]any{"datatype": b.Datatype, "values": values}
	return json.Marshal(Sanitize(wire))
}

// DecodeBundle parses data into a Bundle, constructing one empty Value per
// element via newValue and populating it through Deserialize. newValue is
// typically a registry.DataType's New factory looked up by the wire's
// reported datatype id.
func DecodeBundle(data []byte, newValue func(datatype string) (registry.ValueFactory, error)) (registry.Bundle, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return registry.Bundle{}, err
	}
	clean := Desanitize(generic)

	m, ok := clean.(map[string]any)
	if !ok {
		return registry.Bundle{}, fmt.Errorf("codec: bundle is not a JSON object")
	}
	datatype, _ := m["datatype"].(string)
	rawValues, _ := m["values"].([]any)

	factory, err := newValue(datatype)
	if err != nil {
		return registry.Bundle{}, err
	}

	b := registry.Bundle{Datatype: datatype, Values: make([]registry.Value, len(rawValues))}
	for i, state := range rawValues {
		v := factory()
		if err := v.Deserialize(state); err != nil {
			return registry.Bundle{}, fmt.Errorf("codec: deserializing value %d of datatype %s: %w", i, datatype, err)
		}
		b.Values[i] = v
	}
	return b, nil
}
