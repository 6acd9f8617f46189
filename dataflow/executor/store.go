package executor

import (
	"encoding/json"
	"fmt"

	"go.ncnr.nist.gov/dataflow/dataflow/codec"
	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

// encodeOutputs serializes a node's per-terminal Bundles into the cache
// value layout: a JSON object mapping terminal id to its encoded Bundle
// (spec.md §4.8 "_store").
func encodeOutputs(outputs map[string]registry.Bundle) ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(outputs))
	for tid, b := range outputs {
		enc, err := codec.EncodeBundle(b)
		if err != nil {
			return nil, fmt.Errorf("executor: encoding output %q: %w", tid, err)
		}
		raw[tid] = enc
	}
	return json.Marshal(raw)
}

// decodeOutputs is the inverse of encodeOutputs, resolving each bundle's
// value factory from inst's registered datatypes.
func decodeOutputs(data []byte, inst *registry.Instrument) (map[string]registry.Bundle, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("executor: decoding cached node value: %w", err)
	}

	newValue := func(datatype string) (registry.ValueFactory, error) {
		dt, ok := inst.DataTypeByID(datatype)
		if !ok {
			return nil, fmt.Errorf("executor: unknown datatype %q", datatype)
		}
		return dt.New, nil
	}

	out := make(map[string]registry.Bundle, len(raw))
	for tid, enc := range raw {
		b, err := codec.DecodeBundle(enc, newValue)
		if err != nil {
			return nil, fmt.Errorf("executor: decoding output %q: %w", tid, err)
		}
		out[tid] = b
	}
	return out, nil
}
