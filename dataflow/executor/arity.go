package executor

import (
	"fmt"

	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

// dispatchArgs builds the ParamMap for one invocation of module's action,
// choosing between the two arity paths of spec.md §4.8: when every input
// terminal is multiple (or there are none), a single call receives the
// whole bundles; otherwise it returns errBroadcastRequired and the caller
// must broadcast per element.
//
// Since a module's action is a single Go func value (unlike the reference
// implementation's repeated **kwargs calls), the per-element broadcast path
// is realized by invoking Action once per element and concatenating
// results; dispatchArgs handles only the multiple-only, single-invocation
// path. Run always goes through invoke in executor.go, which picks the
// right path.
func dispatchArgs(module *registry.Module, config map[string]any, inputs map[string][]registry.Value, nodeIdx int) (registry.ParamMap, error) {
	multiple := true
	for _, t := range module.Inputs {
		if !t.Multiple {
			multiple = false
			break
		}
	}

	if multiple {
		args := registry.ParamMap{}
		for k, v := range config {
			args[k] = v
		}
		for _, t := range module.Inputs {
			args[t.ID] = inputs[t.ID]
		}
		return args, nil
	}

	return nil, errBroadcastRequired
}

// errBroadcastRequired signals dispatchArgs's caller to use the
// element-wise broadcast path instead of a single whole-bundle call.
var errBroadcastRequired = fmt.Errorf("executor: broadcast path required")

// collectOutputs wraps a single invocation's OutputMap into per-terminal
// Bundles. It runs once per action call on both the single-invocation and
// the broadcast paths; on the broadcast path the caller concatenates the
// per-call bundles afterwards.
func collectOutputs(module *registry.Module, outputs registry.OutputMap) (map[string]registry.Bundle, error) {
	if len(module.Outputs) == 0 {
		return map[string]registry.Bundle{}, nil
	}
	if len(module.Outputs) <= 1 && len(outputs) != 1 {
		// A single-output module may return its one value directly.
		if len(outputs) == 0 {
			return nil, fmt.Errorf("action returned no output, expected 1")
		}
	}
	if len(module.Outputs) > 1 && len(outputs) != len(module.Outputs) {
		return nil, fmt.Errorf("action returned %d outputs, expected %d", len(outputs), len(module.Outputs))
	}

	result := make(map[string]registry.Bundle, len(module.Outputs))
	for i, t := range module.Outputs {
		v := outputs[i]
		var values []registry.Value
		if t.Multiple {
			vs, ok := v.([]registry.Value)
			if !ok {
				return nil, fmt.Errorf("output terminal %q is multiple but action returned %T", t.ID, v)
			}
			values = vs
		} else {
			val, ok := v.(registry.Value)
			if !ok {
				return nil, fmt.Errorf("output terminal %q expected a single registry.Value, got %T", t.ID, v)
			}
			values = []registry.Value{val}
		}
		result[t.ID] = registry.Bundle{Datatype: t.Datatype, Values: values}
	}
	return result, nil
}

// broadcastLength determines n, the number of per-element invocations, from
// the first input terminal's bundle length (spec.md §4.8: "assume all
// inputs are the same length as the first input, or length 1, or length
// 0").
func broadcastLength(module *registry.Module, inputs map[string][]registry.Value) int {
	if len(module.Inputs) == 0 {
		return 1
	}
	return len(inputs[module.Inputs[0].ID])
}

// broadcastTerminal resolves one input terminal's value for invocation i of
// n, applying the broadcast/skip/error rule for bundle length ∈ {0,1,n}.
func broadcastTerminal(t registry.Terminal, bundle []registry.Value, i, n, nodeIdx int) (any, error) {
	if t.Multiple {
		return bundle, nil
	}
	switch len(bundle) {
	case 0:
		if t.Required {
			return nil, fmt.Errorf("missing required input %q", t.ID)
		}
		return nil, nil
	case 1:
		return bundle[0], nil
	default:
		if len(bundle) != n {
			return nil, &ArityError{NodeIndex: nodeIdx, Terminal: t.ID, Got: len(bundle), Want: n}
		}
		return bundle[i], nil
	}
}

// broadcastField resolves one field's configured value for invocation i of
// n. Multiple fields pass their whole configured slice through unchanged;
// non-multiple fields apply the same 0/1/n broadcast rule as terminals, but
// only when the configured value is itself a slice — a bare scalar
// (the common case) is reused for every invocation.
func broadcastField(f registry.Field, value any, i, n, nodeIdx int) (any, error) {
	if value == nil {
		return nil, nil
	}
	if f.Multiple {
		return value, nil
	}
	slice, ok := value.([]any)
	if !ok {
		return value, nil
	}
	switch len(slice) {
	case 0:
		if f.Required {
			return nil, fmt.Errorf("missing required field %q", f.ID)
		}
		return nil, nil
	case 1:
		return slice[0], nil
	default:
		if len(slice) != n {
			return nil, &ArityError{NodeIndex: nodeIdx, Terminal: f.ID, Got: len(slice), Want: n}
		}
		return slice[i], nil
	}
}
