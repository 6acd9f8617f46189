// Package fingerprint computes the content-addressed identity of dataflow
// nodes (spec.md §4.5, C5): a SHA-1 digest of a node's module identity,
// normalized configuration, and the fingerprints of its direct inputs.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

// InputDescriptor is one incoming wire's contribution to a node's digest
// input, in wire-iteration order: [targetTerminal, sourceTerminal,
// sourceFingerprint].
type InputDescriptor struct {
	TargetTerminal string
	SourceTerminal string
	SourceFP       string
}

// UnversionedModuleError reports that a module has no declared Version,
// which this engine reports when the module's node is fingerprinted rather
// than fingerprinting the operation's source text (spec.md §9, "Callable
// fingerprinting").
type UnversionedModuleError struct {
	ModuleID string
}

func (e *UnversionedModuleError) Error() string {
	return fmt.Sprintf("fingerprint: module %q has no declared version; unversioned operations cannot be fingerprinted", e.ModuleID)
}

// Node computes the fingerprint of a single node from its module identity,
// effective configuration (template defaults overlaid by per-execution
// overrides) and the fingerprints of its direct inputs.
func Node(moduleID, moduleVersion string, effectiveConfig map[string]any, inputs []InputDescriptor) (string, error) {
	if moduleVersion == "" {
		return "", &UnversionedModuleError{ModuleID: moduleID}
	}

	configStr, err := formatOrdered(effectiveConfig)
	if err != nil {
		return "", err
	}

	var parts []string
	parts = append(parts, moduleID, moduleVersion, configStr)
	for _, in := range inputs {
		parts = append(parts, in.TargetTerminal, in.SourceTerminal, in.SourceFP)
	}

	digestInput := strings.Join(parts, ":")
	sum := sha1.Sum([]byte(digestInput))
	return hex.EncodeToString(sum[:]), nil
}

// formatOrdered renders value the way spec.md §4.5 requires: map keys
// sorted, slices recursed element-wise in order, registry.Value instances
// rendered via their Serialize hook tagged with their Go type, and
// everything else by its primitive representation. The result is
// deterministic regardless of map iteration order or field declaration
// order.
func formatOrdered(value any) (string, error) {
	var b strings.Builder
	if err := writeOrdered(&b, value); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeOrdered(b *strings.Builder, value any) error {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%q:", k)
			if err := writeOrdered(b, v[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil

	case []any:
		b.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeOrdered(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil

	case registry.Value:
		state, err := v.Serialize()
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "[%T,", v)
		if err := writeOrdered(b, state); err != nil {
			return err
		}
		b.WriteByte(']')
		return nil

	default:
		fmt.Fprintf(b, "%#v", v)
		return nil
	}
}

// NodeSpec describes one node for All: its module id/version, effective
// configuration, and the incoming wires in declaration order, each naming
// its source node by index.
type NodeSpec struct {
	ModuleID      string
	ModuleVersion string
	Config        map[string]any
	Inputs        []WireRef
}

// WireRef is one incoming wire, referencing its source node by index.
type WireRef struct {
	TargetTerminal string
	SourceTerminal string
	SourceNode     int
}

// All computes fingerprints for every node, given a topological order in
// which to process them (so a node's dependencies are always resolved
// before the node itself).
func All(order []int, nodes []NodeSpec) (map[int]string, error) {
	fps := make(map[int]string, len(nodes))
	for _, idx := range order {
		n := nodes[idx]
		var inputs []InputDescriptor
		for _, w := range n.Inputs {
			srcFP, ok := fps[w.SourceNode]
			if !ok {
				return nil, fmt.Errorf("fingerprint: node %d references unresolved source node %d", idx, w.SourceNode)
			}
			inputs = append(inputs, InputDescriptor{
				TargetTerminal: w.TargetTerminal,
				SourceTerminal: w.SourceTerminal,
				SourceFP:       srcFP,
			})
		}
		fp, err := Node(n.ModuleID, n.ModuleVersion, n.Config, inputs)
		if err != nil {
			return nil, err
		}
		fps[idx] = fp
	}
	return fps, nil
}
