// Package template builds a validated Template — modules plus wires — from a
// human-authored declarative pipeline (spec.md §4.3, C3).
package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

// TemplateVersion is stamped on every Template this package produces and
// checked on Load.
const TemplateVersion = "1.0"

// Step is one entry of the diagram the caller supplies to Build: an
// action-string of the form "<name>" or "<name> => <alias>", and the
// per-step configuration (wire specs for input terminals, initial values
// for fields).
type Step struct {
	Action string
	Config map[string]any
}

// Wire connects an output terminal of one node to an input terminal of
// another.
type Wire struct {
	SourceNode     int    `json:"-"`
	SourceTerminal string `json:"-"`
	TargetNode     int    `json:"-"`
	TargetTerminal string `json:"-"`

	Source [2]any `json:"source"` // [node int, terminal string]
	Target [2]any `json:"target"`
}

// TemplateModule is one node of a Template.
type TemplateModule struct {
	Module   string         `json:"module"`
	Version  string         `json:"version"`
	Config   map[string]any `json:"config"`
	Position [2]int         `json:"position,omitempty"`
}

// Template is the validated wiring diagram produced by Build.
type Template struct {
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Instrument  string            `json:"instrument"`
	Version     string            `json:"version"`
	Modules     []TemplateModule  `json:"modules"`
	Wires       []Wire            `json:"wires"`
	resolved    []*registry.Module
}

// BuildError names the offending step in a malformed diagram.
type BuildError struct {
	Step int
	Msg  string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("template: step %d: %s", e.Step, e.Msg)
}

// Build converts diagram into a validated Template against inst.
func Build(diagram []Step, inst *registry.Instrument) (*Template, error) {
	tpl := &Template{Instrument: inst.ID, Version: TemplateVersion}

	aliases := make(map[string]int)
	byName := make(map[string][]int) // module name -> step indices, most recent last

	for i, step := range diagram {
		name, alias, err := parseActionString(step.Action)
		if err != nil {
			return nil, &BuildError{Step: i, Msg: err.Error()}
		}
		mod, err := inst.ModuleByID(name)
		if err != nil {
			return nil, &BuildError{Step: i, Msg: err.Error()}
		}
		if alias != "" {
			if _, dup := aliases[alias]; dup {
				return nil, &BuildError{Step: i, Msg: fmt.Sprintf("alias %q already defined", alias)}
			}
			aliases[alias] = i
		}
		byName[name] = append(byName[name], i)

		tm := TemplateModule{Module: mod.ID, Version: mod.Version, Config: map[string]any{}}
		tpl.Modules = append(tpl.Modules, tm)
		tpl.resolved = append(tpl.resolved, mod)

		fieldValues := map[string]any{}
		keys := make([]string, 0, len(step.Config))
		for key := range step.Config {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			val := step.Config[key]
			if t, ok := mod.TerminalByID(key); ok {
				if t.Use == registry.UseOutput {
					return nil, &BuildError{Step: i, Msg: fmt.Sprintf("output terminal %q cannot be configured", key)}
				}
				specs, ok := val.(string)
				if !ok {
					return nil, &BuildError{Step: i, Msg: fmt.Sprintf("input terminal %q requires a wire-spec string", key)}
				}
				wireCount := 0
				for _, spec := range strings.Split(specs, ",") {
					spec = strings.TrimSpace(spec)
					if spec == "" {
						continue
					}
					w, err := resolveWire(spec, i, key, t, tpl, aliases, byName)
					if err != nil {
						return nil, &BuildError{Step: i, Msg: err.Error()}
					}
					tpl.Wires = append(tpl.Wires, w)
					wireCount++
				}
				if wireCount > 1 && !t.Multiple {
					return nil, &BuildError{Step: i, Msg: fmt.Sprintf("input terminal %q does not accept multiple wires", key)}
				}
				continue
			}
			if _, ok := mod.FieldByID(key); ok {
				fieldValues[key] = val
				continue
			}
			return nil, &BuildError{Step: i, Msg: fmt.Sprintf("unknown config key %q for module %q", key, mod.ID)}
		}
		for k, v := range fieldValues {
			tm.Config[k] = v
		}
		tpl.Modules[i] = tm
	}

	for i, mod := range tpl.resolved {
		for _, t := range mod.Inputs {
			if !t.Required {
				continue
			}
			if !hasWireInto(tpl.Wires, i, t.ID) {
				return nil, &BuildError{Step: i, Msg: fmt.Sprintf("required input terminal %q has no wire", t.ID)}
			}
		}
	}

	return tpl, nil
}

func hasWireInto(wires []Wire, node int, terminal string) bool {
	for _, w := range wires {
		if w.TargetNode == node && w.TargetTerminal == terminal {
			return true
		}
	}
	return false
}

func parseActionString(s string) (name, alias string, err error) {
	parts := strings.SplitN(s, "=>", 2)
	name = strings.TrimSpace(parts[0])
	if name == "" {
		return "", "", fmt.Errorf("empty action name")
	}
	if len(parts) == 2 {
		alias = strings.TrimSpace(parts[1])
		if alias == "" {
			return "", "", fmt.Errorf("empty alias after '=>'")
		}
	}
	return name, alias, nil
}

func resolveWire(spec string, targetNode int, targetTerminal string, target registry.Terminal, tpl *Template, aliases map[string]int, byName map[string][]int) (Wire, error) {
	sourceRef, sourceTerminalID, found := strings.Cut(spec, ".")
	if !found {
		return Wire{}, fmt.Errorf("malformed wire spec %q, expected source.terminal", spec)
	}
	sourceRef = strings.TrimSpace(sourceRef)
	sourceTerminalID = strings.TrimSpace(sourceTerminalID)

	var sourceNode int
	switch {
	case sourceRef == "-":
		if targetNode == 0 {
			return Wire{}, fmt.Errorf("wire spec %q: no preceding step at step 0", spec)
		}
		sourceNode = targetNode - 1
	case aliases != nil:
		if n, ok := aliases[sourceRef]; ok {
			sourceNode = n
			break
		}
		steps, ok := byName[sourceRef]
		if !ok || len(steps) == 0 {
			return Wire{}, fmt.Errorf("wire spec %q: unknown source %q", spec, sourceRef)
		}
		if len(steps) > 1 {
			return Wire{}, fmt.Errorf("wire spec %q: source %q is ambiguous (used more than once); define an alias with '=>'", spec, sourceRef)
		}
		sourceNode = steps[0]
	}

	sourceMod := tpl.resolved[sourceNode]
	sourceTerminal, ok := sourceMod.TerminalByID(sourceTerminalID)
	if !ok || sourceTerminal.Use != registry.UseOutput {
		return Wire{}, fmt.Errorf("wire spec %q: %q is not an output terminal of %s", spec, sourceTerminalID, sourceMod.ID)
	}
	if sourceTerminal.Datatype != target.Datatype {
		return Wire{}, fmt.Errorf("wire spec %q: datatype mismatch %s != %s", spec, sourceTerminal.Datatype, target.Datatype)
	}

	return Wire{
		SourceNode:     sourceNode,
		SourceTerminal: sourceTerminalID,
		TargetNode:     targetNode,
		TargetTerminal: targetTerminal,
		Source:         [2]any{sourceNode, sourceTerminalID},
		Target:         [2]any{targetNode, targetTerminal},
	}, nil
}

// Save serializes the template to JSON.
func (t *Template) Save() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Load deserializes a JSON template, checking its version stamp.
func Load(data []byte) (*Template, error) {
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if t.Version != TemplateVersion {
		return nil, fmt.Errorf("template: version mismatch: got %q, want %q", t.Version, TemplateVersion)
	}
	for i := range t.Wires {
		w := &t.Wires[i]
		if n, ok := w.Source[0].(float64); ok {
			w.SourceNode = int(n)
		}
		if s, ok := w.Source[1].(string); ok {
			w.SourceTerminal = s
		}
		if n, ok := w.Target[0].(float64); ok {
			w.TargetNode = int(n)
		}
		if s, ok := w.Target[1].(string); ok {
			w.TargetTerminal = s
		}
	}
	return &t, nil
}
