// Package automod derives a structured Module definition from an
// operation's declared parameter list and a structured documentation
// string (spec.md §4.2, C2). Go has no runtime introspection of function
// signatures, so callers supply the parameter list explicitly via Func; the
// grammar and validation rules are otherwise identical to the reference
// implementation's docstring parser.
package automod

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

// Param describes one positional or keyword argument of the Go function
// backing a Module, in lieu of Python's inspect.getargspec.
type Param struct {
	Name string
	// HasDefault marks this argument as a field (keyword argument with a
	// default) rather than an input terminal (spec.md §4.2).
	HasDefault bool
	// Default is the Go zero/default value, used as the field's default
	// unless the docstring supplies an explicit [default].
	Default any
}

// Func describes an action's signature for the purposes of introspection.
type Func struct {
	Name   string
	Params []Param
}

// ValidationError names the offending parameter in a malformed doc block.
type ValidationError struct {
	Param string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("automod: %s", e.Msg)
	}
	return fmt.Sprintf("automod: parameter %q: %s", e.Param, e.Msg)
}

var timestampRE = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\s+(.*?)\s*$`)

// Parse derives a Module definition from fn's declared parameters and its
// structured documentation string doc, and binds action as the Module's
// Action. prefix is prepended to the module id and to any terminal datatype
// that has no dot (spec.md §6 module decorator contract).
func Parse(fn Func, doc string, action registry.Action, prefix string) (*registry.Module, error) {
	lines := strings.Split(doc, "\n")

	var description, inputLines, outputLines []string
	version, author := "", ""
	state := 0 // 0=description 1=inputs 2=outputs 3=done

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := timestampRE.FindStringSubmatch(line); m != nil {
			state = 3
			version = m[1]
			author = m[2]
			continue
		}
		switch {
		case trimmed == "**Inputs**":
			state = 1
		case trimmed == "**Returns**":
			state = 2
		case state == 0:
			description = append(description, line)
		case state == 1:
			inputLines = append(inputLines, line)
		case state == 2:
			outputLines = append(outputLines, line)
		case state == 3 && trimmed != "":
			return nil, &ValidationError{Msg: "docstring continues after time stamp"}
		}
	}
	if version == "" {
		return nil, &ValidationError{Msg: "docstring missing trailing YYYY-MM-DD author line"}
	}

	inputs, err := parseParameters(inputLines)
	if err != nil {
		return nil, err
	}
	outputs, err := parseParameters(outputLines)
	if err != nil {
		return nil, err
	}

	defined := make(map[string]bool, len(fn.Params))
	fieldDefault := make(map[string]any, len(fn.Params))
	fieldNames := make(map[string]bool, len(fn.Params))
	for _, p := range fn.Params {
		defined[p.Name] = true
		if p.HasDefault {
			fieldNames[p.Name] = true
			fieldDefault[p.Name] = p.Default
		}
	}
	described := make(map[string]bool, len(inputs))
	for _, p := range inputs {
		described[p.id] = true
	}
	if diff := setMinus(defined, described); len(diff) > 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("parameters defined but not described: %s", strings.Join(diff, ", "))}
	}
	if diff := setMinus(described, defined); len(diff) > 0 {
		return nil, &ValidationError{Msg: fmt.Sprintf("parameters described but not defined: %s", strings.Join(diff, ", "))}
	}

	allDescribed := make(map[string]bool, len(inputs)+len(outputs))
	for _, p := range append(append([]parsedParam{}, inputs...), outputs...) {
		if allDescribed[p.id] {
			return nil, &ValidationError{Param: p.id, Msg: "parameter and return value names must be unique"}
		}
		allDescribed[p.id] = true
	}

	var inputTerminals []registry.Terminal
	var inputFields []registry.Field
	for _, p := range inputs {
		if fieldNames[p.id] {
			f, err := p.toField()
			if err != nil {
				return nil, err
			}
			if f.Default == nil {
				f.Default = fmt.Sprint(fieldDefault[p.id])
			}
			inputFields = append(inputFields, f)
		} else {
			inputTerminals = append(inputTerminals, p.toTerminal(registry.UseInput, prefix))
		}
	}

	var outputTerminals []registry.Terminal
	for _, p := range outputs {
		outputTerminals = append(outputTerminals, p.toTerminal(registry.UseOutput, prefix))
	}

	mod := &registry.Module{
		ID:          prefix + fn.Name,
		Version:     version,
		Name:        unsplitName(fn.Name),
		Description: strings.TrimSpace(strings.Join(description, "\n")),
		Author:      author,
		Inputs:      inputTerminals,
		Outputs:     outputTerminals,
		Fields:      inputFields,
		Action:      action,
		ActionID:    fn.Name,
	}
	return mod, nil
}

func setMinus(a, b map[string]bool) []string {
	var out []string
	for k := range a {
		if !b[k] {
			out = append(out, k)
		}
	}
	return out
}

// parsedParam is the intermediate form of one Inputs/Returns paragraph.
type parsedParam struct {
	id          string
	datatype    string
	fieldSpec   string
	length      int
	required    bool
	multiple    bool
	constraint  registry.FieldConstraint
	description string
	defaultStr  string
	hasDefault  bool
}

func (p parsedParam) toTerminal(use registry.Use, prefix string) registry.Terminal {
	dt := p.datatype
	if dt == "" {
		dt = "str"
	}
	if !strings.Contains(dt, ".") {
		dt = prefix + dt
	}
	return registry.Terminal{
		ID:          p.id,
		Datatype:    dt,
		Use:         use,
		Required:    p.required,
		Multiple:    p.multiple,
		Label:       unsplitName(p.id),
		Description: p.description,
	}
}

func (p parsedParam) toField() (registry.Field, error) {
	kind, constraint, err := parseFieldKind(p.fieldSpec)
	if err != nil {
		return registry.Field{}, &ValidationError{Param: p.id, Msg: err.Error()}
	}
	if kind == registry.FieldBool && constraint.Bool.Label == "" {
		constraint.Bool.Label = unsplitName(p.id)
	}
	f := registry.Field{
		ID:         p.id,
		Datatype:   kind,
		Constraint: constraint,
		Required:   p.required,
		Multiple:   p.multiple,
		Length:     p.length,
		Label:      unsplitName(p.id),
	}
	if p.hasDefault {
		f.Default = p.defaultStr
	}
	return f, nil
}

// name ( datatype [length] multiplicity : typeattr ) : description [default]
var parameterRE = regexp.MustCompile(`(?s)^\s*(?P<id>\w+)\s*(?:\(\s*(?P<datatype>[^)]*)\s*\))?\s*:\s*(?P<description>.*?)\s*(?:\[\s*(?P<default>.*?)\s*\])?\s*$`)

func parseParameters(lines []string) ([]parsedParam, error) {
	var out []parsedParam
	for _, group := range paragraphs(lines) {
		joined := strings.TrimSpace(strings.Join(joinTrim(group), " "))
		m := parameterRE.FindStringSubmatch(joined)
		if m == nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("unable to parse parameter:\n  %s", strings.Join(group, "  "))}
		}
		groups := namedGroups(parameterRE, m)

		// The typeattr portion (after the first top-level ":") belongs to
		// fields only; split it off before stripping length/multiplicity
		// from the "datatype[length]multiplicity" prefix.
		typePrefix, typeattr, hasTypeattr := strings.Cut(groups["datatype"], ":")

		// Absent multiplicity marker means required & single; "?"/"*"/"+"
		// override from there (spec.md §4.2).
		required, multiple := true, false
		switch {
		case strings.HasSuffix(typePrefix, "?"):
			typePrefix = strings.TrimSuffix(typePrefix, "?")
			required = false
		case strings.HasSuffix(typePrefix, "*"):
			typePrefix = strings.TrimSuffix(typePrefix, "*")
			required = false
			multiple = true
		case strings.HasSuffix(typePrefix, "+"):
			typePrefix = strings.TrimSuffix(typePrefix, "+")
			required = true
			multiple = true
		}

		datatype, length := splitLength(strings.TrimSpace(typePrefix))
		fieldSpec := datatype
		if hasTypeattr {
			fieldSpec = datatype + ":" + typeattr
		}

		p := parsedParam{
			id:          groups["id"],
			datatype:    datatype,
			fieldSpec:   fieldSpec,
			length:      length,
			required:    required,
			multiple:    multiple,
			description: groups["description"],
		}
		if d, ok := groups["default"]; ok && d != "" {
			p.hasDefault = true
			p.defaultStr = d
		}
		out = append(out, p)
	}
	return out, nil
}

// splitLength pulls a trailing "[...]" length specifier off a datatype spec
// (the caller has already cut off any ":typeattr"), returning the bare
// datatype id and the parsed length.
func splitLength(spec string) (string, int) {
	open := strings.Index(spec, "[")
	if open < 0 {
		return spec, 1
	}
	close := strings.Index(spec, "]")
	if close < open {
		return spec, 1
	}
	rest := spec[:open] + spec[close+1:]
	inner := strings.TrimSpace(spec[open+1 : close])
	if inner == "" {
		return rest, 0
	}
	n, err := strconv.Atoi(inner)
	if err != nil {
		return rest, 1
	}
	return rest, n
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = match[i]
	}
	return out
}

func joinTrim(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSpace(l)
	}
	return out
}

// paragraphs splits lines into groups separated by blank lines.
func paragraphs(lines []string) [][]string {
	var out [][]string
	var group []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(group) > 0 {
				out = append(out, group)
				group = nil
			}
			continue
		}
		group = append(group, line)
	}
	if len(group) > 0 {
		out = append(out, group)
	}
	return out
}

// unsplitName converts "this_name" into "This Name".
func unsplitName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
