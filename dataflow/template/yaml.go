package template

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// diagramFile is the on-disk shape accepted by LoadYAML: a list of steps,
// each an action string paired with a config map, plus the instrument id
// the diagram targets.
type diagramFile struct {
	Instrument string `yaml:"instrument"`
	Steps      []struct {
		Action string         `yaml:"action"`
		Config map[string]any `yaml:"config"`
	} `yaml:"steps"`
}

// LoadYAML reads a diagram fixture in the form used by test data and sample
// instruments, and returns the Step list ready for Build along with the
// instrument id it names.
func LoadYAML(data []byte) (instrumentID string, diagram []Step, err error) {
	var f diagramFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("template: parsing diagram yaml: %w", err)
	}
	if f.Instrument == "" {
		return "", nil, fmt.Errorf("template: diagram yaml missing instrument id")
	}
	diagram = make([]Step, len(f.Steps))
	for i, s := range f.Steps {
		diagram[i] = Step{Action: s.Action, Config: s.Config}
	}
	return f.Instrument, diagram, nil
}
