package ncnr

import "go.ncnr.nist.gov/dataflow/dataflow/template"

// SampleDiagram is a small end-to-end reduction: load and scale a
// measurement, load and join background runs and reference runs, then
// subtract the background from the scaled measurement and divide by the
// reference — the same shape as refl.py's unpolarized_template, reduced to
// this package's smaller module set.
func SampleDiagram() []template.Step {
	return []template.Step{
		{Action: "load"},                                                                     // 0: main measurement
		{Action: "scale", Config: map[string]any{"data": "-.output", "scale": 1.0}},           // 1
		{Action: "load => bgload"},                                                           // 2: background runs
		{Action: "join => background", Config: map[string]any{"data": "bgload.output"}},      // 3
		{Action: "load => refload"},                                                          // 4: reference intensity runs
		{Action: "join => reference", Config: map[string]any{"data": "refload.output"}},      // 5
		{Action: "subtract", Config: map[string]any{"data": "scale.output", "background": "background.output"}}, // 6
		{Action: "divide", Config: map[string]any{"data": "-.output", "base": "reference.output"}},              // 7
	}
}
