// Package ncnr is a sample instrument exercising the dataflow engine
// end-to-end: a small reflectometry reduction pipeline (load, scale, join,
// subtract, divide) grounded on
// _examples/original_source/dataflow/modules/refl.py's unpolarized_template
// and _examples/original_source/refldata.py's ReflData.
package ncnr

import (
	"fmt"
)

// ReflData is the domain value flowing between this instrument's modules: a
// single reduced reflectometry curve. It stands in for the reference
// implementation's ReflData/Parameters classes (spec.md §9 "Polymorphism
// across datatypes").
type ReflData struct {
	Name string
	X    []float64
	V    []float64
	DV   []float64
}

// Serialize renders the curve as a JSON-compatible map.
func (d *ReflData) Serialize() (any, error) {
	return map[string]any{
		"name": d.Name,
		"x":    d.X,
		"v":    d.V,
		"dv":   d.DV,
	}, nil
}

// Deserialize populates d from a previously serialized state.
func (d *ReflData) Deserialize(state any) error {
	m, ok := state.(map[string]any)
	if !ok {
		return fmt.Errorf("ncnr: refldata state is not an object")
	}
	d.Name, _ = m["name"].(string)
	d.X = toFloatSlice(m["x"])
	d.V = toFloatSlice(m["v"])
	d.DV = toFloatSlice(m["dv"])
	return nil
}

// GetMetadata renders a summary view, grounded on ReflData.todict() via
// Parameters.get_metadata in the reference implementation.
func (d *ReflData) GetMetadata() (any, error) {
	return map[string]any{"name": d.Name, "points": len(d.X)}, nil
}

// GetPlottable renders the curve ready for a client plot widget, grounded
// on DataflowReflData.get_plottable_JSON.
func (d *ReflData) GetPlottable() (any, error) {
	type point struct {
		X, Y, Yupper, Ylower float64
	}
	pts := make([]point, len(d.X))
	for i := range d.X {
		pts[i] = point{X: d.X[i], Y: d.V[i], Yupper: d.V[i] + d.DV[i], Ylower: d.V[i] - d.DV[i]}
	}
	return map[string]any{
		"title": d.Name,
		"data":  pts,
	}, nil
}

func toFloatSlice(v any) []float64 {
	if fs, ok := v.([]float64); ok {
		return append([]float64(nil), fs...)
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, len(raw))
	for i, e := range raw {
		f, _ := e.(float64)
		out[i] = f
	}
	return out
}
