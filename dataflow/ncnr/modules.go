package ncnr

import (
	"fmt"
	"sort"

	"go.ncnr.nist.gov/dataflow/dataflow/automod"
	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

const prefix = "ncnr.refl."

func asRefl(v registry.Value) (*ReflData, error) {
	d, ok := v.(*ReflData)
	if !ok {
		return nil, fmt.Errorf("expected *ReflData, got %T", v)
	}
	return d, nil
}

func reflBundle(values []*ReflData) []registry.Value {
	out := make([]registry.Value, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

const loadDoc = `
Load reflectometry data files named in filelist, producing one dataset per
entry.

**Inputs**

filelist (str*) : paths of the files to load

**Returns**

output (refldata*) : loaded datasets

2024-01-15 ncnr
`

func loadAction(ctx registry.ActionContext, args registry.ParamMap) (registry.OutputMap, error) {
	var names []string
	if v, ok := args["filelist"]; ok {
		if ss, ok := v.([]any); ok {
			for _, s := range ss {
				if str, ok := s.(string); ok {
					names = append(names, str)
				}
			}
		} else if ss, ok := v.([]string); ok {
			names = ss
		}
	}

	out := make([]*ReflData, len(names))
	for i, name := range names {
		out[i] = &ReflData{Name: name, X: []float64{0, 1, 2}, V: []float64{1, 1, 1}, DV: []float64{0.1, 0.1, 0.1}}
	}
	return registry.OutputMap{reflBundle(out)}, nil
}

const scaleDoc = `
Multiply a dataset's values and uncertainties by a constant scale factor.

**Inputs**

data (refldata) : dataset to scale

scale (float:<-1e300,1e300>) : multiplicative factor [1.0]

**Returns**

output (refldata) : scaled dataset

2024-01-15 ncnr
`

func scaleAction(ctx registry.ActionContext, args registry.ParamMap) (registry.OutputMap, error) {
	in, err := asRefl(args["data"].(registry.Value))
	if err != nil {
		return nil, err
	}
	scale, _ := args["scale"].(float64)
	if scale == 0 {
		scale = 1.0
	}
	out := &ReflData{Name: in.Name, X: append([]float64(nil), in.X...)}
	out.V = make([]float64, len(in.V))
	out.DV = make([]float64, len(in.DV))
	for i := range in.V {
		out.V[i] = in.V[i] * scale
		out.DV[i] = in.DV[i] * scale
	}
	return registry.OutputMap{registry.Value(out)}, nil
}

const joinDoc = `
Concatenate a bundle of datasets, sorted by name, into a single combined
dataset.

**Inputs**

data (refldata*) : datasets to combine

**Returns**

output (refldata) : combined dataset

2024-01-15 ncnr
`

func joinAction(ctx registry.ActionContext, args registry.ParamMap) (registry.OutputMap, error) {
	values, _ := args["data"].([]registry.Value)
	datasets := make([]*ReflData, 0, len(values))
	for _, v := range values {
		d, err := asRefl(v)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	sort.SliceStable(datasets, func(i, j int) bool { return datasets[i].Name < datasets[j].Name })
	out := &ReflData{Name: "joined"}
	for _, d := range datasets {
		out.X = append(out.X, d.X...)
		out.V = append(out.V, d.V...)
		out.DV = append(out.DV, d.DV...)
	}
	return registry.OutputMap{registry.Value(out)}, nil
}

const subtractDoc = `
Subtract a background dataset from a measurement, point by point. Missing
background leaves the measurement unchanged.

**Inputs**

data (refldata) : measurement

background (refldata?) : background to subtract

**Returns**

output (refldata) : background-subtracted measurement

2024-01-15 ncnr
`

func subtractAction(ctx registry.ActionContext, args registry.ParamMap) (registry.OutputMap, error) {
	in, err := asRefl(args["data"].(registry.Value))
	if err != nil {
		return nil, err
	}
	out := &ReflData{Name: in.Name, X: append([]float64(nil), in.X...), V: append([]float64(nil), in.V...), DV: append([]float64(nil), in.DV...)}

	bg, _ := args["background"].(registry.Value)
	if bg != nil {
		b, err := asRefl(bg)
		if err != nil {
			return nil, err
		}
		for i := range out.V {
			if i < len(b.V) {
				out.V[i] -= b.V[i]
			}
		}
	}
	return registry.OutputMap{registry.Value(out)}, nil
}

const divideDoc = `
Divide a measurement by a base (e.g. incident intensity), point by point.

**Inputs**

data (refldata) : numerator dataset

base (refldata) : denominator dataset

**Returns**

output (refldata) : normalized dataset

2024-01-15 ncnr
`

func divideAction(ctx registry.ActionContext, args registry.ParamMap) (registry.OutputMap, error) {
	num, err := asRefl(args["data"].(registry.Value))
	if err != nil {
		return nil, err
	}
	den, err := asRefl(args["base"].(registry.Value))
	if err != nil {
		return nil, err
	}
	out := &ReflData{Name: num.Name, X: append([]float64(nil), num.X...)}
	out.V = make([]float64, len(num.V))
	out.DV = make([]float64, len(num.DV))
	for i := range num.V {
		d := 1.0
		if i < len(den.V) && den.V[i] != 0 {
			d = den.V[i]
		}
		out.V[i] = num.V[i] / d
		out.DV[i] = num.DV[i] / d
	}
	return registry.OutputMap{registry.Value(out)}, nil
}

// modules builds the instrument's module list via automod.Parse, the way a
// real instrument package derives its menu from annotated action functions
// rather than hand-built registry.Module literals.
func modules() ([]*registry.Module, error) {
	defs := []struct {
		fn     automod.Func
		doc    string
		action registry.Action
	}{
		{
			fn:     automod.Func{Name: "load", Params: []automod.Param{{Name: "filelist", HasDefault: true, Default: []string{}}}},
			doc:    loadDoc,
			action: loadAction,
		},
		{
			fn: automod.Func{Name: "scale", Params: []automod.Param{
				{Name: "data"},
				{Name: "scale", HasDefault: true, Default: 1.0},
			}},
			doc:    scaleDoc,
			action: scaleAction,
		},
		{
			fn:     automod.Func{Name: "join", Params: []automod.Param{{Name: "data"}}},
			doc:    joinDoc,
			action: joinAction,
		},
		{
			fn: automod.Func{Name: "subtract", Params: []automod.Param{
				{Name: "data"},
				{Name: "background"},
			}},
			doc:    subtractDoc,
			action: subtractAction,
		},
		{
			fn: automod.Func{Name: "divide", Params: []automod.Param{
				{Name: "data"},
				{Name: "base"},
			}},
			doc:    divideDoc,
			action: divideAction,
		},
	}

	mods := make([]*registry.Module, 0, len(defs))
	for _, d := range defs {
		m, err := automod.Parse(d.fn, d.doc, d.action, prefix)
		if err != nil {
			return nil, fmt.Errorf("ncnr: parsing module %q: %w", d.fn.Name, err)
		}
		mods = append(mods, m)
	}
	return mods, nil
}
