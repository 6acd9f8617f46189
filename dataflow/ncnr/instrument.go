package ncnr

import (
	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

// InstrumentID is this sample instrument's registry id.
const InstrumentID = "ncnr.refl"

var reflDatatype = registry.DataType{
	ID:  InstrumentID + ".refldata",
	New: func() registry.Value { return &ReflData{} },
}

// Instrument builds the sample NCNR reflectometer instrument: a small
// load/scale/join/subtract/divide reduction pipeline, grounded on
// _examples/original_source/dataflow/modules/refl.py's define_instrument.
// Panics if the module doc strings fail introspection, since that would be
// a programming error in this package, not a runtime condition callers
// should recover from.
func Instrument() *registry.Instrument {
	mods, err := modules()
	if err != nil {
		panic(err)
	}

	inst, err := registry.NewInstrument(
		InstrumentID,
		"NCNR reflectometer",
		[]registry.MenuGroup{{Name: "steps", Modules: mods}},
		[]registry.DataType{reflDatatype},
	)
	if err != nil {
		panic(err)
	}
	return inst
}
