package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopAction(ActionContext, ParamMap) (OutputMap, error) { return nil, nil }

func sampleModule(id string) *Module {
	return &Module{
		ID:      id,
		Version: "1.0",
		Name:    "Sample",
		Inputs:  []Terminal{{ID: "data", Datatype: "ncnr.refldata", Use: UseInput, Required: true}},
		Outputs: []Terminal{{ID: "output", Datatype: "ncnr.refldata", Use: UseOutput}},
		Action:  noopAction,
	}
}

func TestRegistry_RegisterAndLookupModule(t *testing.T) {
	r := New()
	m := sampleModule("ncnr.scale")
	r.RegisterModule(m)

	got, err := r.LookupModule("ncnr.scale")
	require.NoError(t, err)
	assert.Same(t, m, got)
}

func TestRegistry_LookupModule_NotFound(t *testing.T) {
	r := New()
	_, err := r.LookupModule("missing")
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "module", nf.Kind)
}

func TestRegistry_RegisterModule_KeepsFirstOnConflictingReRegistration(t *testing.T) {
	r := New()
	first := sampleModule("ncnr.scale")
	r.RegisterModule(first)

	second := sampleModule("ncnr.scale")
	second.Version = "2.0"
	r.RegisterModule(second)

	got, err := r.LookupModule("ncnr.scale")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, "1.0", got.Version)
}

func TestRegistry_RegisterModule_EqualReRegistrationIsNoop(t *testing.T) {
	r := New()
	first := sampleModule("ncnr.scale")
	r.RegisterModule(first)

	second := sampleModule("ncnr.scale")
	r.RegisterModule(second)

	got, err := r.LookupModule("ncnr.scale")
	require.NoError(t, err)
	assert.Same(t, first, got)
}

func TestRegistry_RegisterDatatype_ConflictFails(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterDatatype(DataType{ID: "ncnr.refldata", New: func() Value { return nil }}))

	err := r.RegisterDatatype(DataType{ID: "ncnr.refldata", New: nil})
	require.Error(t, err)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
}

func TestRegistry_RegisterDatatype_EqualReRegistrationOK(t *testing.T) {
	r := New()
	factory := func() Value { return nil }
	require.NoError(t, r.RegisterDatatype(DataType{ID: "ncnr.refldata", New: factory}))
	require.NoError(t, r.RegisterDatatype(DataType{ID: "ncnr.refldata", New: factory}))
}

func TestRegistry_RegisterInstrument_RegistersModulesAndDatatypes(t *testing.T) {
	r := New()
	inst := &Instrument{
		ID:        "ncnr",
		Name:      "NCNR",
		Datatypes: []DataType{{ID: "ncnr.refldata", New: func() Value { return nil }}},
		Modules:   []*Module{sampleModule("ncnr.scale")},
	}
	require.NoError(t, r.RegisterInstrument(inst))

	_, err := r.LookupModule("ncnr.scale")
	require.NoError(t, err)
	_, err = r.LookupDatatype("ncnr.refldata")
	require.NoError(t, err)
	got, err := r.LookupInstrument("ncnr")
	require.NoError(t, err)
	assert.Same(t, inst, got)
}

func TestRegistry_ListInstruments(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterInstrument(&Instrument{ID: "a", Name: "A"}))
	require.NoError(t, r.RegisterInstrument(&Instrument{ID: "b", Name: "B"}))
	assert.ElementsMatch(t, []string{"a", "b"}, r.ListInstruments())
}

func TestNewInstrument_UndefinedDatatypeFails(t *testing.T) {
	menu := []MenuGroup{{Name: "g", Modules: []*Module{sampleModule("ncnr.scale")}}}
	_, err := NewInstrument("ncnr", "NCNR", menu, nil)
	require.Error(t, err)
}

func TestNewInstrument_UnusedDatatypeFails(t *testing.T) {
	menu := []MenuGroup{{Name: "g", Modules: []*Module{sampleModule("ncnr.scale")}}}
	datatypes := []DataType{
		{ID: "ncnr.refldata", New: func() Value { return nil }},
		{ID: "ncnr.unused", New: func() Value { return nil }},
	}
	_, err := NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.Error(t, err)
}

func TestNewInstrument_DuplicateModuleNameFails(t *testing.T) {
	a := sampleModule("ncnr.scale")
	b := sampleModule("ncnr.scale2")
	b.Name = a.Name
	menu := []MenuGroup{{Name: "g", Modules: []*Module{a, b}}}
	datatypes := []DataType{{ID: "ncnr.refldata", New: func() Value { return nil }}}
	_, err := NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.Error(t, err)
}

func TestNewInstrument_OK(t *testing.T) {
	menu := []MenuGroup{{Name: "g", Modules: []*Module{sampleModule("ncnr.scale")}}}
	datatypes := []DataType{{ID: "ncnr.refldata", New: func() Value { return nil }}}
	inst, err := NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.NoError(t, err)
	assert.Len(t, inst.Modules, 1)
}

func TestInstrument_ModuleByID_BareAndQualified(t *testing.T) {
	menu := []MenuGroup{{Name: "g", Modules: []*Module{sampleModule("ncnr.scale")}}}
	datatypes := []DataType{{ID: "ncnr.refldata", New: func() Value { return nil }}}
	inst, err := NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.NoError(t, err)

	byBare, err := inst.ModuleByID("scale")
	require.NoError(t, err)
	assert.Equal(t, "ncnr.scale", byBare.ID)

	byQualified, err := inst.ModuleByID("ncnr.scale")
	require.NoError(t, err)
	assert.Same(t, byBare, byQualified)
}

func TestInstrument_ModuleByID_NotFound(t *testing.T) {
	menu := []MenuGroup{{Name: "g", Modules: []*Module{sampleModule("ncnr.scale")}}}
	datatypes := []DataType{{ID: "ncnr.refldata", New: func() Value { return nil }}}
	inst, err := NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.NoError(t, err)

	_, err = inst.ModuleByID("nonexistent")
	require.Error(t, err)
}

func TestInstrument_ModuleByName(t *testing.T) {
	menu := []MenuGroup{{Name: "g", Modules: []*Module{sampleModule("ncnr.scale")}}}
	datatypes := []DataType{{ID: "ncnr.refldata", New: func() Value { return nil }}}
	inst, err := NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.NoError(t, err)

	got, err := inst.ModuleByName("Sample")
	require.NoError(t, err)
	assert.Equal(t, "ncnr.scale", got.ID)

	_, err = inst.ModuleByName("NoSuchName")
	require.Error(t, err)
}

func TestInstrument_DataTypeByID(t *testing.T) {
	menu := []MenuGroup{{Name: "g", Modules: []*Module{sampleModule("ncnr.scale")}}}
	datatypes := []DataType{{ID: "ncnr.refldata", New: func() Value { return nil }}}
	inst, err := NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.NoError(t, err)

	dt, ok := inst.DataTypeByID("ncnr.refldata")
	assert.True(t, ok)
	assert.Equal(t, "ncnr.refldata", dt.ID)

	_, ok = inst.DataTypeByID("nope")
	assert.False(t, ok)
}

func TestModule_TerminalByID(t *testing.T) {
	m := sampleModule("ncnr.scale")
	term, ok := m.TerminalByID("data")
	require.True(t, ok)
	assert.Equal(t, UseInput, term.Use)

	term, ok = m.TerminalByID("output")
	require.True(t, ok)
	assert.Equal(t, UseOutput, term.Use)

	_, ok = m.TerminalByID("nope")
	assert.False(t, ok)
}

func TestModule_Equal(t *testing.T) {
	a := sampleModule("ncnr.scale")
	b := sampleModule("ncnr.scale")
	assert.True(t, a.Equal(b))

	c := sampleModule("ncnr.scale")
	c.Version = "2.0"
	assert.False(t, a.Equal(c))
}

func TestPackageLevelDefaultRegistryFunctions(t *testing.T) {
	// Default is a process-wide singleton shared across tests in this
	// package; use a unique id to avoid interference.
	m := sampleModule("ncnr.pkgleveltest")
	RegisterModule(m)
	got, err := LookupModule("ncnr.pkgleveltest")
	require.NoError(t, err)
	assert.Same(t, m, got)
}
