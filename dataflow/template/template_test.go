package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ncnr.nist.gov/dataflow/dataflow/registry"
)

func noopAction(registry.ActionContext, registry.ParamMap) (registry.OutputMap, error) { return nil, nil }

func testInstrument(t *testing.T) *registry.Instrument {
	t.Helper()
	load := &registry.Module{
		ID:      "ncnr.load",
		Version: "1.0",
		Name:    "Load",
		Outputs: []registry.Terminal{{ID: "output", Datatype: "ncnr.refldata", Use: registry.UseOutput}},
		Action:  noopAction,
	}
	scale := &registry.Module{
		ID:      "ncnr.scale",
		Version: "1.0",
		Name:    "Scale",
		Inputs: []registry.Terminal{
			{ID: "data", Datatype: "ncnr.refldata", Use: registry.UseInput, Required: true},
		},
		Fields:  []registry.Field{{ID: "scale", Datatype: registry.FieldFloat}},
		Outputs: []registry.Terminal{{ID: "output", Datatype: "ncnr.refldata", Use: registry.UseOutput}},
		Action:  noopAction,
	}
	join := &registry.Module{
		ID:      "ncnr.join",
		Version: "1.0",
		Name:    "Join",
		Inputs: []registry.Terminal{
			{ID: "data", Datatype: "ncnr.refldata", Use: registry.UseInput, Required: false, Multiple: true},
		},
		Outputs: []registry.Terminal{{ID: "output", Datatype: "ncnr.refldata", Use: registry.UseOutput}},
		Action:  noopAction,
	}
	menu := []registry.MenuGroup{{Name: "g", Modules: []*registry.Module{load, scale, join}}}
	datatypes := []registry.DataType{{ID: "ncnr.refldata", New: func() registry.Value { return nil }}}
	inst, err := registry.NewInstrument("ncnr", "NCNR", menu, datatypes)
	require.NoError(t, err)
	return inst
}

func TestBuild_PrecedingStepReference(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load"},
		{Action: "scale", Config: map[string]any{"data": "-.output"}},
	}
	tpl, err := Build(diagram, inst)
	require.NoError(t, err)
	require.Len(t, tpl.Wires, 1)
	w := tpl.Wires[0]
	assert.Equal(t, 0, w.SourceNode)
	assert.Equal(t, "output", w.SourceTerminal)
	assert.Equal(t, 1, w.TargetNode)
	assert.Equal(t, "data", w.TargetTerminal)
}

func TestBuild_AliasReference(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load => mainload"},
		{Action: "load => bgload"},
		{Action: "scale", Config: map[string]any{"data": "bgload.output"}},
	}
	tpl, err := Build(diagram, inst)
	require.NoError(t, err)
	require.Len(t, tpl.Wires, 1)
	assert.Equal(t, 1, tpl.Wires[0].SourceNode)
}

func TestBuild_BareNameReferenceRequiresUniqueness(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load"},
		{Action: "load"},
		{Action: "scale", Config: map[string]any{"data": "load.output"}},
	}
	_, err := Build(diagram, inst)
	require.Error(t, err)
}

func TestBuild_BareNameReferenceResolvesWhenUnique(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load"},
		{Action: "scale", Config: map[string]any{"data": "load.output"}},
	}
	tpl, err := Build(diagram, inst)
	require.NoError(t, err)
	require.Len(t, tpl.Wires, 1)
	assert.Equal(t, 0, tpl.Wires[0].SourceNode)
}

func TestBuild_ModuleResolvedByIDNotDisplayName(t *testing.T) {
	// Diagram action strings use bare module ids ("scale"), which must
	// resolve against Module.ID, not the title-cased Module.Name ("Scale").
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load"},
		{Action: "scale", Config: map[string]any{"data": "-.output"}},
	}
	tpl, err := Build(diagram, inst)
	require.NoError(t, err)
	assert.Equal(t, "ncnr.scale", tpl.Modules[1].Module)
}

func TestBuild_OutputTerminalCannotBeConfigured(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load", Config: map[string]any{"output": "somevalue"}},
	}
	_, err := Build(diagram, inst)
	require.Error(t, err)
}

func TestBuild_MultipleWiresIntoSingleInputRejected(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load => a"},
		{Action: "load => b"},
		{Action: "scale", Config: map[string]any{"data": "a.output,b.output"}},
	}
	_, err := Build(diagram, inst)
	require.Error(t, err)
}

func TestBuild_MultipleWiresIntoMultiInputAccepted(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load => a"},
		{Action: "load => b"},
		{Action: "join", Config: map[string]any{"data": "a.output,b.output"}},
	}
	tpl, err := Build(diagram, inst)
	require.NoError(t, err)
	assert.Len(t, tpl.Wires, 2)
}

func TestBuild_RequiredInputMissingWireRejected(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "scale"},
	}
	_, err := Build(diagram, inst)
	require.Error(t, err)
	var berr *BuildError
	require.ErrorAs(t, err, &berr)
}

func TestBuild_OptionalInputMayBeUnwired(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "join"},
	}
	_, err := Build(diagram, inst)
	require.NoError(t, err)
}

func TestBuild_DatatypeMismatchRejected(t *testing.T) {
	inst := testInstrument(t)
	other := &registry.Module{
		ID:      "ncnr.other",
		Version: "1.0",
		Name:    "Other",
		Outputs: []registry.Terminal{{ID: "output", Datatype: "ncnr.otherdata", Use: registry.UseOutput}},
		Action:  noopAction,
	}
	inst.Modules = append(inst.Modules, other)

	diagram := []Step{
		{Action: "other"},
		{Action: "scale", Config: map[string]any{"data": "-.output"}},
	}
	_, err := Build(diagram, inst)
	require.Error(t, err)
}

func TestBuild_FieldValueStored(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load"},
		{Action: "scale", Config: map[string]any{"data": "-.output", "scale": 2.5}},
	}
	tpl, err := Build(diagram, inst)
	require.NoError(t, err)
	assert.Equal(t, 2.5, tpl.Modules[1].Config["scale"])
}

func TestBuild_UnknownConfigKeyRejected(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load"},
		{Action: "scale", Config: map[string]any{"data": "-.output", "bogus": 1}},
	}
	_, err := Build(diagram, inst)
	require.Error(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	inst := testInstrument(t)
	diagram := []Step{
		{Action: "load"},
		{Action: "scale", Config: map[string]any{"data": "-.output", "scale": 1.0}},
	}
	tpl, err := Build(diagram, inst)
	require.NoError(t, err)

	data, err := tpl.Save()
	require.NoError(t, err)

	loaded, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, tpl.Instrument, loaded.Instrument)
	require.Len(t, loaded.Wires, 1)
	assert.Equal(t, 0, loaded.Wires[0].SourceNode)
	assert.Equal(t, "output", loaded.Wires[0].SourceTerminal)
	assert.Equal(t, 1, loaded.Wires[0].TargetNode)
	assert.Equal(t, "data", loaded.Wires[0].TargetTerminal)
}

func TestLoad_VersionMismatchRejected(t *testing.T) {
	_, err := Load([]byte(`{"instrument":"ncnr","version":"0.0"}`))
	require.Error(t, err)
}
