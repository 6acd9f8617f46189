package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Deterministic(t *testing.T) {
	config := map[string]any{"scale": 2.0, "name": "a"}
	fp1, err := Node("ncnr.refl.scale", "2024-01-15", config, nil)
	require.NoError(t, err)
	fp2, err := Node("ncnr.refl.scale", "2024-01-15", config, nil)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 40) // hex-encoded SHA-1
}

func TestNode_MapKeyOrderDoesNotMatter(t *testing.T) {
	a := map[string]any{"x": 1, "y": 2}
	b := map[string]any{"y": 2, "x": 1}
	fpA, err := Node("mod", "1.0", a, nil)
	require.NoError(t, err)
	fpB, err := Node("mod", "1.0", b, nil)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestNode_DifferentConfigDifferentFingerprint(t *testing.T) {
	fp1, err := Node("mod", "1.0", map[string]any{"scale": 1.0}, nil)
	require.NoError(t, err)
	fp2, err := Node("mod", "1.0", map[string]any{"scale": 2.0}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestNode_InputsAffectFingerprint(t *testing.T) {
	base, err := Node("mod", "1.0", nil, nil)
	require.NoError(t, err)
	withInput, err := Node("mod", "1.0", nil, []InputDescriptor{
		{TargetTerminal: "data", SourceTerminal: "output", SourceFP: "deadbeef"},
	})
	require.NoError(t, err)
	assert.NotEqual(t, base, withInput)
}

func TestNode_UnversionedModuleFails(t *testing.T) {
	_, err := Node("mod", "", nil, nil)
	require.Error(t, err)
	var verr *UnversionedModuleError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "mod", verr.ModuleID)
}

type fakeValue struct{ tag string }

func (v fakeValue) Serialize() (any, error) { return map[string]any{"tag": v.tag}, nil }
func (v fakeValue) Deserialize(any) error   { return nil }

func TestNode_RegistryValueRenderedThroughSerialize(t *testing.T) {
	fp1, err := Node("mod", "1.0", map[string]any{"v": fakeValue{tag: "a"}}, nil)
	require.NoError(t, err)
	fp2, err := Node("mod", "1.0", map[string]any{"v": fakeValue{tag: "b"}}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestAll_TopologicalOrderRequired(t *testing.T) {
	nodes := []NodeSpec{
		{ModuleID: "load", ModuleVersion: "1.0"},
		{ModuleID: "scale", ModuleVersion: "1.0", Inputs: []WireRef{
			{TargetTerminal: "data", SourceTerminal: "output", SourceNode: 0},
		}},
	}
	fps, err := All([]int{0, 1}, nodes)
	require.NoError(t, err)
	assert.Len(t, fps, 2)
	assert.NotEqual(t, fps[0], fps[1])
}

func TestAll_UnresolvedSourceFails(t *testing.T) {
	nodes := []NodeSpec{
		{ModuleID: "scale", ModuleVersion: "1.0", Inputs: []WireRef{
			{TargetTerminal: "data", SourceTerminal: "output", SourceNode: 5},
		}},
	}
	_, err := All([]int{0}, nodes)
	require.Error(t, err)
}
