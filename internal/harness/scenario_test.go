package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestParseScenario_Defaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: minimal
description: one commit
steps:
  - op: commit
`))
	require.NoError(t, err)
	assert.Equal(t, "page", s.Page)
	assert.Empty(t, s.Setup)
	require.Len(t, s.Steps, 1)
}

func TestParseScenario_NullPatchValue(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: null_patch
description: a null in a patch deletes the key
steps:
  - op: update
    id: h1
    props: {level: null}
`))
	require.NoError(t, err)

	v, ok := s.Steps[0].Props["level"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\nstepz: []\n", "failed to parse YAML"},
		{"no name", "description: d\nsteps: [{op: commit}]\n", "name is required"},
		{"no description", "name: x\nsteps: [{op: commit}]\n", "description is required"},
		{"no steps", "name: x\ndescription: d\n", "steps list is required"},
		{"unknown op", "name: x\ndescription: d\nsteps: [{op: paint}]\n", `unknown op "paint"`},
		{"missing op", "name: x\ndescription: d\nsteps: [{id: a}]\n", "op is required"},
		{"move without id", "name: x\ndescription: d\nsteps: [{op: move, target: a, position: inside}]\n", "move requires id"},
		{"bad position", "name: x\ndescription: d\nsteps: [{op: move, id: a, target: b, position: under}]\n", "invalid position"},
		{"insert without node", "name: x\ndescription: d\nsteps: [{op: insert, position: inside}]\n", "insert requires node"},
		{"update without props", "name: x\ndescription: d\nsteps: [{op: update, id: a}]\n", "update requires props"},
		{"bad assertion", "name: x\ndescription: d\nsteps: [{op: commit}]\nassertions: [{type: vibes}]\n", `unknown assertion type "vibes"`},
		{"status without id", "name: x\ndescription: d\nsteps: [{op: commit}]\nassertions: [{type: status, status: new}]\n", "status requires id"},
		{"count without count", "name: x\ndescription: d\nsteps: [{op: commit}]\nassertions: [{type: count}]\n", "count requires count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingKindsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	writeFile(t, path, "name: x\ndescription: d\nkinds: [nope.cue]\nsteps: [{op: commit}]\n")

	_, err := LoadScenario(path)
	assert.ErrorContains(t, err, "kinds file not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}
