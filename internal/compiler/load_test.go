package compiler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_File(t *testing.T) {
	path := filepath.Join("testdata", "box.cue")

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, p.Source)
	require.Len(t, p.Actors, 2)
	assert.Equal(t, "box", p.Actors[0].Name)
	assert.Equal(t, "client", p.Actors[1].Name)
}

func TestLoad_Dir(t *testing.T) {
	dir := filepath.Join("testdata", "split")

	p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, p.Source)

	var names []string
	for _, a := range p.Actors {
		names = append(names, a.Name)
	}
	assert.ElementsMatch(t, []string{"greeter", "echo"}, names)
	assert.Empty(t, Validate(p))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program not found")
}

func TestLoad_EmptyDir(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")
}

func TestFindCUEFiles(t *testing.T) {
	files, err := FindCUEFiles("testdata")
	require.NoError(t, err)
	assert.Len(t, files, 3)
}
