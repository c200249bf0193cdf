package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	boxProgram     = "../harness/testdata/programs/box.cue"
	greeterProgram = "../harness/testdata/programs/greeter.cue"
	faultyProgram  = "../harness/testdata/programs/faulty.cue"
	scenariosDir   = "../harness/testdata/scenarios"
	goldenDir      = "../harness/testdata/golden"
)

// execute runs the root command with args and returns what it wrote to
// stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
