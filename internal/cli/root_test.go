package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "dsrun", cmd.Use)
	assert.Contains(t, cmd.Long, "dataspace")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "validate", "trace", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"fuel", "journal", "watch", "run-id", "timeout", "metrics-addr"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
	assert.Equal(t, "1000", runCmd.Flags().Lookup("fuel").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "validate", boxProgram)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "format")
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := execute(t, "--log-level", "loud", "validate", boxProgram)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestConfigFileSetsFormat(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "dsrun.yaml", "format: json\n")

	out, _, err := execute(t, "--config", cfgPath, "validate", greeterProgram)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestEnvironmentSetsFormat(t *testing.T) {
	t.Setenv("DATASPACE_FORMAT", "json")

	out, _, err := execute(t, "validate", greeterProgram)
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), "expected JSON output, got %q", out)
}

func TestFlagOverridesConfigFile(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "dsrun.yaml", "format: json\n")

	out, _, err := execute(t, "--config", cfgPath, "--format", "text", "validate", greeterProgram)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Program valid")
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
}
