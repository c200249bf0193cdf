package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataspace/internal/store"
)

func TestRun_Quiesces(t *testing.T) {
	out, _, err := execute(t, "run", "--run-id", "box-1", boxProgram)
	require.NoError(t, err)
	assert.Contains(t, out, "Run box-1 quiesced")
	assert.Contains(t, out, "Actors left: 1")
}

func TestRun_JournalsTrace(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trace.db")

	_, _, err := execute(t, "run", "--journal", dbPath, "--run-id", "greet", greeterProgram)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	events, err := st.ReadTrace(context.Background(), store.TraceFilter{RunID: "greet", Kind: store.KindPatch})
	require.NoError(t, err)

	var lines []string
	for _, e := range events {
		lines = append(lines, e.String())
	}
	assert.Contains(t, lines, `patch greeter absent_to_present {"@Hello":["world"]}`)
	assert.Contains(t, lines, `patch echo absent_to_present {"@Seen":["world"]}`)
}

func TestRun_JSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "run", "--run-id", "g", greeterProgram)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "g", resp.RunID)
	assert.Contains(t, resp.Data.Assertions, `{"@Seen":["world"]}`)
	assert.ElementsMatch(t, []string{"greeter", "echo"}, resp.Data.Actors)
	assert.False(t, resp.Data.Cancelled)
}

func TestRun_ActorFailure(t *testing.T) {
	out, _, err := execute(t, "run", faultyProgram)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ counter failed")
	assert.Contains(t, out, "non-integer")
}

func TestRun_InvalidProgram(t *testing.T) {
	path := writeFile(t, t.TempDir(), "idle.cue", `actors: idle: fields: n: 0`)

	out, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E102")
}

func TestRun_MissingProgram(t *testing.T) {
	_, _, err := execute(t, "run", "/nonexistent/program.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_InvalidFuel(t *testing.T) {
	_, _, err := execute(t, "run", "--fuel", "0", greeterProgram)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "fuel")
}

func TestRun_WatchRunsUntilTimeout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "seed.txt", "hello")

	out, _, err := execute(t, "--format", "json", "run", "--watch", dir, "--timeout", "300ms", greeterProgram)
	require.NoError(t, err)

	var resp struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Cancelled, "a watched run only stops on timeout")
	assert.Contains(t, resp.Data.Assertions, `{"@File":["`+filepath.Join(dir, "seed.txt")+`"]}`)
}
