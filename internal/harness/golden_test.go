package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Greeter(t *testing.T) {
	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_Greeter -update
	result, err := RunWithGolden(t, loadScenario(t, "greeter"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_Format(t *testing.T) {
	result := NewResult()
	result.Trace = []string{"started a", "terminated a"}
	result.Final = []string{`{"@A":[]}`}

	got := string(Snapshot("demo", result))
	want := strings.Join([]string{
		"# scenario: demo",
		"# trace",
		"started a",
		"terminated a",
		"# final",
		`{"@A":[]}`,
		"",
	}, "\n")
	assert.Equal(t, want, got)
}
