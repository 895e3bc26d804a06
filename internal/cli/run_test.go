package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/harness"
)

// runResponse mirrors RunResult with trace values left undecoded.
type runResponse struct {
	Scenario string           `json:"scenario"`
	Pass     bool             `json:"pass"`
	Errors   []string         `json:"errors"`
	Trace    []map[string]any `json:"trace"`
	Metrics  map[string]int64 `json:"metrics"`
}

// writeScenario writes a scenario using the hr model under dir.
func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	model, err := filepath.Abs(testdata("models", "hr"))
	require.NoError(t, err)
	content := "name: " + name + "\ndescription: " + name + "\nmodels: [" + model + "]\n" + body
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunScenarioText(t *testing.T) {
	out, err := execute(t, "run", testdata("scenarios", "hire.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "[1] hire s-2 AddEntity hr:e1")
	assert.Contains(t, out, "[2] hire s-2 ChangePropertyValue hr:e1.Name = Ada")
	assert.Contains(t, out, "[4] hire s-2 committed")
	assert.Contains(t, out, "nameless error: hr:p2 needs a name")
	assert.Contains(t, out, "[8] audit validate contact: 0 error(s), 1 warning(s)")
	assert.Contains(t, out, "✓ hire")
	assert.NotContains(t, out, "Metrics:")
}

func TestRunScenarioJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", testdata("scenarios", "hire.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   runResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "hire", resp.Data.Scenario)
	assert.True(t, resp.Data.Pass)
	require.Len(t, resp.Data.Trace, 8)
	assert.Equal(t, harness.EntryEvent, resp.Data.Trace[0]["type"])
	assert.Equal(t, "AddEntity", resp.Data.Trace[0]["kind"])
	assert.Equal(t, "Ada", resp.Data.Trace[1]["value"])
	assert.Equal(t, harness.EntryValidate, resp.Data.Trace[7]["type"])
	assert.Equal(t, float64(1), resp.Data.Trace[7]["warnings"])
}

func TestRunScenarioMetrics(t *testing.T) {
	out, err := execute(t, "run", "--metrics", testdata("scenarios", "hire.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Metrics:")
	assert.Contains(t, out, "lattice.events.notified")
}

func TestRunScenarioMetricsJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "run", "--metrics", testdata("scenarios", "teams.yaml"))
	require.NoError(t, err)

	var resp struct {
		Data runResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Positive(t, resp.Data.Metrics["lattice.events.notified"])
}

func TestRunScenarioWritesJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hire.db")
	_, err := execute(t, "run", "--journal", path, testdata("scenarios", "hire.yaml"))
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestRunFailingScenario(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "failing", `
steps:
  - name: one
    actions:
      - {op: create, schema: Person, key: p1}
      - {op: set, id: p1, property: Name, value: Ada}
assertions:
  - {type: element, id: p1, properties: {Name: Bob}}
`)

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "hr:p1.Name = Bob")
}

func TestRunFailingScenarioJSON(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "failing", `
steps:
  - name: one
    expect: aborted
    actions:
      - {op: create, schema: Team, key: t1}
`)

	out, err := execute(t, "--format", "json", "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   runResponse `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Pass)
	assert.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
}

func TestRunMissingScenario(t *testing.T) {
	_, err := execute(t, "run", "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunScenarioCategory(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "category", `steps:
  - name: add
    actions:
      - {op: create, schema: Person, key: p1}
      - {op: set, id: p1, property: Name, value: Ada}
      - {op: set, id: p1, property: Email, value: ada}
  - name: audit
    validate: ""
`)

	out, err := execute(t, "run", path, "--category", "billing")
	require.NoError(t, err)
	assert.Contains(t, out, "audit validate billing: 0 error(s), 0 warning(s)")

	out, err = execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "audit validate all: 0 error(s), 1 warning(s)")
}
