package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceListsSessions(t *testing.T) {
	out, err := execute(t, "trace", hireJournal(t))
	require.NoError(t, err)

	assert.Contains(t, out, "[1] s-1 committed")
	assert.Contains(t, out, "[2] s-2 committed")
	assert.Contains(t, out, "[3] s-3 aborted")
	assert.Contains(t, out, "Sessions: 3 (2 committed, 1 aborted)")
	assert.NotContains(t, out, "AddEntity")
}

func TestTraceOneSession(t *testing.T) {
	out, err := execute(t, "trace", "--session", "s-2", hireJournal(t))
	require.NoError(t, err)

	assert.Contains(t, out, "[2] s-2 committed")
	assert.Contains(t, out, "hr AddEntity")
	assert.Contains(t, out, "hr ChangePropertyValue")
	assert.NotContains(t, out, "s-1")
}

func TestTraceJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "trace", "--session", "s-2", hireJournal(t))
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Sessions, 1)

	s := resp.Data.Sessions[0]
	assert.Equal(t, "s-2", s.Session)
	assert.Equal(t, "committed", s.Status)
	require.NotEmpty(t, s.Timeline)
	assert.Equal(t, "AddEntity", s.Timeline[0].Kind)
	assert.Equal(t, "hr", s.Timeline[0].Domain)
	assert.Len(t, s.Timeline, s.Events)
	assert.Equal(t, 1, resp.Data.Stats.Committed)
}

func TestTraceDomainFilter(t *testing.T) {
	out, err := execute(t, "--format", "json", "trace", "--events", "--domain", "payroll", hireJournal(t))
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Sessions, 3)
	for _, s := range resp.Data.Sessions {
		assert.Empty(t, s.Timeline)
	}
}

func TestTraceUnknownSession(t *testing.T) {
	out, err := execute(t, "trace", "--session", "s-99", hireJournal(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "session s-99 not found")
}

func TestTraceMissingJournal(t *testing.T) {
	_, err := execute(t, "trace", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
