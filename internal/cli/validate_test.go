package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/compiler"
)

func TestValidateValidModel(t *testing.T) {
	out, err := execute(t, "validate", testdata("models", "hr"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Model hr valid")
}

func TestValidateValidModelJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", testdata("models", "hr"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "hr", resp.Data.Domain)
}

func TestValidateBrokenModel(t *testing.T) {
	out, err := execute(t, "validate", testdata("models", "broken"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownExtends)
	assert.Contains(t, out, compiler.ErrInheritanceCycle)
	assert.Contains(t, out, compiler.ErrInvalidRule)
}

func TestValidateBrokenModelJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", testdata("models", "broken"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, "broken", resp.Data.Domain)

	codes := make(map[string]bool)
	for _, e := range resp.Data.Errors {
		codes[e.Code] = true
	}
	assert.True(t, codes[compiler.ErrUnknownExtends])
	assert.True(t, codes[compiler.ErrInheritanceCycle])
	assert.True(t, codes[compiler.ErrInvalidRule])
	require.NotNil(t, resp.Error)
	assert.Equal(t, resp.Data.Errors[0].Code, resp.Error.Code)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, "validate", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), compiler.ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), compiler.ErrCodeNoFiles)
}

func TestValidateSyntaxError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.cue"), []byte("package bad\n\ndomain: \"bad\"\nentity: {\n"), 0o644))

	_, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateRequiresOneArgument(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
}
