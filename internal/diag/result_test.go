package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/value"
)

func TestResultFlags(t *testing.T) {
	r := &Result{}
	assert.True(t, r.Empty())
	assert.False(t, r.HasErrors())
	assert.False(t, r.HasWarnings())
	assert.NoError(t, r.Err())

	r.Add(Message{Severity: SeverityWarning, Text: "w"})
	assert.True(t, r.HasWarnings())
	assert.False(t, r.HasErrors())
	assert.NoError(t, r.Err())

	r.Add(Message{Severity: SeverityError, Text: "e", Element: value.NewID("hr", "1")})
	assert.True(t, r.HasErrors())
	assert.Len(t, r.Errors(), 1)
	assert.Len(t, r.Warnings(), 1)

	err := r.Err()
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Messages, 1)
	assert.Contains(t, err.Error(), "hr:1")

	r.SetSilent(true)
	assert.NoError(t, r.Err(), "silent results never fail the session")
}

func TestResultMerge(t *testing.T) {
	a := NewResult(Message{Severity: SeverityError, Text: "a1"}, Message{Severity: SeverityWarning, Text: "a2"})
	b := NewResult(Message{Severity: SeverityError, Text: "b1"})
	b.SetSilent(true)

	a.Merge(b)
	texts := []string{}
	for _, m := range a.Messages() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, texts)
	assert.True(t, a.Silent(), "silence accumulates")

	c := NewResult()
	c.Merge(NewResult())
	assert.False(t, c.Silent())

	a.Merge(a)
	assert.Equal(t, 3, a.Len())
	a.Merge(nil)
	assert.Equal(t, 3, a.Len())
}

func TestMessageString(t *testing.T) {
	m := Message{
		Severity:     SeverityError,
		Text:         "required",
		Element:      value.NewID("hr", "1"),
		PropertyName: "Name",
		Cause:        errors.New("boom"),
	}
	assert.Equal(t, "error [hr:1.Name]: required (boom)", m.String())
	assert.Equal(t, "warning: w", Message{Severity: SeverityWarning, Text: "w"}.String())
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("Warning")
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, s)

	s, err = ParseSeverity("")
	require.NoError(t, err)
	assert.Equal(t, SeverityError, s)

	_, err = ParseSeverity("fatal")
	assert.Error(t, err)

	var sev Severity
	require.NoError(t, sev.UnmarshalText([]byte("error")))
	assert.Equal(t, SeverityError, sev)
}

func TestValidationErrorMultiple(t *testing.T) {
	err := &ValidationError{Messages: []Message{
		{Severity: SeverityError, Text: "one"},
		{Severity: SeverityError, Text: "two"},
	}}
	assert.Equal(t, "validation failed with 2 error(s)\n  error: one\n  error: two", err.Error())
}
