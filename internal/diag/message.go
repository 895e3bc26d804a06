package diag

import (
	"fmt"
	"strings"

	"github.com/roach88/lattice/internal/value"
)

// Severity levels a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	sev, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ParseSeverity parses "error" or "warning", case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "error", "":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

// Message is one diagnostic.
type Message struct {
	Severity Severity
	// Text has already been through Format.
	Text     string
	Category string
	// Element is the offending element, zero when not attributable.
	Element      value.ID
	PropertyName string
	Cause        error
}

func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Severity.String())
	if !m.Element.IsZero() {
		b.WriteString(" [")
		b.WriteString(m.Element.String())
		if m.PropertyName != "" {
			b.WriteByte('.')
			b.WriteString(m.PropertyName)
		}
		b.WriteByte(']')
	}
	b.WriteString(": ")
	b.WriteString(m.Text)
	if m.Cause != nil {
		b.WriteString(" (")
		b.WriteString(m.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}
