package value

import (
	"fmt"
	"strings"
)

// ID identifies an element or a schema node. The Domain part names the
// owning domain model; Key is unique within that domain.
type ID struct {
	Domain string
	Key    string
}

// NewID creates an ID.
func NewID(domain, key string) ID {
	return ID{Domain: domain, Key: key}
}

// IsZero reports whether the identity is missing.
func (id ID) IsZero() bool {
	return id.Domain == "" && id.Key == ""
}

// Valid reports whether both parts are present.
func (id ID) Valid() bool {
	return id.Domain != "" && id.Key != ""
}

// String renders the identity as "domain:key".
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.Domain + ":" + id.Key
}

// SameDomain compares the domain parts case-insensitively.
func (id ID) SameDomain(domain string) bool {
	return strings.EqualFold(id.Domain, domain)
}

// ParseID parses the "domain:key" form produced by String.
func ParseID(s string) (ID, error) {
	domain, key, ok := strings.Cut(s, ":")
	if !ok || domain == "" || key == "" {
		return ID{}, fmt.Errorf("invalid identity %q: expected domain:key", s)
	}
	return ID{Domain: domain, Key: key}, nil
}

// MustParseID is like ParseID but panics on error.
// Use only in tests or with literal inputs.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = ID{}
		return nil
	}
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
