package graph

import (
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/value"
)

// ErrorCode categorizes graph errors.
type ErrorCode string

const (
	// ErrCodeDomainExists indicates CreateDomain was called for a taken name.
	ErrCodeDomainExists ErrorCode = "DOMAIN_EXISTS"

	// ErrCodeUnknownDomain indicates a domain name that resolves to nothing.
	ErrCodeUnknownDomain ErrorCode = "UNKNOWN_DOMAIN"

	// ErrCodeUnknownSchema indicates a schema id missing from the registry.
	ErrCodeUnknownSchema ErrorCode = "UNKNOWN_SCHEMA"

	// ErrCodeSchemaKind indicates a schema of the wrong kind for the operation.
	ErrCodeSchemaKind ErrorCode = "SCHEMA_KIND"

	// ErrCodeElementExists indicates a duplicate element id.
	ErrCodeElementExists ErrorCode = "ELEMENT_EXISTS"

	// ErrCodeElementNotFound indicates an element id missing from the domain.
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"

	// ErrCodeUnknownProperty indicates a property the schema does not declare.
	ErrCodeUnknownProperty ErrorCode = "UNKNOWN_PROPERTY"

	// ErrCodePropertyType indicates a value of the wrong primitive type.
	ErrCodePropertyType ErrorCode = "PROPERTY_TYPE"

	// ErrCodeEndpoint indicates a relationship endpoint that violates its schema.
	ErrCodeEndpoint ErrorCode = "INVALID_ENDPOINT"
)

// Error is returned by the mutation API.
type Error struct {
	Code    ErrorCode
	Domain  string
	Element value.ID
	Message string
}

func (e *Error) Error() string {
	if !e.Element.IsZero() {
		return fmt.Sprintf("%s: %s (domain=%s, element=%s)", e.Code, e.Message, e.Domain, e.Element)
	}
	return fmt.Sprintf("%s: %s (domain=%s)", e.Code, e.Message, e.Domain)
}

func hasCode(err error, code ErrorCode) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// IsNotFound reports whether err is an unknown element error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeElementNotFound) }

// IsUnknownDomain reports whether err is an unknown domain error.
func IsUnknownDomain(err error) bool { return hasCode(err, ErrCodeUnknownDomain) }

// IsUnknownSchema reports whether err is an unknown schema error.
func IsUnknownSchema(err error) bool { return hasCode(err, ErrCodeUnknownSchema) }
