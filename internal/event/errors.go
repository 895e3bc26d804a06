package event

import (
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/value"
)

// InvalidEventCode categorizes construction failures.
type InvalidEventCode string

const (
	// ErrCodeMissingIdentity indicates a required identity or name is empty.
	ErrCodeMissingIdentity InvalidEventCode = "MISSING_IDENTITY"

	// ErrCodeMissingDomain indicates the header names no domain model.
	ErrCodeMissingDomain InvalidEventCode = "MISSING_DOMAIN"

	// ErrCodeMissingCorrelation indicates the header has no session id.
	ErrCodeMissingCorrelation InvalidEventCode = "MISSING_CORRELATION"

	// ErrCodeReservedKind indicates a custom event reused a built-in kind.
	ErrCodeReservedKind InvalidEventCode = "RESERVED_KIND"
)

// InvalidEventError is returned by constructors when a required field is
// absent.
type InvalidEventError struct {
	Code  InvalidEventCode
	Kind  Kind
	Field string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid %s event: %s: %s", e.Kind, e.Code, e.Field)
}

// IsInvalidEvent reports whether err is an *InvalidEventError.
func IsInvalidEvent(err error) bool {
	var ie *InvalidEventError
	return errors.As(err, &ie)
}

type field struct {
	name string
	val  any
}

var builtinKinds = map[Kind]bool{
	KindAddEntity: true, KindRemoveEntity: true,
	KindAddRelationship: true, KindRemoveRelationship: true,
	KindChangePropertyValue: true, KindRemoveProperty: true,
	KindAddSchemaEntity: true, KindAddSchemaRelationship: true, KindAddSchemaProperty: true,
}

// IsBuiltin reports whether k is one of the kinds defined in this package.
func IsBuiltin(k Kind) bool {
	return builtinKinds[k]
}

func validate(kind Kind, h Header, fields ...field) error {
	if h.DomainModel == "" {
		return &InvalidEventError{Code: ErrCodeMissingDomain, Kind: kind, Field: "domain_model"}
	}
	if h.CorrelationID == "" {
		return &InvalidEventError{Code: ErrCodeMissingCorrelation, Kind: kind, Field: "correlation_id"}
	}
	for _, f := range fields {
		switch v := f.val.(type) {
		case value.ID:
			if !v.Valid() {
				return &InvalidEventError{Code: ErrCodeMissingIdentity, Kind: kind, Field: f.name}
			}
		case string:
			if v == "" {
				return &InvalidEventError{Code: ErrCodeMissingIdentity, Kind: kind, Field: f.name}
			}
		}
	}
	return nil
}
