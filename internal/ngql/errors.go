package ngql

import (
	"errors"
	"fmt"

	"graphetl/internal/record"
)

var (
	// ErrTypeMapping is wrapped by every *TypeMappingError.
	ErrTypeMapping = errors.New("type mapping error")
	// ErrColumnNotFound means a field or binding key is not among the
	// configured columns. It is a configuration problem, not a bad row.
	ErrColumnNotFound = errors.New("column not found")
	// ErrEmptyBatch is returned when a builder is called with no rows.
	ErrEmptyBatch = errors.New("empty batch")
	// ErrNullKey means a row's vertex id or edge endpoint key is null or
	// unparsable. Such rows would all collapse onto one "<type>_NULL" id.
	ErrNullKey = errors.New("null primary key")
)

// TypeMappingError reports a cell that cannot be rendered for a field.
type TypeMappingError struct {
	Field        string
	DeclaredType string
	Kind         record.Kind
}

func (e *TypeMappingError) Error() string {
	return fmt.Sprintf("ngql: cannot render %s cell for field %q of type %q", e.Kind, e.Field, e.DeclaredType)
}

func (e *TypeMappingError) Unwrap() error { return ErrTypeMapping }
