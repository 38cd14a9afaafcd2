package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is matched by every *SchemaError.
	ErrSchema = errors.New("schema error")
	// ErrMalformedInput is matched by every *MalformedInputError.
	ErrMalformedInput = errors.New("malformed input")
)

// SchemaError reports a catalog that lacks a required column entirely.
type SchemaError struct {
	Catalog string
	Field   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("catalog %q: missing required column %q", e.Catalog, e.Field)
}

// Is reports whether target is ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// MalformedInputError reports a row whose required value is missing or not a
// finite number.
type MalformedInputError struct {
	Catalog string
	Row     int
	Field   string
	Value   string
}

func (e *MalformedInputError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("catalog %q row %d: missing value for %q", e.Catalog, e.Row, e.Field)
	}
	return fmt.Sprintf("catalog %q row %d: %q is not a finite number: %q", e.Catalog, e.Row, e.Field, e.Value)
}

// Is reports whether target is ErrMalformedInput.
func (e *MalformedInputError) Is(target error) bool { return target == ErrMalformedInput }
