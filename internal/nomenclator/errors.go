package nomenclator

import (
	"errors"
	"fmt"
)

// ErrSchema matches every error caused by an XML document that does not have
// the shape expected for its catalog, including invalid flag values and
// missing required fields.
var ErrSchema = errors.New("schema error")

// SchemaError reports a document that could not be decoded into its records.
type SchemaError struct {
	Catalog string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("failed to deserialize %s XML: %v", e.Catalog, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// FlagError is returned when a boolean field holds something other than "0" or "1".
type FlagError struct {
	Field string
	Value string
}

func (e *FlagError) Error() string {
	return fmt.Sprintf("field %s: expected '0' or '1', got '%s'", e.Field, e.Value)
}

func (e *FlagError) Is(target error) bool { return target == ErrSchema }

// MissingFieldError is returned when a record lacks a required element, or
// the element is empty. Field is the element path inside the record, e.g.
// "atc[2]/cod_atc".
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %s is missing", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrSchema }
