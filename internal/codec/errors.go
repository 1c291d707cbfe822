package codec

import "fmt"

// SchemaMissingError is returned by Encode when type_name cannot be
// resolved in the registry (spec §4.4, §7). Decoding never returns this;
// it falls back to blind-decode instead.
type SchemaMissingError struct {
	TypeName string
}

func (e *SchemaMissingError) Error() string {
	return fmt.Sprintf("codec: schema missing for type %q", e.TypeName)
}

// TypeMismatchError is returned by Encode when a value tree leaf cannot be
// coerced to its field's declared type.
type TypeMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("codec: field %q: cannot encode %s as %s", e.Field, e.Got, e.Want)
}
