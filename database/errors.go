package database

import (
	"errors"
	"fmt"
)

// ErrInvalidArity is returned by batch operations when parallel input slices
// have mismatched lengths.
var ErrInvalidArity = errors.New("mismatched batch input lengths")

// UnsafeIdentifierError indicates that a table or column name reaching the
// generic property accessor is not part of the live schema. The offending
// statement is never executed.
type UnsafeIdentifierError struct {
	Name string
}

func (e *UnsafeIdentifierError) Error() string {
	return fmt.Sprintf("unsafe identifier: %q is not in the schema", e.Name)
}
