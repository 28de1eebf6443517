package sqlguard

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindEmpty              ErrorKind = "empty"
	KindMultipleStatements ErrorKind = "multiple_statements"
	KindNonSelect          ErrorKind = "non_select"
)

var (
	ErrEmpty              = errors.New("no SQL statement found")
	ErrMultipleStatements = errors.New("only a single statement is allowed")
	ErrNonSelect          = errors.New("only SELECT statements are allowed")
)

// GuardError explains why a text was not accepted as a read-only statement.
type GuardError struct {
	Kind ErrorKind
	// Statement is the rejected statement kind for KindNonSelect, e.g. "DROP".
	Statement string
	// Count is the number of statements found for KindMultipleStatements.
	Count int
}

func (e *GuardError) Error() string {
	switch e.Kind {
	case KindNonSelect:
		return fmt.Sprintf("%s, got: %s", ErrNonSelect, e.Statement)
	case KindMultipleStatements:
		return fmt.Sprintf("%s, got %d statements", ErrMultipleStatements, e.Count)
	default:
		return ErrEmpty.Error()
	}
}

func (e *GuardError) Unwrap() error {
	switch e.Kind {
	case KindNonSelect:
		return ErrNonSelect
	case KindMultipleStatements:
		return ErrMultipleStatements
	default:
		return ErrEmpty
	}
}
