package chart

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindBlockCount       ErrorKind = "block_count"
	KindBadShape         ErrorKind = "bad_shape"
	KindDisallowedImport ErrorKind = "disallowed_import"
	KindSyntax           ErrorKind = "syntax"
	KindMissingOutput    ErrorKind = "missing_output"
	KindRuntimeFailure   ErrorKind = "runtime_failure"
)

var (
	ErrBlockCount       = errors.New("unexpected number of blocks")
	ErrBadShape         = errors.New("data is not a rectangular column mapping")
	ErrDisallowedImport = errors.New("import not allowed")
	ErrSyntax           = errors.New("chart code does not parse")
	ErrMissingOutput    = errors.New("chart code did not produce output")
	ErrRuntimeFailure   = errors.New("chart code failed")
)

// SandboxError reports why a chart payload was rejected or failed.
type SandboxError struct {
	Kind ErrorKind

	// Block, Expected and Found are set for KindBlockCount.
	Block    string
	Expected int
	Found    int

	// Module is set for KindDisallowedImport.
	Module string

	Message string
}

func (e *SandboxError) Error() string {
	switch e.Kind {
	case KindBlockCount:
		return fmt.Sprintf("generated %d %s blocks but expected %d", e.Found, e.Block, e.Expected)
	case KindDisallowedImport:
		return fmt.Sprintf("use of %s module is not allowed", e.Module)
	case KindMissingOutput:
		return fmt.Sprintf("%s: %s", ErrMissingOutput, e.Message)
	case KindBadShape:
		return fmt.Sprintf("%s: %s", ErrBadShape, e.Message)
	case KindSyntax:
		return fmt.Sprintf("%s: %s", ErrSyntax, e.Message)
	default:
		return fmt.Sprintf("%s: %s", ErrRuntimeFailure, e.Message)
	}
}

func (e *SandboxError) Unwrap() error {
	switch e.Kind {
	case KindBlockCount:
		return ErrBlockCount
	case KindBadShape:
		return ErrBadShape
	case KindDisallowedImport:
		return ErrDisallowedImport
	case KindSyntax:
		return ErrSyntax
	case KindMissingOutput:
		return ErrMissingOutput
	default:
		return ErrRuntimeFailure
	}
}

func blockCountError(block string, found int) *SandboxError {
	return &SandboxError{Kind: KindBlockCount, Block: block, Expected: 1, Found: found}
}

func badShape(format string, args ...any) *SandboxError {
	return &SandboxError{Kind: KindBadShape, Message: fmt.Sprintf(format, args...)}
}
