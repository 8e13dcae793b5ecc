package replication

import (
	"errors"
	"fmt"
)

// Kind classifies a job failure. Each kind maps to a distinct process exit
// code so the supervising cron platform can distinguish failure classes.
type Kind int

// The set of failure kinds, ordered by increasing severity. When multiple
// failures occur in one job the maximum-severity kind wins the exit code.
const (
	KindGeneral Kind = iota
	KindTool
	KindInspector
	KindInvalidState
	KindS3
	KindFS
	KindTerminated
	KindRollback
)

// Process exit codes observable by the supervising platform.
const (
	ExitOK           = 0
	ExitGeneral      = 1
	ExitTool         = 100
	ExitInspector    = 101
	ExitInvalidState = 102
	ExitRollback     = 104
	ExitS3           = 105
	ExitFS           = 107
	ExitTerminated   = 130
)

func (k Kind) String() string {
	switch k {
	case KindGeneral:
		return "GeneralError"
	case KindTool:
		return "ToolError"
	case KindInspector:
		return "InspectorError"
	case KindInvalidState:
		return "InvalidStateError"
	case KindS3:
		return "S3Error"
	case KindFS:
		return "FSError"
	case KindTerminated:
		return "Terminated"
	case KindRollback:
		return "RollbackError"
	}
	return "UnknownError"
}

// ExitCode returns the process exit code for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindTool:
		return ExitTool
	case KindInspector:
		return ExitInspector
	case KindInvalidState:
		return ExitInvalidState
	case KindRollback:
		return ExitRollback
	case KindS3:
		return ExitS3
	case KindFS:
		return ExitFS
	case KindTerminated:
		return ExitTerminated
	}
	return ExitGeneral
}

// Error tags an underlying error with a failure kind. It is the only error
// type the engine classifies; anything untagged is a GeneralError.
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps err with the given kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf formats a new tagged error.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, or KindGeneral when err carries no
// tag.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindGeneral
}

// ExitCode maps an error to the process exit code table. A nil error is
// success.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return KindOf(err).ExitCode()
}
