package fsops

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/jkaninda/kazi/internal/workspace"
)

// Kind classifies an operation failure. Every public operation converts
// underlying I/O errors into one of these kinds — raw filesystem errors
// never reach the caller.
type Kind int

const (
	KindUnexpectedIO Kind = iota // catch-all for underlying filesystem errors
	KindInvalidArgument
	KindPathViolation
	KindNotFound
	KindAlreadyExists
	KindNotAFile
	KindNotADirectory
	KindExecutionTimeout
	KindSpawnFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindPathViolation:
		return "path_violation"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotAFile:
		return "not_a_file"
	case KindNotADirectory:
		return "not_a_directory"
	case KindExecutionTimeout:
		return "execution_timeout"
	case KindSpawnFailure:
		return "spawn_failure"
	default:
		return "io_error"
	}
}

// Error is a classified operation failure with a human-readable message.
type Error struct {
	Kind Kind
	Op   string // operation name, e.g. "create"
	Path string // caller-supplied relative path
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Kind == kind
}

// KindOf returns the classification of err, or KindUnexpectedIO when err
// carries no classification.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindUnexpectedIO
}

func Failf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Classify wraps an underlying error from the workspace or the filesystem
// into the taxonomy.
func Classify(op, path string, err error) *Error {
	kind := KindUnexpectedIO
	switch {
	case errors.Is(err, workspace.ErrInvalidArgument):
		kind = KindInvalidArgument
	case errors.Is(err, workspace.ErrPathViolation):
		kind = KindPathViolation
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrExist):
		kind = KindAlreadyExists
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
