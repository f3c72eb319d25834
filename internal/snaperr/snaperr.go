// Package snaperr defines the error taxonomy shared by the snapshot engine
// and the command layer.
package snaperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindIO covers read/write/permission failures on the working tree or store.
	KindIO Kind = iota
	// KindUser covers unknown IDs, uninitialised repositories and bad arguments.
	KindUser
	// KindIntegrity covers fingerprint mismatches and missing store data.
	KindIntegrity
	// KindConcurrency is returned when the repository lock is held elsewhere.
	KindConcurrency
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user error"
	case KindIntegrity:
		return "integrity error"
	case KindConcurrency:
		return "concurrency error"
	default:
		return "io error"
	}
}

// ExitCode maps a kind to the process exit status
func (k Kind) ExitCode() int {
	switch k {
	case KindUser:
		return 2
	case KindIntegrity:
		return 3
	case KindConcurrency:
		return 4
	default:
		return 1
	}
}

// Error carries the kind plus the offending snapshot ID and/or path.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.ID != "" {
		b.WriteString("snapshot ")
		b.WriteString(e.ID)
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	ErrNotInitialized     = errors.New("repository not initialized (run init first)")
	ErrAlreadyInitialized = errors.New("repository already initialized")
	ErrLockHeld           = errors.New("repository is locked by another operation")
	ErrNoSnapshots        = errors.New("no snapshots in repository")
)

// User returns a KindUser error
func User(op string, format string, args ...interface{}) error {
	return &Error{Kind: KindUser, Op: op, Err: fmt.Errorf(format, args...)}
}

// UserID returns a KindUser error about a snapshot reference
func UserID(op, id string, err error) error {
	return &Error{Kind: KindUser, Op: op, ID: id, Err: err}
}

// IO wraps err as a KindIO error about path
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

// Integrity returns a KindIntegrity error about a path in a snapshot
func Integrity(op, id, path string, err error) error {
	return &Error{Kind: KindIntegrity, Op: op, ID: id, Path: path, Err: err}
}

// Concurrency returns a KindConcurrency error
func Concurrency(op string) error {
	return &Error{Kind: KindConcurrency, Op: op, Err: ErrLockHeld}
}

// KindOf finds the outermost classified error in err's chain.
// Unclassified errors count as IO failures.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindIO
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
