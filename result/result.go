// Package result defines the error taxonomy shared by the graph, the node
// contract and the shared-memory pool.
//
// Control-path operations return one of the sentinel errors below, usually
// wrapped with context. Data-path conditions are never errors; they travel in
// the IO status field instead (see package node).
package result

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

type sentinel struct {
	msg   string
	errno unix.Errno
}

func (e *sentinel) Error() string { return e.msg }

// Errno returns the system error number the sentinel maps to.
func (e *sentinel) Errno() unix.Errno { return e.errno }

var (
	// ErrInvalidArgument is returned for nil or out-of-range arguments. It is
	// a caller bug and never retried.
	ErrInvalidArgument error = &sentinel{"invalid argument", unix.EINVAL}

	// ErrIO is returned when an operation is attempted before a prerequisite
	// state was reached.
	ErrIO error = &sentinel{"input/output error", unix.EIO}

	// ErrNoFormat is the state error for operations that need a negotiated
	// format.
	ErrNoFormat error = fmt.Errorf("%w: no format", ErrIO)

	// ErrNotSupported is returned for unimplemented operations.
	ErrNotSupported error = &sentinel{"operation not supported", unix.ENOTSUP}

	// ErrNoSpace is returned when a fixed-size table is full.
	ErrNoSpace error = &sentinel{"no space left", unix.ENOSPC}

	// ErrNoMemory is returned when memory could not be obtained.
	ErrNoMemory error = &sentinel{"out of memory", unix.ENOMEM}

	// ErrAccess is returned for blocks that cannot be mapped.
	ErrAccess error = &sentinel{"permission denied", unix.EACCES}

	// ErrPermission is returned for operations forbidden by seals.
	ErrPermission error = &sentinel{"operation not permitted", unix.EPERM}

	// ErrNotFound is returned for unknown ids.
	ErrNotFound error = &sentinel{"not found", unix.ENOENT}

	// ErrBusy is returned when the target is in a conflicting state.
	ErrBusy error = &sentinel{"resource busy", unix.EBUSY}
)

var all = []error{
	ErrInvalidArgument,
	ErrIO,
	ErrNotSupported,
	ErrNoSpace,
	ErrNoMemory,
	ErrAccess,
	ErrPermission,
	ErrNotFound,
	ErrBusy,
}

// Errno converts an error into a negative errno. Nil maps to 0, errors that
// wrap a sentinel or a unix.Errno map to that number and anything else maps
// to -EIO.
func Errno(err error) int {
	if err == nil {
		return 0
	}

	if _, ok := IsPending(err); ok {
		return 0
	}

	var s *sentinel
	if errors.As(err, &s) {
		return -int(s.errno)
	}

	var e unix.Errno
	if errors.As(err, &e) {
		return -int(e)
	}

	return -int(unix.EIO)
}

// FromErrno converts a negative (or positive) errno back to an error. Known
// numbers yield the matching sentinel.
func FromErrno(code int) error {
	if code == 0 {
		return nil
	}

	if code < 0 {
		code = -code
	}

	for _, err := range all {
		if int(err.(*sentinel).errno) == code {
			return err
		}
	}

	return unix.Errno(code)
}

// Pending marks a control operation that will complete later. It is returned
// through the error channel but is not a failure.
type Pending struct {
	Seq int
}

func (p *Pending) Error() string {
	return fmt.Sprintf("pending completion, seq %d", p.Seq)
}

// Async returns a Pending result for the given sequence number.
func Async(seq int) error {
	return &Pending{Seq: seq}
}

// IsPending reports whether err announces an asynchronous completion.
func IsPending(err error) (int, bool) {
	var p *Pending
	if errors.As(err, &p) {
		return p.Seq, true
	}

	return 0, false
}

// Failed reports whether err is a real failure, that is, neither nil nor a
// pending completion.
func Failed(err error) bool {
	if err == nil {
		return false
	}

	_, pending := IsPending(err)

	return !pending
}
