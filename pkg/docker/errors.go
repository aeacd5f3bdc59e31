package docker

import (
	"errors"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
)

// ErrorKind is the small closed set of runtime failures the orchestrator
// branches on. Status codes never leave this package.
type ErrorKind int

const (
	// KindUnknown is any failure without special handling
	KindUnknown ErrorKind = iota
	// KindAlreadyStopped is a stop request against a stopped container (HTTP 304)
	KindAlreadyStopped
	// KindConflict is a create request whose name is already taken (HTTP 409)
	KindConflict
	// KindNotFound is a request against a container that does not exist (HTTP 404)
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindAlreadyStopped:
		return "already stopped"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// RuntimeError is returned by every Service operation that talks to the daemon
type RuntimeError struct {
	Op   string // build, list, stop, remove, create, start, attach
	Ref  string // container id, name or image tag the operation targeted
	Kind ErrorKind
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// newRuntimeError classifies err into a RuntimeError
func newRuntimeError(op, ref string, err error) *RuntimeError {
	return &RuntimeError{Op: op, Ref: ref, Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case cerrdefs.IsNotModified(err):
		return KindAlreadyStopped
	case cerrdefs.IsConflict(err):
		return KindConflict
	case cerrdefs.IsNotFound(err):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// KindOf returns the kind of the first RuntimeError in err's chain
func KindOf(err error) ErrorKind {
	var rerr *RuntimeError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindUnknown
}

// IsConflict reports whether err is a name-in-use failure
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsAlreadyStopped reports whether err is a stop against a stopped container
func IsAlreadyStopped(err error) bool {
	return KindOf(err) == KindAlreadyStopped
}
