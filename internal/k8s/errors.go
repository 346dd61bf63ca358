package k8s

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Sentinel errors classifying every failure returned by Ops. Check them with
// errors.Is.
var (
	// ErrNotFound indicates the addressed object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an object with the computed name is present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrMalformedCredential indicates a credential secret lacks the token or
	// CA certificate in its payload.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrEncoding indicates payload bytes that must be text are not valid UTF-8.
	ErrEncoding = errors.New("invalid encoding")

	// ErrRemoteUnavailable covers every other failure reported by the cluster
	// API or its transport, transient or not.
	ErrRemoteUnavailable = errors.New("cluster API unavailable")

	// ErrInvalidArgument indicates caller input that cannot form a valid or
	// unambiguous object name.
	ErrInvalidArgument = errors.New("invalid argument")
)

// OperationError describes a failed operation against one object.
//
// Is matches the classified sentinel (Kind); Unwrap returns the underlying
// cause, so API errors stay reachable through errors.As.
type OperationError struct {
	Op       string
	Resource string
	Name     string
	Kind     error
	Err      error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s %q: %s: %v", e.Op, e.Resource, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %s", e.Op, e.Resource, e.Name, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel this error was classified as.
func (e *OperationError) Is(target error) bool {
	return target == e.Kind
}

// classify maps an error returned by the clientset to one of the sentinels.
func classify(err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return ErrNotFound
	case apierrors.IsAlreadyExists(err):
		return ErrAlreadyExists
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return ErrInvalidArgument
	default:
		return ErrRemoteUnavailable
	}
}

func wrapAPIError(op, resource, name string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Op: op, Resource: resource, Name: name, Kind: classify(err), Err: err}
}

func newError(op, resource, name string, kind, cause error) error {
	return &OperationError{Op: op, Resource: resource, Name: name, Kind: kind, Err: cause}
}
