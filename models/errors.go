package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds shared by the store, the lifecycle manager and the gateway.
var (
	ErrValidation   = errors.New("invalid offer")
	ErrNotFound     = errors.New("offer not found")
	ErrConflict     = errors.New("offer was modified concurrently")
	ErrPrecondition = errors.New("offer is not in the required state")
	ErrDelivery     = errors.New("announcement delivery failed")
	ErrUnavailable  = errors.New("offer storage unavailable")
)

// kindError carries a user-facing reason and matches its kind with errors.Is.
type kindError struct {
	kind   error
	reason string
}

func (e *kindError) Error() string { return e.reason }

func (e *kindError) Is(target error) bool { return target == e.kind }

// Errorf returns an error of the given kind whose message is the formatted reason.
func Errorf(kind error, format string, args ...interface{}) error {
	return errors.WithStack(&kindError{kind: kind, reason: fmt.Sprintf(format, args...)})
}

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string { return e.err.Error() }

func (e *unavailableError) Unwrap() error { return e.err }

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable marks a storage-layer failure. Errors that already carry a
// model kind are returned unchanged.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrPrecondition, ErrUnavailable} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &unavailableError{err: err}
}
