package trail

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors returned by this package and by Store
// implementations match one of these with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("trail not found")
	ErrConflict    = errors.New("trail conflict")
	ErrPersistence = errors.New("persistence failed")
	ErrAcquisition = errors.New("location acquisition failed")
)

// Recording and catalog conditions.
var (
	// ErrNothingToSave is returned when a recording stops with no retained
	// samples. The session is discarded; nothing reaches the store.
	ErrNothingToSave = errors.New("nothing to save")

	// ErrTrailGone is returned by the catalog when the trail it was asked to
	// act on no longer exists in the store.
	ErrTrailGone = errors.New("trail no longer exists")

	// ErrRevisionConflict is returned when a conditional update finds the
	// stored record at a different version. It matches ErrConflict.
	ErrRevisionConflict = fmt.Errorf("%w: revision changed", ErrConflict)

	// ErrInvalidTransition is returned for commands the recorder cannot
	// accept in its current state.
	ErrInvalidTransition = errors.New("invalid recorder transition")

	// ErrStopCancelled is returned when the operator declines to stop.
	ErrStopCancelled = errors.New("stop cancelled")
)

// ValidationError reports invalid input detected before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AcquisitionKind classifies location errors.
type AcquisitionKind int

const (
	// AcquisitionUnavailable means no fix could be produced; not retried.
	AcquisitionUnavailable AcquisitionKind = iota
	// AcquisitionTimeout is transient and triggers a resubscription.
	AcquisitionTimeout
	// AcquisitionPermissionDenied is fatal to the recording attempt.
	AcquisitionPermissionDenied
)

func (k AcquisitionKind) String() string {
	switch k {
	case AcquisitionTimeout:
		return "timeout"
	case AcquisitionPermissionDenied:
		return "permission denied"
	default:
		return "unavailable"
	}
}

// AcquisitionError is a failure reported by a LocationProvider.
type AcquisitionError struct {
	Kind AcquisitionKind
	Err  error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return "location " + e.Kind.String()
	}
	return fmt.Sprintf("location %s: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisition }

// IsTimeout reports whether err is a timeout-class acquisition error.
func IsTimeout(err error) bool {
	var ae *AcquisitionError
	return errors.As(err, &ae) && ae.Kind == AcquisitionTimeout
}

// IsPermissionDenied reports whether err is a permission-denied acquisition error.
func IsPermissionDenied(err error) bool {
	var ae *AcquisitionError
	return errors.As(err, &ae) && ae.Kind == AcquisitionPermissionDenied
}

// PersistenceError wraps a failed store operation. It unwraps to the store
// error so that ErrNotFound and ErrConflict remain detectable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// NotFoundError returns an error matching ErrNotFound for the given id.
func NotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// NameConflictError returns an error matching ErrConflict for a name that
// is already used in the scope.
func NameConflictError(name string) error {
	return fmt.Errorf("%w: name %q already used", ErrConflict, name)
}

func revisionConflict(id string, want, got int64) error {
	return fmt.Errorf("%w: trail %s at version %d, expected %d", ErrRevisionConflict, id, got, want)
}
