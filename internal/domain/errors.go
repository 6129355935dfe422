package domain

import "errors"

var (
	// ErrInvalidRequest is returned when a job request fails validation.
	ErrInvalidRequest = errors.New("invalid job request")

	// ErrInsufficientCredit is returned by the ledger when a debit would
	// take the balance below zero.
	ErrInsufficientCredit = errors.New("insufficient credits")

	// ErrUserNotFound is returned when the submitting user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrProjectNotFound is returned when a project lookup by (id, owner) misses.
	ErrProjectNotFound = errors.New("project not found")

	// ErrFileNotFound is returned when no uploaded file matches a source key.
	ErrFileNotFound = errors.New("uploaded file not found")

	// ErrObjectMissing is returned when the source object is absent from storage.
	ErrObjectMissing = errors.New("source object does not exist in bucket")

	// ErrNoClips is returned by the finalize step when the processor reported
	// success but no clip objects were found under the source prefix.
	ErrNoClips = errors.New("no clips produced")
)

// NonRetriableError marks a workflow failure that retrying cannot fix
// (missing object, missing project, malformed payload). The state machine
// sends these straight to the terminal failure hook.
type NonRetriableError struct {
	Err error
}

func (e *NonRetriableError) Error() string {
	return "non-retriable: " + e.Err.Error()
}

func (e *NonRetriableError) Unwrap() error {
	return e.Err
}

// NewNonRetriable wraps err as a non-retriable workflow failure.
func NewNonRetriable(err error) error {
	return &NonRetriableError{Err: err}
}

// IsNonRetriable reports whether err carries the non-retriable classification.
func IsNonRetriable(err error) bool {
	var nr *NonRetriableError
	return errors.As(err, &nr)
}
