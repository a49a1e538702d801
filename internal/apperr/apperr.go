package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrAccessDenied = errors.New("access denied")
	ErrVerification = errors.New("external verification failed")
)

// Error carries a user-facing message and one of the sentinel kinds above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newf(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

func InvalidStatef(format string, args ...interface{}) error {
	return newf(ErrInvalidState, format, args...)
}

func Conflictf(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

func Validationf(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

func AccessDeniedf(format string, args ...interface{}) error {
	return newf(ErrAccessDenied, format, args...)
}

func Verificationf(format string, args ...interface{}) error {
	return newf(ErrVerification, format, args...)
}

// Kind returns the sentinel kind of err, or nil for infrastructure errors.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrInvalidState, ErrConflict, ErrValidation, ErrAccessDenied, ErrVerification} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
