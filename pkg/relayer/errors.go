package relayer

import (
	"errors"
	"fmt"
)

// FatalSourceError reports a source failure the relayer cannot recover from.
// Any other error returned by a Source is treated as transient.
type FatalSourceError struct {
	Message string
}

func (e *FatalSourceError) Error() string {
	return fmt.Sprintf("FatalSourceError: %s", e.Message)
}

func NewFatalSourceError(message string) error {
	return &FatalSourceError{Message: message}
}

// IsFatal reports whether err is, or wraps, a FatalSourceError.
func IsFatal(err error) bool {
	var fatal *FatalSourceError
	return errors.As(err, &fatal)
}
