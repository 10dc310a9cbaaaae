package domain

import (
	"errors"
	"fmt"
)

// ConsultError is the terminal Failed(kind) outcome of a consultation.
// Message is safe to show to callers; Err is only logged.
type ConsultError struct {
	Kind      ErrorKind
	Message   string
	RequestID string
	State     ConsultState
	Err       error
}

func (e *ConsultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s in %s: %s: %v", e.Kind, e.State, e.Message, e.Err)
	}
	return fmt.Sprintf("%s in %s: %s", e.Kind, e.State, e.Message)
}

func (e *ConsultError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind of err, or ErrorKindUnknown.
func KindOf(err error) ErrorKind {
	var ce *ConsultError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrorKindUnknown
}
