// Package errors carries the error taxonomy of the request path: input
// errors are the only kind a caller ever sees; everything else degrades to a
// best-effort payload at the lowest level possible.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// InputError marks a malformed request, rejected synchronously.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string {
	return e.Msg
}

// NewInput creates an input error.
func NewInput(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// IsInput reports whether err is (or wraps) an input error.
func IsInput(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}

// Error aggregates multiple failures, typically one per store backend.
type Error struct {
	Errs []error
	Msgs []any
}

func NewError(errs ...any) error {
	err := &Error{}

	for _, msg := range errs {
		switch v := msg.(type) {
		case error:
			err.Errs = append(err.Errs, v)
		case string:
			err.Msgs = append(err.Msgs, v)
		}
	}

	return err
}

func (err *Error) Error() string {
	builder := &strings.Builder{}

	for _, err := range err.Errs {
		builder.WriteString(err.Error())
		builder.WriteString("\n")
	}

	for _, msg := range err.Msgs {
		builder.WriteString(fmt.Sprintf("%v\n", msg))
	}

	return builder.String()
}
