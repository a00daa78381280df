package errors

import (
	goerrors "errors"
	"fmt"
)

// New returns an error that formats as the given text.
func New(msg string) error {
	return goerrors.New(msg)
}

// Is and As are re-exported so that callers don't need to import both this
// package and the standard library's.
var (
	Is = goerrors.Is
	As = goerrors.As
)

// contextError annotates an error with a description of what was being
// attempted when it occurred.
type contextError struct {
	context string
	err     error
}

// WithContext wraps `err` with `context`. It returns nil if `err` is nil so
// that it can be used directly in return statements.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// RootCause returns the innermost error wrapped by WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// FriendlyError is an error whose message is meant to be shown to users
// as-is, without the context that was added while it propagated.
type FriendlyError interface {
	error
	FriendlyMessage() string
}

type friendlyError struct {
	msg string
}

// NewFriendlyError creates an error with a user facing message.
func NewFriendlyError(template string, args ...interface{}) error {
	return friendlyError{fmt.Sprintf(template, args...)}
}

func (err friendlyError) Error() string {
	return err.msg
}

func (err friendlyError) FriendlyMessage() string {
	return err.msg
}

// GetPrintableMessage returns the message that should be shown to the user
// for `err`. Friendly errors anywhere in the chain take precedence over the
// full error string.
func GetPrintableMessage(err error) string {
	var friendly FriendlyError
	if goerrors.As(err, &friendly) {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
