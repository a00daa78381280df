package errors

import (
	"fmt"
)

var (
	// ErrNotConnected is returned when a command is issued without an open
	// connection.
	ErrNotConnected = New("not connected")

	// ErrDisconnected is the failure reported to commands that were dropped
	// by an explicit disconnect.
	ErrDisconnected = New("disconnected")
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ConnectionError is returned when a connection to the server couldn't be
// established. The caller may retry.
type ConnectionError struct {
	Address string
	Err     error
}

func (err ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %s", err.Address, err.Err)
}

func (err ConnectionError) Unwrap() error {
	return err.Err
}

// TransportError represents an established connection that dropped while a
// command was in flight.
type TransportError struct {
	Err error
}

func (err TransportError) Error() string {
	return fmt.Sprintf("connection lost: %s", err.Err)
}

func (err TransportError) Unwrap() error {
	return err.Err
}

// ProtocolError represents bytes on the wire that couldn't be decoded. The
// stream can't be recovered, so the connection is always closed.
type ProtocolError struct {
	Reason string
}

func (err ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", err.Reason)
}

// IOError represents a local filesystem failure for a single path.
type IOError struct {
	Path string
	Err  error
}

func (err IOError) Error() string {
	return fmt.Sprintf("%s: %s", err.Path, err.Err)
}

func (err IOError) Unwrap() error {
	return err.Err
}

// NotFoundError is returned when the server doesn't have the requested file.
type NotFoundError struct {
	Path string
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%q does not exist on the server", err.Path)
}
