// Package protocol implements the connection layer shared by dirsync clients
// and servers. Clients use a Handler, which serializes Commands over one
// connection so that at most one request is ever awaiting a response.
// Servers use Serve, which dispatches each request frame to the handler
// registered for its kind.
package protocol

import (
	"github.com/sidkik/dirsync/pkg/wire"
)

// State is the state of a Handler's connection.
type State int

const (
	// Disconnected means there's no connection. Commands can't be enqueued.
	Disconnected State = iota

	// Connecting means a dial is in progress.
	Connecting

	// Idle means the connection is open and no command is in flight.
	Idle

	// AwaitingResponse means the connection is open and a command is
	// waiting for the rest of its response.
	AwaitingResponse
)

// Connected returns whether the state has an open connection.
func (s State) Connected() bool {
	return s == Idle || s == AwaitingResponse
}

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Idle:
		return "Idle"
	case AwaitingResponse:
		return "AwaitingResponse"
	default:
		return "Unknown"
	}
}

// Event is a notification published to the shell. The concrete types are
// ConnectivityChanged and the events emitted by Commands.
type Event interface{}

// ConnectivityChanged is published whenever the connection opens or closes.
type ConnectivityChanged struct {
	Connected bool
	Address   string

	// Err is the reason the connection closed. It's nil for connects and for
	// explicit disconnects.
	Err error
}

// Emitter publishes an event once the Handler releases its lock.
type Emitter func(Event)

// Command is a single request and response exchange.
type Command interface {
	// Name is used in logs.
	Name() string

	// Request returns the frame that starts the exchange.
	Request() wire.Frame

	// Handle processes one frame of the response, and returns whether the
	// response is complete. A returned error means the frame couldn't be
	// understood, and closes the connection.
	Handle(f wire.Frame, emit Emitter) (done bool, err error)

	// Fail is called instead of completing the response if the command is
	// dropped, either because the connection closed or because the response
	// was malformed.
	Fail(err error, emit Emitter)
}
