package protocol

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/wire"
)

const (
	// DialTimeout bounds how long Connect waits for the server.
	DialTimeout = 10 * time.Second

	// EventBufferSize is the capacity of the Events channel.
	EventBufferSize = 256

	readBufferSize = 32 * 1024
)

// Mocked for unit testing.
var dial = (&net.Dialer{}).DialContext

// Handler owns the client side of a connection. It sends one command at a
// time, and queues any others until the in-flight command's response is
// complete.
type Handler struct {
	events chan Event

	lock     sync.Mutex
	state    State
	address  string
	conn     net.Conn
	decoder  *wire.Decoder
	inFlight Command
	queue    []Command

	// generation is incremented whenever the connection is replaced or
	// closed so that a reader goroutine for an old connection can't affect
	// the current one.
	generation int

	// pending holds events in the order they were emitted. They're
	// delivered to `events` by the publish goroutine so that a slow consumer
	// never blocks the connection's state machine.
	pending []Event
	wake    chan struct{}
	closed  bool
}

// NewHandler returns a disconnected Handler.
func NewHandler() *Handler {
	h := &Handler{
		events: make(chan Event, EventBufferSize),
		wake:   make(chan struct{}, 1),
	}
	go h.publish()
	return h
}

// Close disconnects, and closes the Events channel once every pending event
// has been delivered.
func (h *Handler) Close() {
	h.Disconnect()

	h.lock.Lock()
	defer h.lock.Unlock()
	if !h.closed {
		h.closed = true
		close(h.wake)
	}
}

// Events returns the channel that events are published on, in the order they
// occurred.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// State returns the current connection state.
func (h *Handler) State() State {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.state
}

// Pending returns the number of commands that are queued or in flight.
func (h *Handler) Pending() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	n := len(h.queue)
	if h.inFlight != nil {
		n++
	}
	return n
}

// Connect dials the server. It returns a ConnectionError if the server
// can't be reached.
func (h *Handler) Connect(ctx context.Context, host string, port int) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	h.lock.Lock()
	if h.state != Disconnected {
		h.lock.Unlock()
		return errors.ConnectionError{Address: address, Err: errors.New("already connected")}
	}
	h.state = Connecting
	h.lock.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	log.WithField("address", address).Debug("Connecting")
	conn, err := dial(dialCtx, "tcp", address)

	h.lock.Lock()
	if h.state != Connecting {
		// Disconnect was called while we were dialing.
		h.lock.Unlock()
		if err == nil {
			conn.Close()
		}
		return errors.ConnectionError{Address: address, Err: errors.ErrDisconnected}
	}

	if err != nil {
		h.state = Disconnected
		h.lock.Unlock()
		return errors.ConnectionError{Address: address, Err: err}
	}

	h.attachLocked(conn, address)
	h.lock.Unlock()
	return nil
}

// Attach uses an already established connection. It's used by callers that
// dial themselves, and by tests.
func (h *Handler) Attach(conn net.Conn) error {
	h.lock.Lock()
	if h.state != Disconnected {
		h.lock.Unlock()
		return errors.New("already connected")
	}
	h.attachLocked(conn, conn.RemoteAddr().String())
	h.lock.Unlock()
	return nil
}

func (h *Handler) attachLocked(conn net.Conn, address string) {
	h.generation++
	h.conn = conn
	h.address = address
	h.decoder = wire.NewDecoder()
	h.state = Idle
	h.emit(ConnectivityChanged{Connected: true, Address: address})

	log.WithField("address", address).Info("Connected")
	go h.readLoop(conn, h.generation)
}

// Disconnect closes the connection. Any queued or in-flight commands fail
// with ErrDisconnected. It's a no-op if the handler is already disconnected.
func (h *Handler) Disconnect() {
	h.lock.Lock()
	defer h.lock.Unlock()

	switch h.state {
	case Disconnected:
		return
	case Connecting:
		h.state = Disconnected
		h.emit(ConnectivityChanged{Connected: false, Address: h.address})
		return
	}

	h.dropAllLocked(errors.ErrDisconnected)
	h.closeLocked(nil)
}

// Enqueue schedules a command. It's sent immediately if nothing is in
// flight, and otherwise after every command enqueued before it completes.
func (h *Handler) Enqueue(cmd Command) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if !h.state.Connected() {
		return errors.ErrNotConnected
	}

	h.queue = append(h.queue, cmd)
	if h.state == Idle {
		h.promoteLocked()
	}
	return nil
}

// OnBytesAvailable processes bytes read from the current connection. It's
// called by the reader goroutine, and never blocks waiting for more input.
func (h *Handler) OnBytesAvailable(p []byte) {
	h.lock.Lock()
	generation := h.generation
	h.lock.Unlock()
	h.onBytes(generation, p)
}

func (h *Handler) onBytes(generation int, p []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if generation != h.generation || !h.state.Connected() {
		return
	}

	h.decoder.Feed(p)
	for {
		f, ok, err := h.decoder.Next()
		if err != nil {
			h.failLocked(err)
			return
		}

		if !ok {
			return
		}

		if h.inFlight == nil {
			h.failLocked(errors.ProtocolError{
				Reason: fmt.Sprintf("unexpected %s frame with no command in flight", f.Kind)})
			return
		}

		done, err := h.inFlight.Handle(f, h.emit)
		if err != nil {
			h.failLocked(err)
			return
		}

		if done {
			log.WithField("command", h.inFlight.Name()).Debug("Command complete")
			h.inFlight = nil
			h.state = Idle
			h.promoteLocked()

			// promoteLocked may have closed the connection if the write
			// failed.
			if !h.state.Connected() {
				return
			}
		}
	}
}

// promoteLocked sends the command at the head of the queue.
func (h *Handler) promoteLocked() {
	if h.inFlight != nil || len(h.queue) == 0 {
		return
	}

	cmd := h.queue[0]
	h.queue[0] = nil
	h.queue = h.queue[1:]
	h.inFlight = cmd
	h.state = AwaitingResponse

	log.WithField("command", cmd.Name()).Debug("Sending command")
	if _, err := h.conn.Write(cmd.Request().Encode()); err != nil {
		err = errors.TransportError{Err: errors.WithContext(err, "write request")}
		h.dropAllLocked(err)
		h.closeLocked(err)
	}
}

func (h *Handler) readLoop(conn net.Conn, generation int) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			h.onBytes(generation, buf[:n])
		}

		if err != nil {
			h.connectionLost(generation, err)
			return
		}
	}
}

func (h *Handler) connectionLost(generation int, err error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if generation != h.generation || !h.state.Connected() {
		return
	}

	if err == io.EOF {
		err = errors.New("closed by server")
	}
	err = errors.TransportError{Err: err}
	log.WithError(err).WithField("address", h.address).Warn("Connection lost")

	h.dropAllLocked(err)
	h.closeLocked(err)
}

// failLocked handles a response that couldn't be decoded. The rest of the
// stream can't be trusted, so the connection is closed.
func (h *Handler) failLocked(err error) {
	log.WithError(err).WithField("address", h.address).Error("Closing connection")
	h.dropAllLocked(err)
	h.closeLocked(err)
}

// dropAllLocked fails the in-flight command and every queued command.
func (h *Handler) dropAllLocked(err error) {
	if h.inFlight != nil {
		h.inFlight.Fail(err, h.emit)
		h.inFlight = nil
	}

	for _, cmd := range h.queue {
		cmd.Fail(err, h.emit)
	}
	h.queue = nil
}

func (h *Handler) closeLocked(reason error) {
	if h.conn != nil {
		if err := h.conn.Close(); err != nil {
			log.WithError(err).Debug("Failed to close connection")
		}
	}

	h.generation++
	h.conn = nil
	h.decoder = nil
	h.state = Disconnected
	h.emit(ConnectivityChanged{Connected: false, Address: h.address, Err: reason})
}

func (h *Handler) emit(ev Event) {
	if h.closed {
		return
	}

	h.pending = append(h.pending, ev)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Handler) publish() {
	defer close(h.events)
	for range h.wake {
		h.lock.Lock()
		events := h.pending
		h.pending = nil
		h.lock.Unlock()

		for _, ev := range events {
			h.events <- ev
		}
	}

	// Deliver anything emitted before Close.
	h.lock.Lock()
	events := h.pending
	h.pending = nil
	h.lock.Unlock()
	for _, ev := range events {
		h.events <- ev
	}
}
