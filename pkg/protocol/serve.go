package protocol

import (
	"fmt"
	"io"
	"net"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/wire"
)

// ResponseWriter sends response frames back to the client.
type ResponseWriter interface {
	WriteFrame(f wire.Frame) error
}

// RequestHandler responds to one kind of request. Returning an error closes
// the connection, so handlers should only do so when the response can't be
// completed, for example if the file being streamed shrank.
type RequestHandler interface {
	ServeRequest(req wire.Frame, w ResponseWriter) error
}

// RequestHandlerFunc adapts a function to the RequestHandler interface.
type RequestHandlerFunc func(req wire.Frame, w ResponseWriter) error

// ServeRequest calls f.
func (f RequestHandlerFunc) ServeRequest(req wire.Frame, w ResponseWriter) error {
	return f(req, w)
}

// Dispatcher maps request kinds to their handlers.
type Dispatcher map[wire.Kind]RequestHandler

type connWriter struct {
	conn net.Conn
}

func (w connWriter) WriteFrame(f wire.Frame) error {
	if _, err := w.conn.Write(f.Encode()); err != nil {
		return errors.TransportError{Err: err}
	}
	return nil
}

// Serve reads requests from `conn` and dispatches them one at a time until
// the client disconnects. The connection is always closed when Serve
// returns. A clean disconnect by the client returns nil.
func Serve(conn net.Conn, dispatcher Dispatcher) error {
	defer conn.Close()

	decoder := wire.NewDecoder()
	w := connWriter{conn}
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			if err := dispatchAvailable(decoder, dispatcher, w); err != nil {
				return err
			}
		}

		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.TransportError{Err: err}
		}
	}
}

func dispatchAvailable(decoder *wire.Decoder, dispatcher Dispatcher, w ResponseWriter) error {
	for {
		req, ok, err := decoder.Next()
		if err != nil {
			return err
		}

		if !ok {
			return nil
		}

		if !req.Kind.IsRequest() {
			return errors.ProtocolError{
				Reason: fmt.Sprintf("unexpected %s frame from client", req.Kind)}
		}

		handler, ok := dispatcher[req.Kind]
		if !ok {
			return errors.ProtocolError{
				Reason: fmt.Sprintf("no handler for %s", req.Kind)}
		}

		if err := handler.ServeRequest(req, w); err != nil {
			return errors.WithContext(err, fmt.Sprintf("serve %s", req.Kind))
		}
	}
}
