package protocol

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/wire"
)

// echoCommand completes after a single EchoResponse and records what it
// received.
type echoCommand struct {
	text   string
	result chan string
	failed chan error
}

func newEchoCommand(text string) *echoCommand {
	return &echoCommand{
		text:   text,
		result: make(chan string, 1),
		failed: make(chan error, 1),
	}
}

func (c *echoCommand) Name() string {
	return "echo " + c.text
}

func (c *echoCommand) Request() wire.Frame {
	return wire.NewEchoRequest(c.text)
}

func (c *echoCommand) Handle(f wire.Frame, emit Emitter) (bool, error) {
	if f.Kind != wire.EchoResponse {
		return false, errors.ProtocolError{Reason: "unexpected " + f.Kind.String()}
	}
	emit(string(f.Payload))
	c.result <- string(f.Payload)
	return true, nil
}

func (c *echoCommand) Fail(err error, _ Emitter) {
	c.failed <- err
}

// chunkCommand completes after `n` FetchChunk frames.
type chunkCommand struct {
	n      int
	got    int
	done   chan struct{}
	failed chan error
}

func newChunkCommand(n int) *chunkCommand {
	return &chunkCommand{n: n, done: make(chan struct{}), failed: make(chan error, 1)}
}

func (c *chunkCommand) Name() string {
	return "chunks"
}

func (c *chunkCommand) Request() wire.Frame {
	return wire.NewFetchRequest("chunks")
}

func (c *chunkCommand) Handle(f wire.Frame, emit Emitter) (bool, error) {
	c.got++
	emit(c.got)
	if c.got == c.n {
		close(c.done)
		return true, nil
	}
	return false, nil
}

func (c *chunkCommand) Fail(err error, _ Emitter) {
	c.failed <- err
}

func echoDispatcher() Dispatcher {
	return Dispatcher{
		wire.EchoRequest: RequestHandlerFunc(func(req wire.Frame, w ResponseWriter) error {
			return w.WriteFrame(wire.NewEchoResponse(string(req.Payload)))
		}),
	}
}

// attachPipe connects `h` to a server that handles requests with `serve`.
func attachPipe(t *testing.T, h *Handler, serve func(net.Conn)) {
	client, server := net.Pipe()
	go serve(server)
	require.NoError(t, h.Attach(client))
	assert.Equal(t, ConnectivityChanged{Connected: true, Address: "pipe"}, nextEvent(t, h))
}

func nextEvent(t *testing.T, h *Handler) Event {
	select {
	case ev := <-h.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func waitFor(t *testing.T, c <-chan struct{}) {
	select {
	case <-c:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestCommandsProcessedInOrder(t *testing.T) {
	h := NewHandler()
	defer h.Close()
	attachPipe(t, h, func(conn net.Conn) { Serve(conn, echoDispatcher()) })

	var cmds []*echoCommand
	for i := 0; i < 10; i++ {
		cmd := newEchoCommand(strconv.Itoa(i))
		cmds = append(cmds, cmd)
		require.NoError(t, h.Enqueue(cmd))
	}

	for i, cmd := range cmds {
		assert.Equal(t, strconv.Itoa(i), nextEvent(t, h))
		assert.Equal(t, cmd.text, <-cmd.result)
	}
	assert.Zero(t, h.Pending())
	assert.Equal(t, Idle, h.State())
}

func TestSingleCommandInFlight(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	requests := make(chan string, 3)
	serverErr := make(chan error, 1)
	attachPipe(t, h, func(conn net.Conn) {
		decoder := wire.NewDecoder()
		buf := make([]byte, 1024)
		for i := 0; i < 3; i++ {
			var req wire.Frame
			for {
				f, ok, err := decoder.Next()
				if err != nil {
					serverErr <- err
					return
				}
				if ok {
					req = f
					break
				}

				n, err := conn.Read(buf)
				if err != nil {
					serverErr <- err
					return
				}
				decoder.Feed(buf[:n])
			}
			requests <- string(req.Payload)

			// The client mustn't send anything else until it gets a
			// response.
			conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
			if n, err := conn.Read(buf); err == nil {
				decoder.Feed(buf[:n])
				serverErr <- errors.New("received a second request before responding")
				return
			}
			conn.SetReadDeadline(time.Time{})

			if _, err := conn.Write(wire.NewEchoResponse(string(req.Payload)).Encode()); err != nil {
				serverErr <- err
				return
			}
		}
		serverErr <- nil
	})

	a, b, c := newEchoCommand("a"), newEchoCommand("b"), newEchoCommand("c")
	require.NoError(t, h.Enqueue(a))
	require.NoError(t, h.Enqueue(b))
	require.NoError(t, h.Enqueue(c))
	assert.Equal(t, 3, h.Pending())

	assert.Equal(t, "a", <-a.result)
	assert.Equal(t, "b", <-b.result)
	assert.Equal(t, "c", <-c.result)
	assert.NoError(t, <-serverErr)
	assert.Equal(t, []string{"a", "b", "c"}, []string{<-requests, <-requests, <-requests})
}

func TestConnectionLostMidResponse(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	attachPipe(t, h, func(conn net.Conn) {
		buf := make([]byte, 1024)
		conn.Read(buf)
		conn.Write(wire.NewFetchChunk([]byte("one")).Encode())
		conn.Write(wire.NewFetchChunk([]byte("two")).Encode())
		conn.Close()
	})

	inFlight := newChunkCommand(5)
	queued := newEchoCommand("queued")
	require.NoError(t, h.Enqueue(inFlight))
	require.NoError(t, h.Enqueue(queued))

	assert.Equal(t, 1, nextEvent(t, h))
	assert.Equal(t, 2, nextEvent(t, h))

	ev := nextEvent(t, h)
	connEv, ok := ev.(ConnectivityChanged)
	require.True(t, ok, "%#v", ev)
	assert.False(t, connEv.Connected)

	var transportErr errors.TransportError
	assert.True(t, errors.As(connEv.Err, &transportErr))
	assert.True(t, errors.As(<-inFlight.failed, &transportErr))
	assert.True(t, errors.As(<-queued.failed, &transportErr))

	assert.Equal(t, Disconnected, h.State())
	assert.Equal(t, errors.ErrNotConnected, h.Enqueue(newEchoCommand("late")))

	select {
	case ev := <-h.Events():
		t.Fatalf("unexpected event after disconnect: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMalformedResponse(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	attachPipe(t, h, func(conn net.Conn) {
		buf := make([]byte, 1024)
		conn.Read(buf)
		conn.Write([]byte{0x42, 0x00})
		conn.Read(buf)
	})

	cmd := newEchoCommand("hello")
	require.NoError(t, h.Enqueue(cmd))

	var protoErr errors.ProtocolError
	assert.True(t, errors.As(<-cmd.failed, &protoErr))

	connEv := nextEvent(t, h).(ConnectivityChanged)
	assert.False(t, connEv.Connected)
	assert.True(t, errors.As(connEv.Err, &protoErr))
	assert.Equal(t, Disconnected, h.State())
}

func TestUnsolicitedResponse(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	attachPipe(t, h, func(conn net.Conn) {
		conn.Write(wire.NewEchoResponse("surprise").Encode())
		conn.Read(make([]byte, 1))
	})

	connEv := nextEvent(t, h).(ConnectivityChanged)
	assert.False(t, connEv.Connected)

	var protoErr errors.ProtocolError
	assert.True(t, errors.As(connEv.Err, &protoErr))
}

func TestDisconnect(t *testing.T) {
	h := NewHandler()
	defer h.Close()

	block := make(chan struct{})
	attachPipe(t, h, func(conn net.Conn) {
		conn.Read(make([]byte, 1024))
		<-block
	})
	defer close(block)

	inFlight := newChunkCommand(1)
	queued := newEchoCommand("queued")
	require.NoError(t, h.Enqueue(inFlight))
	require.NoError(t, h.Enqueue(queued))

	h.Disconnect()
	assert.Equal(t, errors.ErrDisconnected, <-inFlight.failed)
	assert.Equal(t, errors.ErrDisconnected, <-queued.failed)
	assert.Equal(t, ConnectivityChanged{Connected: false, Address: "pipe"}, nextEvent(t, h))
	assert.Equal(t, Disconnected, h.State())
	assert.Zero(t, h.Pending())

	// Disconnecting again is a no-op.
	h.Disconnect()
	select {
	case ev := <-h.Events():
		t.Fatalf("unexpected event: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnect(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		Serve(conn, echoDispatcher())
	}()

	port := lis.Addr().(*net.TCPAddr).Port
	h := NewHandler()
	defer h.Close()
	require.NoError(t, h.Connect(context.Background(), "127.0.0.1", port))

	connEv := nextEvent(t, h).(ConnectivityChanged)
	assert.True(t, connEv.Connected)
	assert.Equal(t, lis.Addr().String(), connEv.Address)

	cmd := newEchoCommand("ping")
	require.NoError(t, h.Enqueue(cmd))
	assert.Equal(t, "ping", <-cmd.result)

	var connErr errors.ConnectionError
	assert.True(t, errors.As(h.Connect(context.Background(), "127.0.0.1", port), &connErr))
}

func TestConnectRefused(t *testing.T) {
	defer func(orig func(context.Context, string, string) (net.Conn, error)) {
		dial = orig
	}(dial)
	refused := errors.New("connection refused")
	dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, refused
	}

	h := NewHandler()
	defer h.Close()

	err := h.Connect(context.Background(), "localhost", 1)
	var connErr errors.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "localhost:1", connErr.Address)
	assert.True(t, errors.Is(err, refused))
	assert.Equal(t, Disconnected, h.State())

	select {
	case ev := <-h.Events():
		t.Fatalf("unexpected event: %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEnqueueDisconnected(t *testing.T) {
	h := NewHandler()
	defer h.Close()
	assert.Equal(t, errors.ErrNotConnected, h.Enqueue(newEchoCommand("a")))
}

func TestCloseClosesEvents(t *testing.T) {
	h := NewHandler()
	h.Close()

	done := make(chan struct{})
	go func() {
		for range h.Events() {
		}
		close(done)
	}()
	waitFor(t, done)
}
