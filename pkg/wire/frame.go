// Package wire defines the framing used between dirsync clients and servers.
//
// Every message is a single frame: a one byte kind, the payload length as an
// unsigned varint, and the payload. Frame boundaries are therefore known as
// soon as the header has arrived, regardless of how TCP splits the stream.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/protobuf/proto"

	"github.com/sidkik/dirsync/pkg/errors"
)

// Kind identifies the type of a frame.
type Kind uint8

const (
	EchoRequest  Kind = 0x01
	ListRequest  Kind = 0x02
	FetchRequest Kind = 0x03

	EchoResponse Kind = 0x81
	ListResponse Kind = 0x82
	FetchHeader  Kind = 0x83
	FetchChunk   Kind = 0x84
)

// MaxPayload is the largest payload a decoder accepts by default.
const MaxPayload = 16 << 20

var kindNames = map[Kind]string{
	EchoRequest:  "EchoRequest",
	ListRequest:  "ListRequest",
	FetchRequest: "FetchRequest",
	EchoResponse: "EchoResponse",
	ListResponse: "ListResponse",
	FetchHeader:  "FetchHeader",
	FetchChunk:   "FetchChunk",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%#x)", uint8(k))
}

// Valid returns whether k is a known frame kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// IsRequest returns whether frames of this kind are sent by clients.
func (k Kind) IsRequest() bool {
	return k.Valid() && k&0x80 == 0
}

// Frame is a single decoded message.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Encode returns the bytes of the frame as they're written to the wire.
func (f Frame) Encode() []byte {
	length := proto.EncodeVarint(uint64(len(f.Payload)))
	out := make([]byte, 0, 1+len(length)+len(f.Payload))
	out = append(out, byte(f.Kind))
	out = append(out, length...)
	return append(out, f.Payload...)
}

// Decoder reassembles frames from a byte stream that may arrive in arbitrary
// pieces. It's not safe for concurrent use.
type Decoder struct {
	// MaxPayload bounds the size of a single frame. Larger frames are a
	// protocol error.
	MaxPayload int

	buf []byte
}

// NewDecoder returns a decoder that accepts payloads up to MaxPayload.
func NewDecoder() *Decoder {
	return &Decoder{MaxPayload: MaxPayload}
}

// Feed appends bytes read from the stream.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes that haven't been decoded yet.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset discards any partially received frame.
func (d *Decoder) Reset() {
	d.buf = nil
}

// Next returns the next complete frame. `ok` is false if more bytes are
// needed. Errors are always ProtocolErrors, and leave the decoder unusable.
func (d *Decoder) Next() (f Frame, ok bool, err error) {
	if len(d.buf) == 0 {
		return Frame{}, false, nil
	}

	kind := Kind(d.buf[0])
	if !kind.Valid() {
		return Frame{}, false, errors.ProtocolError{
			Reason: fmt.Sprintf("unknown frame kind %#x", d.buf[0])}
	}

	length, n := proto.DecodeVarint(d.buf[1:])
	if n == 0 {
		if len(d.buf)-1 >= binary.MaxVarintLen64 {
			return Frame{}, false, errors.ProtocolError{Reason: "malformed frame length"}
		}
		return Frame{}, false, nil
	}

	if length > uint64(d.MaxPayload) {
		return Frame{}, false, errors.ProtocolError{
			Reason: fmt.Sprintf("%s frame of %d bytes exceeds the %d byte limit",
				kind, length, d.MaxPayload)}
	}

	end := 1 + n + int(length)
	if len(d.buf) < end {
		return Frame{}, false, nil
	}

	payload := make([]byte, int(length))
	copy(payload, d.buf[1+n:end])

	// Release the consumed bytes so that the buffer doesn't grow without
	// bound over a long session.
	remaining := len(d.buf) - end
	copy(d.buf, d.buf[end:])
	d.buf = d.buf[:remaining]
	return Frame{Kind: kind, Payload: payload}, true, nil
}
