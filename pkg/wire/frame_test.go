package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dirsync/pkg/errors"
)

func TestDecodePartialReads(t *testing.T) {
	frames := []Frame{
		NewEchoRequest("hello"),
		NewListRequest(),
		NewFetchChunk(bytes.Repeat([]byte("x"), 300)),
		NewFetchRequest("dir/file"),
	}

	var stream []byte
	for _, f := range frames {
		stream = append(stream, f.Encode()...)
	}

	// Deliver the stream one byte at a time, which is the worst case for
	// reassembly.
	d := NewDecoder()
	var decoded []Frame
	for _, b := range stream {
		d.Feed([]byte{b})
		for {
			f, ok, err := d.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			decoded = append(decoded, f)
		}
	}

	require.Len(t, decoded, len(frames))
	for i, f := range frames {
		assert.Equal(t, f.Kind, decoded[i].Kind)
		assert.Equal(t, len(f.Payload), len(decoded[i].Payload))
		assert.True(t, bytes.Equal(f.Payload, decoded[i].Payload))
	}
	assert.Zero(t, d.Buffered())
}

func TestDecodeMultipleFramesInOneRead(t *testing.T) {
	d := NewDecoder()
	d.Feed(append(NewEchoResponse("a").Encode(), NewEchoResponse("b").Encode()...))

	f, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", string(f.Payload))

	f, ok, err = d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", string(f.Payload))

	_, ok, err = d.Next()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{
			name:  "UnknownKind",
			input: []byte{0x42, 0x00},
		},
		{
			name:  "MalformedLength",
			input: append([]byte{byte(EchoResponse)}, bytes.Repeat([]byte{0xff}, 11)...),
		},
		{
			name:  "TooLarge",
			input: []byte{byte(FetchChunk), 0x80, 0x80, 0x80, 0x10},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			d := NewDecoder()
			d.MaxPayload = 1024
			d.Feed(test.input)
			_, ok, err := d.Next()
			assert.False(t, ok)

			var protoErr errors.ProtocolError
			assert.True(t, errors.As(err, &protoErr), "%v", err)
		})
	}
}

func TestKind(t *testing.T) {
	assert.True(t, EchoRequest.IsRequest())
	assert.True(t, FetchRequest.IsRequest())
	assert.False(t, FetchChunk.IsRequest())
	assert.False(t, Kind(0x05).IsRequest())
	assert.Equal(t, "ListResponse", ListResponse.String())
	assert.Equal(t, "Kind(0x7)", Kind(0x07).String())
}
