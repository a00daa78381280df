package wire

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/protobuf/ptypes"
	tspb "github.com/golang/protobuf/ptypes/timestamp"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/sync"
)

// NotFoundSize is the total size announced in a FetchHeader when the server
// doesn't have the requested file.
const NotFoundSize = -1

// Header is the first frame of a FetchFile response.
type Header struct {
	// TotalSize is the number of bytes that will follow in FetchChunk
	// frames. It's negative if the file doesn't exist.
	TotalSize int64

	// ModTime is the modification time of the file on the server.
	ModTime time.Time
}

// NotFound returns whether the header signals a missing file.
func (h Header) NotFound() bool {
	return h.TotalSize < 0
}

// NewEchoRequest creates the request frame for an Echo command.
func NewEchoRequest(text string) Frame {
	return Frame{Kind: EchoRequest, Payload: []byte(text)}
}

// NewEchoResponse creates the response to an Echo command.
func NewEchoResponse(text string) Frame {
	return Frame{Kind: EchoResponse, Payload: []byte(text)}
}

// NewListRequest creates the request frame for a ListFiles command.
func NewListRequest() Frame {
	return Frame{Kind: ListRequest}
}

// NewFetchRequest creates the request frame for a FetchFile command.
func NewFetchRequest(path string) Frame {
	return Frame{Kind: FetchRequest, Payload: []byte(path)}
}

// NewFetchChunk wraps a piece of file contents.
func NewFetchChunk(chunk []byte) Frame {
	return Frame{Kind: FetchChunk, Payload: chunk}
}

// NewListResponse encodes a snapshot.
func NewListResponse(snapshot sync.Snapshot) (Frame, error) {
	buf := proto.NewBuffer(nil)
	if err := buf.EncodeVarint(uint64(len(snapshot))); err != nil {
		return Frame{}, errors.WithContext(err, "encode count")
	}

	for _, f := range snapshot {
		modTime, err := marshalTime(f.ModTime)
		if err != nil {
			return Frame{}, errors.WithContext(err, fmt.Sprintf("encode %q", f.Path))
		}

		if err := buf.EncodeStringBytes(f.Path); err != nil {
			return Frame{}, errors.WithContext(err, "encode path")
		}
		if err := buf.EncodeVarint(uint64(f.Size)); err != nil {
			return Frame{}, errors.WithContext(err, "encode size")
		}
		if err := buf.EncodeRawBytes(modTime); err != nil {
			return Frame{}, errors.WithContext(err, "encode modtime")
		}
	}
	return Frame{Kind: ListResponse, Payload: buf.Bytes()}, nil
}

// ParseListResponse decodes the payload of a ListResponse frame.
func ParseListResponse(payload []byte) (sync.Snapshot, error) {
	buf := proto.NewBuffer(payload)
	count, err := buf.DecodeVarint()
	if err != nil {
		return nil, malformed("list count", err)
	}

	// Every entry takes at least three bytes, so the count can't exceed the
	// payload size. Checking this stops a corrupt count from triggering a
	// huge allocation.
	if count > uint64(len(payload)) {
		return nil, errors.ProtocolError{
			Reason: fmt.Sprintf("list count %d exceeds payload size", count)}
	}

	snapshot := make(sync.Snapshot, 0, int(count))
	for i := uint64(0); i < count; i++ {
		path, err := buf.DecodeStringBytes()
		if err != nil {
			return nil, malformed("path", err)
		}

		size, err := buf.DecodeVarint()
		if err != nil {
			return nil, malformed("size", err)
		}

		rawModTime, err := buf.DecodeRawBytes(false)
		if err != nil {
			return nil, malformed("modtime", err)
		}

		modTime, err := unmarshalTime(rawModTime)
		if err != nil {
			return nil, malformed("modtime", err)
		}

		snapshot = append(snapshot, sync.FileInfo{
			Path:    path,
			Size:    int64(size),
			ModTime: modTime,
		})
	}
	return snapshot, nil
}

// NewFetchHeader encodes the first frame of a FetchFile response.
func NewFetchHeader(h Header) (Frame, error) {
	buf := proto.NewBuffer(nil)
	if err := buf.EncodeZigzag64(uint64(h.TotalSize)); err != nil {
		return Frame{}, errors.WithContext(err, "encode size")
	}

	var modTime []byte
	if !h.NotFound() {
		var err error
		modTime, err = marshalTime(h.ModTime)
		if err != nil {
			return Frame{}, errors.WithContext(err, "encode modtime")
		}
	}

	if err := buf.EncodeRawBytes(modTime); err != nil {
		return Frame{}, errors.WithContext(err, "encode modtime")
	}
	return Frame{Kind: FetchHeader, Payload: buf.Bytes()}, nil
}

// ParseFetchHeader decodes the payload of a FetchHeader frame.
func ParseFetchHeader(payload []byte) (Header, error) {
	buf := proto.NewBuffer(payload)
	size, err := buf.DecodeZigzag64()
	if err != nil {
		return Header{}, malformed("size", err)
	}

	rawModTime, err := buf.DecodeRawBytes(false)
	if err != nil {
		return Header{}, malformed("modtime", err)
	}

	h := Header{TotalSize: int64(size)}
	if h.NotFound() {
		h.TotalSize = NotFoundSize
		return h, nil
	}

	h.ModTime, err = unmarshalTime(rawModTime)
	if err != nil {
		return Header{}, malformed("modtime", err)
	}
	return h, nil
}

func marshalTime(t time.Time) ([]byte, error) {
	ts, err := ptypes.TimestampProto(t)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(ts)
}

func unmarshalTime(b []byte) (time.Time, error) {
	var ts tspb.Timestamp
	if err := proto.Unmarshal(b, &ts); err != nil {
		return time.Time{}, err
	}
	return ptypes.Timestamp(&ts)
}

func malformed(field string, err error) error {
	return errors.ProtocolError{Reason: fmt.Sprintf("malformed %s: %s", field, err)}
}
