package errors

import (
	goerrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext(t *testing.T) {
	assert.NoError(t, WithContext(nil, "ignored"))

	root := NotFoundError{Path: "a.txt"}
	err := WithContext(WithContext(root, "fetch"), "sync")
	assert.EqualError(t, err, `sync: fetch: "a.txt" does not exist on the server`)
	assert.Equal(t, root, RootCause(err))

	var notFound NotFoundError
	assert.True(t, goerrors.As(err, &notFound))
	assert.Equal(t, "a.txt", notFound.Path)
}

func TestUnwrapTaxonomy(t *testing.T) {
	cause := New("connection reset by peer")
	assert.True(t, Is(TransportError{Err: cause}, cause))
	assert.True(t, Is(ConnectionError{Address: "localhost:1", Err: cause}, cause))
	assert.True(t, Is(WithContext(IOError{Path: "a", Err: cause}, "write"), cause))
}

func TestGetPrintableMessage(t *testing.T) {
	friendly := NewFriendlyError("Could not reach %s.", "localhost:6543")
	assert.Equal(t, "Could not reach localhost:6543.",
		GetPrintableMessage(WithContext(friendly, "connect")))

	plain := WithContext(New("boom"), "scan")
	assert.Equal(t, "scan: boom", GetPrintableMessage(plain))
}
