package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sidkik/dirsync/pkg/errors"
)

func TestHandleFatalError(t *testing.T) {
	var out bytes.Buffer
	var exitCode int
	stderr = &out
	exit = func(code int) { exitCode = code }

	err := errors.WithContext(errors.NewFriendlyError("Failed to connect to %s", "host:1"), "connect")
	HandleFatalError(err)
	assert.Equal(t, 1, exitCode)
	assert.Equal(t, "Failed to connect to host:1\n", out.String())
}

func TestHandlePanic(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		defer HandlePanic()
		panic("boom")
	})
}
