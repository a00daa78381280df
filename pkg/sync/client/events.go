package client

import (
	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync"
)

// Command names reported in CommandFailed events.
const (
	EchoCommand  = "Echo"
	ListCommand  = "ListFiles"
	FetchCommand = "FetchFile"
)

// ConnectivityChanged is published when the connection opens or closes.
type ConnectivityChanged = protocol.ConnectivityChanged

// EchoReceived is published when the server answers an Echo.
type EchoReceived struct {
	Text string
}

// FilesListReceived is published when the server answers a ListFiles.
type FilesListReceived struct {
	Snapshot sync.Snapshot
}

// TransferProgress is published after the header and each chunk of a fetch.
type TransferProgress struct {
	Path         string
	TotalSize    int64
	ReceivedSize int64
	Percent      float64
}

// FileReceived is published once a fetched file is in place in the local
// root.
type FileReceived struct {
	Path string
}

// CommandFailed is published when a command doesn't complete. The connection
// remains usable unless a ConnectivityChanged event follows.
type CommandFailed struct {
	Command string

	// Path is set for FetchFile commands.
	Path string
	Err  error
}
