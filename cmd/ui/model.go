package ui

import (
	"fmt"
	goSync "sync"

	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync"
	"github.com/sidkik/dirsync/pkg/sync/client"
	"github.com/sidkik/dirsync/pkg/transfer"
)

// row is one line of the files view.
type row struct {
	path  string
	depth int
	node  *sync.Node
}

// model is the state rendered by the GUI. It's updated by the event loop and
// the key bindings, so all access goes through its methods.
type model struct {
	lock goSync.Mutex

	address   string
	connected bool

	// remote is the most recent listing from the server. It's kept so that
	// the tree can be reclassified when the local directory changes.
	remote     sync.Snapshot
	haveRemote bool
	tree       *sync.Tree
	rows       []row
	cursor     int

	transfer *client.TransferProgress
}

func newModel(address string) *model {
	return &model{address: address}
}

// apply updates the model for an event. It returns the remote snapshot if
// the tree needs to be reclassified.
func (m *model) apply(ev protocol.Event) (sync.Snapshot, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	switch ev := ev.(type) {
	case client.ConnectivityChanged:
		m.connected = ev.Connected
		if !ev.Connected {
			m.transfer = nil
		}
	case client.FilesListReceived:
		m.remote = ev.Snapshot
		m.haveRemote = true
		return m.remote, true
	case client.TransferProgress:
		progress := ev
		m.transfer = &progress
	case client.FileReceived:
		m.transfer = nil
		if m.haveRemote {
			return m.remote, true
		}
	case client.CommandFailed:
		if m.transfer != nil && m.transfer.Path == ev.Path {
			m.transfer = nil
		}
	}
	return nil, false
}

// remoteSnapshot returns the last listing, if there's been one.
func (m *model) remoteSnapshot() (sync.Snapshot, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.remote, m.haveRemote
}

// setTree replaces the displayed tree. The cursor stays on the same path if
// it still exists.
func (m *model) setTree(tree *sync.Tree) {
	m.lock.Lock()
	defer m.lock.Unlock()

	var selected string
	if m.cursor < len(m.rows) {
		selected = m.rows[m.cursor].path
	}

	m.tree = tree
	m.rows = nil
	m.cursor = 0
	tree.Walk(func(p string, depth int, n *sync.Node) {
		if p == selected {
			m.cursor = len(m.rows)
		}
		m.rows = append(m.rows, row{path: p, depth: depth, node: n})
	})
}

func (m *model) moveCursor(delta int) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.cursor += delta
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// selectedStale returns the stale files at or below the selected row.
func (m *model) selectedStale() []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.cursor >= len(m.rows) {
		return nil
	}

	selected := m.rows[m.cursor].node
	if selected.IsLeaf() {
		if selected.Status == sync.NeedUpdate {
			return []string{selected.File.Path}
		}
		return nil
	}
	return (&sync.Tree{Root: selected}).FindStale()
}

// allStale returns every stale file in the tree.
func (m *model) allStale() []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.tree == nil {
		return nil
	}
	return m.tree.FindStale()
}

func (m *model) isConnected() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.connected
}

func (m *model) header() string {
	m.lock.Lock()
	defer m.lock.Unlock()

	state := "Disconnected"
	if m.connected {
		state = "Connected"
	}

	summary := "no listing yet"
	if m.tree != nil {
		upToDate, needUpdate := m.tree.Counts()
		summary = fmt.Sprintf("%d up to date, %d need an update", upToDate, needUpdate)
	}
	return fmt.Sprintf("%s to %s (%s)", state, m.address, summary)
}

// transferLine describes the current transfer.
func (m *model) transferLine(width int) string {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.transfer == nil {
		return "Idle"
	}
	return fmt.Sprintf("%s %s", m.transfer.Path,
		progressBar(m.transfer.ReceivedSize, m.transfer.TotalSize, width-len(m.transfer.Path)-1))
}

// snapshotRows returns a copy of the rows and the cursor for rendering.
func (m *model) snapshotRows() ([]row, int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]row(nil), m.rows...), m.cursor
}

// progressBar renders a bar of the given width followed by the percentage.
func progressBar(received, total int64, width int) string {
	percent := transfer.Percent(received, total)
	label := fmt.Sprintf(" %3.0f%%", percent)

	barWidth := width - len(label) - 2
	if barWidth < 1 {
		return label[1:]
	}

	filled := int(percent / 100 * float64(barWidth))
	bar := make([]byte, barWidth)
	for i := range bar {
		if i < filled {
			bar[i] = '='
		} else {
			bar[i] = ' '
		}
	}
	return "[" + string(bar) + "]" + label
}
