package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/buger/goterm"
	"github.com/jroimartin/gocui"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/fswatch"
	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync"
	"github.com/sidkik/dirsync/pkg/sync/client"
)

const (
	headerViewName   = "header"
	filesViewName    = "files"
	transferViewName = "transfer"
	statusViewName   = "status"

	statusHeight = 6
)

type gui struct {
	client    *client.Client
	opts      util.ClientOptions
	model     *model
	loggerOut chanWriter
}

func (ui *gui) Run() error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return err
	}
	defer g.Close()

	g.SetManagerFunc(ui.layout)
	if err := ui.setKeybindings(g); err != nil {
		return err
	}

	// Stream the logrus output to the status view.
	go func() {
		defer util.HandlePanic()
		copyToView(g, statusViewName, ui.loggerOut)
	}()

	go func() {
		defer util.HandlePanic()
		ui.processEvents(g)
	}()

	go func() {
		defer util.HandlePanic()
		ui.watchLocal(g)
	}()

	go ui.connect()

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func (ui *gui) setKeybindings(g *gocui.Gui) error {
	bindings := []struct {
		key     interface{}
		name    string
		handler func()
	}{
		{'c', "connect", ui.toggleConnection},
		{'r', "refresh", ui.refresh},
		{'u', "update selected", func() { ui.fetch(ui.model.selectedStale()) }},
		{'a', "update all", func() { ui.fetch(ui.model.allStale()) }},
		{gocui.KeyArrowUp, "up", func() { ui.model.moveCursor(-1) }},
		{gocui.KeyArrowDown, "down", func() { ui.model.moveCursor(1) }},
	}
	for _, binding := range bindings {
		handler := binding.handler
		err := g.SetKeybinding("", binding.key, gocui.ModNone,
			func(_ *gocui.Gui, _ *gocui.View) error {
				handler()
				return nil
			})
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("bind %s", binding.name))
		}
	}

	ctrlCHandler := func(_ *gocui.Gui, _ *gocui.View) error {
		return gocui.ErrQuit
	}
	if err := g.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, ctrlCHandler); err != nil {
		return errors.WithContext(err, "bind GUI Ctrl-C")
	}
	return nil
}

func (ui *gui) connect() {
	log.WithField("address", ui.opts.Address()).Info("Connecting")
	err := ui.client.Connect(context.Background(), ui.opts.Host, ui.opts.Port)
	if err != nil {
		log.WithError(err).Warn("Failed to connect. Press `c` to retry.")
	}
}

func (ui *gui) toggleConnection() {
	if ui.model.isConnected() {
		ui.client.Disconnect()
		return
	}
	go ui.connect()
}

func (ui *gui) refresh() {
	if err := ui.client.RequestFileList(); err != nil {
		log.WithError(err).Warn("Failed to request file list")
	}
}

func (ui *gui) fetch(paths []string) {
	if len(paths) == 0 {
		log.Info("Nothing to update")
		return
	}

	for _, path := range paths {
		if err := ui.client.RequestFile(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("Failed to request file")
			return
		}
	}
	log.Infof("Updating %d file(s)", len(paths))
}

// processEvents applies the client's events to the model, and redraws.
func (ui *gui) processEvents(g *gocui.Gui) {
	for ev := range ui.client.Events() {
		logEvent(ev)
		if remote, ok := ui.model.apply(ev); ok {
			ui.reclassify(remote)
		}

		if cc, ok := ev.(client.ConnectivityChanged); ok && cc.Connected {
			ui.refresh()
		}
		g.Update(func(*gocui.Gui) error { return nil })
	}
}

// watchLocal reclassifies the tree whenever the local directory changes.
func (ui *gui) watchLocal(g *gocui.Gui) {
	changes, err := fswatch.Watch(ui.client.Root())
	if err != nil {
		log.WithError(err).Warn("Failed to watch the local directory. " +
			"Press `r` to refresh after local changes.")
		return
	}

	for range changes {
		if remote, ok := ui.model.remoteSnapshot(); ok {
			ui.reclassify(remote)
			g.Update(func(*gocui.Gui) error { return nil })
		}
	}
}

func (ui *gui) reclassify(remote sync.Snapshot) {
	tree, err := ui.client.Classify(remote)
	if err != nil {
		log.WithError(err).Warn("Failed to scan the local directory")
		return
	}
	ui.model.setTree(tree)
}

func logEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case client.ConnectivityChanged:
		if !ev.Connected && ev.Err != nil {
			log.WithError(ev.Err).Warn("Disconnected. Press `c` to reconnect.")
		} else if !ev.Connected {
			log.Info("Disconnected")
		}
	case client.EchoReceived:
		log.Infof("Echo: %s", ev.Text)
	case client.FilesListReceived:
		log.Infof("Listed %d file(s)", len(ev.Snapshot))
	case client.FileReceived:
		log.Infof("Downloaded %s", ev.Path)
	case client.CommandFailed:
		log.WithError(ev.Err).WithField("path", ev.Path).Warnf("%s failed", ev.Command)
	}
}

func (ui *gui) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	header, err := g.SetView(headerViewName, 0, 0, maxX-1, 2)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	header.Title = "dirsync"
	header.Clear()
	fmt.Fprintln(header, ui.model.header())

	filesBottom := maxY - statusHeight - 5
	if filesBottom < 4 {
		filesBottom = 4
	}
	files, err := g.SetView(filesViewName, 0, 3, maxX-1, filesBottom)
	if err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		files.Highlight = true
		files.SelBgColor = gocui.ColorBlue
		files.SelFgColor = gocui.ColorWhite
		if _, err := g.SetCurrentView(filesViewName); err != nil {
			return err
		}
	}
	files.Title = "Files [c]onnect [r]efresh [u]pdate selected update [a]ll"
	if err := ui.renderFiles(files); err != nil {
		return err
	}

	transferView, err := g.SetView(transferViewName, 0, filesBottom+1, maxX-1, filesBottom+3)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	transferView.Title = "Transfer"
	transferView.Clear()
	width, _ := transferView.Size()
	fmt.Fprintln(transferView, ui.model.transferLine(width))

	status, err := g.SetView(statusViewName, 0, filesBottom+4, maxX-1, maxY-1)
	if err != nil && err != gocui.ErrUnknownView {
		return err
	}
	status.Title = "Status"
	status.Wrap = true
	status.Autoscroll = true
	return nil
}

func (ui *gui) renderFiles(v *gocui.View) error {
	v.Clear()
	rows, cursor := ui.model.snapshotRows()
	if len(rows) == 0 {
		fmt.Fprintln(v, "No files")
		return nil
	}

	width, height := v.Size()
	for _, r := range rows {
		fmt.Fprintln(v, formatRow(r, width))
	}

	// Scroll so that the cursor is visible.
	origin := 0
	if cursor >= height {
		origin = cursor - height + 1
	}
	if err := v.SetOrigin(0, origin); err != nil {
		return err
	}
	return v.SetCursor(0, cursor-origin)
}

func formatRow(r row, width int) string {
	name := strings.Repeat("  ", r.depth) + r.node.Name
	if !r.node.IsLeaf() {
		return name + "/"
	}

	status := r.node.Status.String()
	padding := width - len(name) - len(status)
	if padding < 1 {
		padding = 1
	}

	color := goterm.GREEN
	if r.node.Status == sync.NeedUpdate {
		color = goterm.YELLOW
	}
	return name + strings.Repeat(" ", padding) + goterm.Color(status, color)
}

// copyToView writes the messages in `stream` into the desired `view` in `gui`.
// It guarantees writes occur in the order of messages in `stream`.
func copyToView(gui *gocui.Gui, view string, stream chanWriter) {
	for b := range stream {
		b := b
		done := make(chan struct{})
		gui.Update(func(gui *gocui.Gui) error {
			defer close(done)
			v, err := gui.View(view)
			if err != nil {
				return err
			}

			if _, err := v.Write(b); err != nil {
				return err
			}
			return nil
		})
		<-done
	}
}
