package sync

import (
	"path"

	log "github.com/sirupsen/logrus"
)

// Status is the result of comparing a remote file against the local sync
// root.
type Status int

const (
	// UpToDate means the local copy matches the remote file exactly.
	UpToDate Status = iota

	// NeedUpdate means the file is missing locally, or its size or
	// modification time differs.
	NeedUpdate
)

func (s Status) String() string {
	switch s {
	case UpToDate:
		return "Up to date"
	case NeedUpdate:
		return "Need update"
	default:
		return "Unknown"
	}
}

// Node is one path segment in a Tree. Leaves represent files, and all other
// nodes represent directories. Only leaves have a File and a Status.
type Node struct {
	Name   string
	File   *FileInfo
	Status Status

	// children is keyed by segment. order records the insertion order of
	// the segments so that traversals are deterministic.
	children map[string]*Node
	order    []string
}

func newNode(name string) *Node {
	return &Node{Name: name, children: map[string]*Node{}}
}

// IsLeaf returns whether the node represents a file.
func (n *Node) IsLeaf() bool {
	return n.File != nil
}

// Child returns the child with the given segment name.
func (n *Node) Child(name string) (*Node, bool) {
	child, ok := n.children[name]
	return child, ok
}

// Children returns the node's children in insertion order.
func (n *Node) Children() []*Node {
	children := make([]*Node, 0, len(n.order))
	for _, name := range n.order {
		children = append(children, n.children[name])
	}
	return children
}

func (n *Node) getOrCreateChild(name string) *Node {
	child, ok := n.children[name]
	if !ok {
		child = newNode(name)
		n.children[name] = child
		n.order = append(n.order, name)
	}
	return child
}

// Tree is the hierarchical view of a remote snapshot. It's rebuilt from
// scratch on every sync so that files removed on the server don't leave
// stale branches behind.
type Tree struct {
	Root *Node
}

// BuildTree arranges `remote` into a tree and classifies each file against
// `local`.
// If a path appears more than once in `remote`, the later entry replaces the
// earlier one. An entry that would turn a file into a directory, or a
// directory into a file, is skipped.
func BuildTree(remote, local Snapshot) *Tree {
	localFiles := local.Index()
	tree := &Tree{Root: newNode("")}
	for _, f := range remote {
		segments := SplitPath(f.Path)
		if len(segments) == 0 {
			continue
		}

		if tree.conflicts(segments) {
			log.WithField("path", f.Path).Warn(
				"Skipping file that conflicts with another file in the listing")
			continue
		}

		node := tree.Root
		for _, segment := range segments {
			node = node.getOrCreateChild(segment)
		}

		f := f
		node.File = &f
		node.Status = NeedUpdate
		if localFile, ok := localFiles[f.Path]; ok && f.UpToDate(localFile) {
			node.Status = UpToDate
		}
	}
	return tree
}

// conflicts returns whether a file at `segments` would need a node to be both
// a file and a directory.
func (tree *Tree) conflicts(segments []string) bool {
	node := tree.Root
	for i, segment := range segments {
		child, ok := node.Child(segment)
		if !ok {
			return false
		}

		last := i == len(segments)-1
		if !last && child.IsLeaf() {
			return true
		}
		if last && len(child.children) != 0 {
			return true
		}
		node = child
	}
	return false
}

// WalkFunc is called for every node in the tree. `depth` is 0 for the
// children of the root, and `p` is the slash separated path of the node.
type WalkFunc func(p string, depth int, n *Node)

// Walk visits every node below the root depth first, visiting children in
// the order they were inserted.
func (tree *Tree) Walk(fn WalkFunc) {
	var walk func(prefix string, depth int, n *Node)
	walk = func(prefix string, depth int, n *Node) {
		for _, child := range n.Children() {
			childPath := path.Join(prefix, child.Name)
			fn(childPath, depth, child)
			walk(childPath, depth+1, child)
		}
	}
	walk("", 0, tree.Root)
}

// FindStale returns the paths of all files that need an update, in the order
// they should be fetched.
func (tree *Tree) FindStale() (paths []string) {
	tree.Walk(func(p string, _ int, n *Node) {
		if n.IsLeaf() && n.Status == NeedUpdate {
			paths = append(paths, n.File.Path)
		}
	})
	return paths
}

// Lookup returns the node at the given path.
func (tree *Tree) Lookup(p string) (*Node, bool) {
	node := tree.Root
	for _, segment := range SplitPath(p) {
		child, ok := node.Child(segment)
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, node != tree.Root
}

// Counts returns the number of files in each state.
func (tree *Tree) Counts() (upToDate, needUpdate int) {
	tree.Walk(func(_ string, _ int, n *Node) {
		if !n.IsLeaf() {
			return
		}
		if n.Status == UpToDate {
			upToDate++
		} else {
			needUpdate++
		}
	})
	return upToDate, needUpdate
}
