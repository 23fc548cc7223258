// Package ltree implements the logical-evidence file tree of spec.md
// section 4.9: the node graph an "ltree" section describes, and the
// byte-range resolution that maps a node's contents onto chunk-cache
// reads.
package ltree

import "fmt"

// NodeType classifies an ltree entry.
type NodeType uint8

const (
	NodeRoot NodeType = iota
	NodeDirectory
	NodeFile
)

// DataRange is one {chunk_index, byte_offset, byte_length} triple making
// up part of a file node's content, per spec.md section 4.9.
type DataRange struct {
	ChunkIndex int
	ByteOffset int
	ByteLength int
}

// Node is one entry in the logical-evidence tree.
type Node struct {
	ID         int
	Type       NodeType
	Name       string // UTF-8; NameUTF16 holds the original wire form when known
	NameUTF16  []uint16
	Size       int64
	ParentID   int
	ChildIDs   []int
	Attributes map[string]string // MFT-like attributes: created/modified/accessed, flags, etc.
	Ranges     []DataRange
}

// Tree is the parsed node graph plus the indexes needed for name- and
// id-based lookup and recursive iteration.
type Tree struct {
	nodes    map[int]*Node
	rootID   int
	children map[int]map[string]int // parentID -> name -> childID
}

func New(rootID int) *Tree {
	return &Tree{
		nodes:    map[int]*Node{rootID: {ID: rootID, Type: NodeRoot, ParentID: -1}},
		rootID:   rootID,
		children: map[int]map[string]int{},
	}
}

// AddNode inserts n into the tree under its ParentID, indexing it for
// name-based lookup.
func (t *Tree) AddNode(n *Node) error {
	if _, exists := t.nodes[n.ID]; exists {
		return fmt.Errorf("ltree: duplicate node id %d", n.ID)
	}
	parent, ok := t.nodes[n.ParentID]
	if !ok {
		return fmt.Errorf("ltree: node %d references unknown parent %d", n.ID, n.ParentID)
	}
	t.nodes[n.ID] = n
	parent.ChildIDs = append(parent.ChildIDs, n.ID)
	if t.children[n.ParentID] == nil {
		t.children[n.ParentID] = make(map[string]int)
	}
	t.children[n.ParentID][n.Name] = n.ID
	return nil
}

// Root returns the synthetic root node.
func (t *Tree) Root() *Node { return t.nodes[t.rootID] }

// ByID returns the node with the given id.
func (t *Tree) ByID(id int) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Child looks up a direct child of parent by name.
func (t *Tree) Child(parentID int, name string) (*Node, bool) {
	kids, ok := t.children[parentID]
	if !ok {
		return nil, false
	}
	id, ok := kids[name]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// Children returns all direct children of a node, in insertion order.
func (t *Tree) Children(parentID int) []*Node {
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(parent.ChildIDs))
	for _, id := range parent.ChildIDs {
		out = append(out, t.nodes[id])
	}
	return out
}

// Walk visits every node reachable from root in pre-order, calling fn for
// each. Walk stops early if fn returns false.
func (t *Tree) Walk(fn func(*Node) bool) {
	var visit func(id int) bool
	visit = func(id int) bool {
		n, ok := t.nodes[id]
		if !ok {
			return true
		}
		if !fn(n) {
			return false
		}
		for _, childID := range n.ChildIDs {
			if !visit(childID) {
				return false
			}
		}
		return true
	}
	visit(t.rootID)
}

// ChunkReader resolves a node's byte ranges into chunk-cache reads; it is
// the seam between the tree and the cache, implemented by the consumer so
// this package stays free of a cache dependency.
type ChunkReader interface {
	ReadChunk(index int) ([]byte, error)
}

// ReadAt reads length bytes of node's logical content starting at offset,
// resolving through r.
func ReadAt(n *Node, r ChunkReader, offset, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	remaining := length
	pos := 0
	for _, rg := range n.Ranges {
		if remaining <= 0 {
			break
		}
		rangeStart := pos
		rangeEnd := pos + rg.ByteLength
		pos = rangeEnd
		if offset >= rangeEnd {
			continue
		}
		chunk, err := r.ReadChunk(rg.ChunkIndex)
		if err != nil {
			return nil, fmt.Errorf("ltree: read chunk %d: %w", rg.ChunkIndex, err)
		}
		localStart := rg.ByteOffset
		if offset > rangeStart {
			localStart += offset - rangeStart
		}
		avail := rg.ByteLength - (localStart - rg.ByteOffset)
		take := avail
		if take > remaining {
			take = remaining
		}
		if localStart+take > len(chunk) {
			take = len(chunk) - localStart
		}
		if take <= 0 {
			continue
		}
		out = append(out, chunk[localStart:localStart+take]...)
		remaining -= take
		offset += take
	}
	return out, nil
}
