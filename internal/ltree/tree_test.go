package ltree

import "testing"

func TestTreeAddNodeAndLookup(t *testing.T) {
	tree := New(0)
	if err := tree.AddNode(&Node{ID: 1, Type: NodeDirectory, Name: "a", ParentID: 0}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := tree.AddNode(&Node{ID: 2, Type: NodeFile, Name: "b.txt", ParentID: 1}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	child, ok := tree.Child(0, "a")
	if !ok || child.ID != 1 {
		t.Fatalf("Child(0, a) = %+v, ok=%v", child, ok)
	}
	grandchild, ok := tree.Child(1, "b.txt")
	if !ok || grandchild.ID != 2 {
		t.Fatalf("Child(1, b.txt) = %+v, ok=%v", grandchild, ok)
	}
	if _, ok := tree.Child(1, "missing"); ok {
		t.Errorf("expected lookup of a missing name to fail")
	}
}

func TestTreeAddNodeDuplicateID(t *testing.T) {
	tree := New(0)
	if err := tree.AddNode(&Node{ID: 1, ParentID: 0}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := tree.AddNode(&Node{ID: 1, ParentID: 0}); err == nil {
		t.Errorf("expected duplicate id to be rejected")
	}
}

func TestTreeAddNodeUnknownParent(t *testing.T) {
	tree := New(0)
	if err := tree.AddNode(&Node{ID: 1, ParentID: 99}); err == nil {
		t.Errorf("expected unknown parent to be rejected")
	}
}

func TestTreeWalkPreOrder(t *testing.T) {
	tree := New(0)
	_ = tree.AddNode(&Node{ID: 1, Name: "a", ParentID: 0})
	_ = tree.AddNode(&Node{ID: 2, Name: "b", ParentID: 1})
	_ = tree.AddNode(&Node{ID: 3, Name: "c", ParentID: 0})

	var order []int
	tree.Walk(func(n *Node) bool {
		order = append(order, n.ID)
		return true
	})
	want := []int{0, 1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %d, want %d", i, order[i], want[i])
		}
	}
}

func TestTreeWalkStopsEarly(t *testing.T) {
	tree := New(0)
	_ = tree.AddNode(&Node{ID: 1, ParentID: 0})
	_ = tree.AddNode(&Node{ID: 2, ParentID: 0})

	var visited int
	tree.Walk(func(n *Node) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("visited = %d, want 1", visited)
	}
}

func TestTreeChildren(t *testing.T) {
	tree := New(0)
	_ = tree.AddNode(&Node{ID: 1, Name: "a", ParentID: 0})
	_ = tree.AddNode(&Node{ID: 2, Name: "b", ParentID: 0})

	kids := tree.Children(0)
	if len(kids) != 2 || kids[0].Name != "a" || kids[1].Name != "b" {
		t.Errorf("Children(0) = %+v", kids)
	}
}

type fakeChunkReader struct {
	chunks map[int][]byte
}

func (f *fakeChunkReader) ReadChunk(index int) ([]byte, error) {
	return f.chunks[index], nil
}

func TestReadAtSingleRange(t *testing.T) {
	r := &fakeChunkReader{chunks: map[int][]byte{0: []byte("hello world")}}
	n := &Node{Ranges: []DataRange{{ChunkIndex: 0, ByteOffset: 0, ByteLength: 11}}}

	got, err := ReadAt(n, r, 6, 5)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "world" {
		t.Errorf("ReadAt() = %q, want %q", got, "world")
	}
}

func TestReadAtSpansMultipleRanges(t *testing.T) {
	r := &fakeChunkReader{chunks: map[int][]byte{
		0: []byte("AAAABBBB"),
		1: []byte("CCCCDDDD"),
	}}
	n := &Node{Ranges: []DataRange{
		{ChunkIndex: 0, ByteOffset: 4, ByteLength: 4}, // "BBBB"
		{ChunkIndex: 1, ByteOffset: 0, ByteLength: 4}, // "CCCC"
	}}

	got, err := ReadAt(n, r, 2, 4)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(got) != "BBCC" {
		t.Errorf("ReadAt() = %q, want %q", got, "BBCC")
	}
}
