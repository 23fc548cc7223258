package format

import (
	"testing"

	"github.com/go-ewf/ewf/internal/ltree"
)

func buildSampleTree() *ltree.Tree {
	t := ltree.New(0)
	_ = t.AddNode(&ltree.Node{ID: 1, Type: ltree.NodeDirectory, Name: "docs", ParentID: 0})
	_ = t.AddNode(&ltree.Node{
		ID: 2, Type: ltree.NodeFile, Name: "report.txt", ParentID: 1, Size: 9,
		Attributes: map[string]string{"created": "2026-01-01"},
		Ranges:     []ltree.DataRange{{ChunkIndex: 0, ByteOffset: 0, ByteLength: 9}},
	})
	return t
}

func TestLtreeRoundTrip(t *testing.T) {
	tree := buildSampleTree()
	payload := EncodeLtree(tree)

	got, ok := DecodeLtree(payload)
	if !ok {
		t.Fatalf("DecodeLtree reported a malformed payload")
	}

	docs, ok := got.Child(0, "docs")
	if !ok || docs.Type != ltree.NodeDirectory {
		t.Fatalf("expected a docs directory child, got %+v ok=%v", docs, ok)
	}
	report, ok := got.Child(docs.ID, "report.txt")
	if !ok {
		t.Fatalf("expected report.txt under docs")
	}
	if report.Size != 9 {
		t.Errorf("Size = %d, want 9", report.Size)
	}
	if report.Attributes["created"] != "2026-01-01" {
		t.Errorf("Attributes[created] = %q, want 2026-01-01", report.Attributes["created"])
	}
	if len(report.Ranges) != 1 || report.Ranges[0].ByteLength != 9 {
		t.Errorf("Ranges = %+v", report.Ranges)
	}
}

func TestDecodeLtreeTruncated(t *testing.T) {
	payload := EncodeLtree(buildSampleTree())
	if _, ok := DecodeLtree(payload[:len(payload)-2]); ok {
		t.Fatalf("expected truncated payload to be rejected")
	}
}

func TestDecodeLtreeMissingRoot(t *testing.T) {
	// a well-formed node table with no NodeRoot entry at all
	payload := EncodeLtree(buildSampleTree())
	// corrupt the root's type byte (offset 4 of the first 17-byte node
	// header, right after the 4-byte node count) from NodeRoot to NodeFile.
	payload[4+4] = byte(ltree.NodeFile)
	if _, ok := DecodeLtree(payload); ok {
		t.Fatalf("expected missing-root payload to be rejected")
	}
}
