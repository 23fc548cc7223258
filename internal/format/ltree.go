package format

import (
	"encoding/binary"

	"github.com/go-ewf/ewf/internal/ltree"
)

// Ltree section payload encoding. Real EnCase/FTK ltree sections follow a
// proprietary, undocumented binary grammar; rather than reverse-engineer
// it, this module defines its own flat, length-prefixed table carrying the
// same node fields spec.md section 4.9 names, used consistently by both
// the writer and the reader:
//
//	u32 LE  node_count
//	repeated node_count:
//	  u32 LE  id
//	  u8      type            (0 root, 1 directory, 2 file)
//	  u32 LE  parent_id       (0xFFFFFFFF for the root)
//	  u64 LE  size
//	  u16 LE  name_len; byte[name_len]   name (UTF-8)
//	  u16 LE  attr_count
//	  repeated attr_count:
//	    u16 LE key_len; byte[key_len]
//	    u16 LE val_len; byte[val_len]
//	  u16 LE  range_count
//	  repeated range_count:
//	    u32 LE chunk_index
//	    u32 LE byte_offset
//	    u32 LE byte_length
const ltreeNoParent = 0xFFFFFFFF

// EncodeLtree serializes every node of t, in a stable walk order, into an
// "ltree" section payload.
func EncodeLtree(t *ltree.Tree) []byte {
	var nodes []*ltree.Node
	t.Walk(func(n *ltree.Node) bool {
		nodes = append(nodes, n)
		return true
	})

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(nodes)))
	for _, n := range nodes {
		buf = appendNode(buf, n)
	}
	return buf
}

func appendNode(buf []byte, n *ltree.Node) []byte {
	var head [17]byte
	binary.LittleEndian.PutUint32(head[0:4], uint32(n.ID))
	head[4] = uint8(n.Type)
	parent := uint32(ltreeNoParent)
	if n.ParentID >= 0 {
		parent = uint32(n.ParentID)
	}
	binary.LittleEndian.PutUint32(head[5:9], parent)
	binary.LittleEndian.PutUint64(head[9:17], uint64(n.Size))
	buf = append(buf, head[:]...)

	nameBytes := []byte(n.Name)
	var nl [2]byte
	binary.LittleEndian.PutUint16(nl[:], uint16(len(nameBytes)))
	buf = append(buf, nl[:]...)
	buf = append(buf, nameBytes...)

	var ac [2]byte
	binary.LittleEndian.PutUint16(ac[:], uint16(len(n.Attributes)))
	buf = append(buf, ac[:]...)
	for k, v := range n.Attributes {
		buf = appendKV(buf, k, v)
	}

	var rc [2]byte
	binary.LittleEndian.PutUint16(rc[:], uint16(len(n.Ranges)))
	buf = append(buf, rc[:]...)
	for _, r := range n.Ranges {
		var rb [12]byte
		binary.LittleEndian.PutUint32(rb[0:4], uint32(r.ChunkIndex))
		binary.LittleEndian.PutUint32(rb[4:8], uint32(r.ByteOffset))
		binary.LittleEndian.PutUint32(rb[8:12], uint32(r.ByteLength))
		buf = append(buf, rb[:]...)
	}
	return buf
}

func appendKV(buf []byte, k, v string) []byte {
	kb, vb := []byte(k), []byte(v)
	var kl, vl [2]byte
	binary.LittleEndian.PutUint16(kl[:], uint16(len(kb)))
	binary.LittleEndian.PutUint16(vl[:], uint16(len(vb)))
	buf = append(buf, kl[:]...)
	buf = append(buf, kb...)
	buf = append(buf, vl[:]...)
	buf = append(buf, vb...)
	return buf
}

// DecodeLtree parses an "ltree" section payload back into a Tree rooted at
// the first node carrying ltree.NodeRoot.
func DecodeLtree(payload []byte) (*ltree.Tree, bool) {
	if len(payload) < 4 {
		return nil, false
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	off := 4

	type raw struct {
		id, parent int
		typ        ltree.NodeType
		size       int64
		name       string
		attrs      map[string]string
		ranges     []ltree.DataRange
	}
	var rows []raw
	rootID := -1

	for i := uint32(0); i < count; i++ {
		if off+17 > len(payload) {
			return nil, false
		}
		id := int(binary.LittleEndian.Uint32(payload[off : off+4]))
		typ := ltree.NodeType(payload[off+4])
		parentRaw := binary.LittleEndian.Uint32(payload[off+5 : off+9])
		size := int64(binary.LittleEndian.Uint64(payload[off+9 : off+17]))
		off += 17

		if off+2 > len(payload) {
			return nil, false
		}
		nameLen := int(binary.LittleEndian.Uint16(payload[off : off+2]))
		off += 2
		if off+nameLen > len(payload) {
			return nil, false
		}
		name := string(payload[off : off+nameLen])
		off += nameLen

		if off+2 > len(payload) {
			return nil, false
		}
		attrCount := int(binary.LittleEndian.Uint16(payload[off : off+2]))
		off += 2
		attrs := make(map[string]string, attrCount)
		for a := 0; a < attrCount; a++ {
			k, v, next, ok := readKV(payload, off)
			if !ok {
				return nil, false
			}
			attrs[k] = v
			off = next
		}

		if off+2 > len(payload) {
			return nil, false
		}
		rangeCount := int(binary.LittleEndian.Uint16(payload[off : off+2]))
		off += 2
		ranges := make([]ltree.DataRange, rangeCount)
		for r := 0; r < rangeCount; r++ {
			if off+12 > len(payload) {
				return nil, false
			}
			ranges[r] = ltree.DataRange{
				ChunkIndex: int(binary.LittleEndian.Uint32(payload[off : off+4])),
				ByteOffset: int(binary.LittleEndian.Uint32(payload[off+4 : off+8])),
				ByteLength: int(binary.LittleEndian.Uint32(payload[off+8 : off+12])),
			}
			off += 12
		}

		parent := -1
		if parentRaw != ltreeNoParent {
			parent = int(parentRaw)
		}
		if typ == ltree.NodeRoot {
			rootID = id
		}
		rows = append(rows, raw{id: id, parent: parent, typ: typ, size: size, name: name, attrs: attrs, ranges: ranges})
	}
	if rootID < 0 {
		return nil, false
	}

	t := ltree.New(rootID)
	for _, r := range rows {
		if r.id == rootID {
			continue
		}
		err := t.AddNode(&ltree.Node{
			ID: r.id, Type: r.typ, Name: r.name, Size: r.size,
			ParentID: r.parent, Attributes: r.attrs, Ranges: r.ranges,
		})
		if err != nil {
			return nil, false
		}
	}
	return t, true
}

func readKV(payload []byte, off int) (k, v string, next int, ok bool) {
	if off+2 > len(payload) {
		return "", "", 0, false
	}
	kl := int(binary.LittleEndian.Uint16(payload[off : off+2]))
	off += 2
	if off+kl > len(payload) {
		return "", "", 0, false
	}
	k = string(payload[off : off+kl])
	off += kl
	if off+2 > len(payload) {
		return "", "", 0, false
	}
	vl := int(binary.LittleEndian.Uint16(payload[off : off+2]))
	off += 2
	if off+vl > len(payload) {
		return "", "", 0, false
	}
	v = string(payload[off : off+vl])
	off += vl
	return k, v, off, true
}
