// Package mount exposes an opened EWF image as a read-only FUSE file
// system: a logical-evidence image (spec.md section 4.9) mounts as its
// captured directory tree, and a raw-volume image mounts as a single flat
// file holding the reconstructed byte stream. Grounded on distr1/distri's
// internal/fuse, trimmed to the read-only, single-image case this format
// needs.
package mount

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	ewf "github.com/go-ewf/ewf"
	"github.com/go-ewf/ewf/internal/ltree"
)

// never is used as the FUSE attribute/entry expiration timestamp: the
// mounted image is immutable for the lifetime of the mount, so the kernel
// can cache attributes indefinitely.
var never = time.Now().Add(365 * 24 * time.Hour)

const rawFileInode fuseops.InodeID = 2

// imageFS implements fuseutil.FileSystem over one *ewf.Image.
type imageFS struct {
	fuseutil.NotImplementedFileSystem

	img      *ewf.Image
	tree     *ltree.Tree // nil in raw mode
	rawName  string
	fileMode os.FileMode

	// inode <-> ltree node id, populated once at construction time; fuse
	// inode 1 is always the mount root.
	nodeByInode map[fuseops.InodeID]*ltree.Node
	inodeByNode map[int]fuseops.InodeID
}

func newImageFS(img *ewf.Image, rawName string) *imageFS {
	fs := &imageFS{img: img, tree: img.Tree(), rawName: rawName, fileMode: 0o444}
	if fs.tree == nil {
		return fs
	}
	fs.nodeByInode = make(map[fuseops.InodeID]*ltree.Node)
	fs.inodeByNode = make(map[int]fuseops.InodeID)
	next := fuseops.InodeID(fuseops.RootInodeID)
	fs.tree.Walk(func(n *ltree.Node) bool {
		inode := next
		next++
		fs.nodeByInode[inode] = n
		fs.inodeByNode[n.ID] = inode
		return true
	})
	return fs
}

// Mount mounts img read-only at mountpoint. The returned join function
// blocks until the file system is unmounted (e.g. via fusermount -u or
// ctx cancellation) and then releases the mount.
func Mount(ctx context.Context, img *ewf.Image, mountpoint, rawName string) (join func(context.Context) error, err error) {
	fs := newImageFS(img, rawName)
	server := fuseutil.NewFileSystemServer(fs)

	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:   "ewf",
		ReadOnly: true,
		Options: map[string]string{
			"allow_other": "",
		},
	})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		defer fuse.Unmount(mountpoint)
		return mfs.Join(ctx)
	}, nil
}

func (fs *imageFS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = uint32(fs.img.ChunkSize())
	op.IoSize = uint32(fs.img.ChunkSize())
	op.Blocks = uint64(fs.img.Size()) / uint64(fs.img.ChunkSize())
	return nil
}

func (fs *imageFS) rootAttributes() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  os.ModeDir | 0o555,
		Atime: never,
		Mtime: never,
		Ctime: never,
	}
}

func (fs *imageFS) nodeAttributes(n *ltree.Node) fuseops.InodeAttributes {
	mode := fs.fileMode
	if n.Type == ltree.NodeDirectory {
		mode = os.ModeDir | 0o555
	}
	return fuseops.InodeAttributes{
		Size:  uint64(n.Size),
		Nlink: 1,
		Mode:  mode,
		Atime: never,
		Mtime: never,
		Ctime: never,
	}
}

func (fs *imageFS) rawFileAttributes() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  uint64(fs.img.Size()),
		Nlink: 1,
		Mode:  fs.fileMode,
		Atime: never,
		Mtime: never,
		Ctime: never,
	}
}

func (fs *imageFS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never

	if fs.tree == nil {
		if op.Parent != fuseops.RootInodeID || op.Name != fs.rawName {
			return fuse.ENOENT
		}
		op.Entry.Child = rawFileInode
		op.Entry.Attributes = fs.rawFileAttributes()
		return nil
	}

	parent, ok := fs.nodeForInode(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	child, ok := fs.tree.Child(parent.ID, op.Name)
	if !ok {
		return fuse.ENOENT
	}
	op.Entry.Child = fs.inodeByNode[child.ID]
	op.Entry.Attributes = fs.nodeAttributes(child)
	return nil
}

func (fs *imageFS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	op.AttributesExpiration = never

	if op.Inode == fuseops.RootInodeID {
		op.Attributes = fs.rootAttributes()
		return nil
	}
	if fs.tree == nil {
		if op.Inode != rawFileInode {
			return fuse.ENOENT
		}
		op.Attributes = fs.rawFileAttributes()
		return nil
	}
	n, ok := fs.nodeForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes = fs.nodeAttributes(n)
	return nil
}

// nodeForInode resolves a fuse inode to its ltree node, treating
// fuseops.RootInodeID as the tree root regardless of the root node's own
// ltree-assigned id.
func (fs *imageFS) nodeForInode(inode fuseops.InodeID) (*ltree.Node, bool) {
	if inode == fuseops.RootInodeID {
		return fs.tree.Root(), true
	}
	n, ok := fs.nodeByInode[inode]
	return n, ok
}

func (fs *imageFS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return nil
}

func (fs *imageFS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	if fs.tree == nil {
		var entries []fuseutil.Dirent
		if op.Inode == fuseops.RootInodeID {
			entries = append(entries, fuseutil.Dirent{
				Offset: 1,
				Inode:  rawFileInode,
				Name:   fs.rawName,
				Type:   fuseutil.DT_File,
			})
		}
		return writeDirents(op, entries)
	}

	n, ok := fs.nodeForInode(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	var entries []fuseutil.Dirent
	for _, child := range fs.tree.Children(n.ID) {
		typ := fuseutil.DT_File
		if child.Type == ltree.NodeDirectory {
			typ = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  fs.inodeByNode[child.ID],
			Name:   child.Name,
			Type:   typ,
		})
	}
	return writeDirents(op, entries)
}

func writeDirents(op *fuseops.ReadDirOp, entries []fuseutil.Dirent) error {
	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *imageFS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return nil
}

func (fs *imageFS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	if fs.tree == nil {
		if op.Inode != rawFileInode {
			return fuse.ENOENT
		}
		n, err := fs.img.ReadAt(op.Dst, op.Offset)
		op.BytesRead = n
		if err != nil && err != io.EOF {
			return translateReadErr(err)
		}
		return nil
	}

	n, ok := fs.nodeForInode(op.Inode)
	if !ok || n.Type != ltree.NodeFile {
		return fuse.ENOENT
	}
	length := len(op.Dst)
	if remaining := n.Size - op.Offset; int64(length) > remaining {
		length = int(remaining)
	}
	if length <= 0 {
		return nil
	}
	data, err := ltree.ReadAt(n, fs.img, int(op.Offset), length)
	if err != nil {
		return translateReadErr(err)
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

// translateReadErr maps a decode failure into the EIO a FUSE client
// expects rather than propagating this format's typed errors across the
// kernel boundary.
func translateReadErr(err error) error {
	if err == nil {
		return nil
	}
	return fuse.EIO
}
