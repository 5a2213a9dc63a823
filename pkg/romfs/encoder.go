package romfs

import (
	"encoding/binary"
)

const (
	dirEntryFixedSize  = 0x18
	fileEntryFixedSize = 0x20
	headerSize         = 0x50
	dataPartitionOfs   = 0x200
)

func align(v, n uint64) uint64 {
	if n == 0 {
		return v
	}
	if rem := v % n; rem != 0 {
		return v + (n - rem)
	}
	return v
}

func entrySize(fixed int, nameLen int) uint32 {
	return uint32(align(uint64(fixed+nameLen), 4))
}

type dirRec struct {
	offset        uint32
	parentOffset  uint32
	siblingOffset uint32
	childOffset   uint32
	fileOffset    uint32
	hashSibling   uint32
	name          string
}

type fileRec struct {
	offset        uint32
	parentOffset  uint32
	siblingOffset uint32
	dataOffset    uint64
	dataSize      uint64
	hashSibling   uint32
	name          string
	data          []byte
}

// builder carries the mutable cursors shared across the recursive walk
// (spec.md §4.4 Pass 1).
type builder struct {
	dirCursor  uint32
	fileCursor uint32
	dataCursor uint64
	dirs       []*dirRec
	files      []*fileRec
	dirHeads   []uint32
	fileHeads  []uint32
}

// Encode lays out root's tree into a RomFS image (spec.md §4.4).
func Encode(root *Entry) ([]byte, error) {
	b := &builder{}

	rootRec := &dirRec{
		offset:        0,
		parentOffset:  0,
		siblingOffset: sentinel,
		childOffset:   sentinel,
		fileOffset:    sentinel,
		name:          "",
	}
	b.dirs = append(b.dirs, rootRec)
	b.dirCursor = entrySize(dirEntryFixedSize, 0)

	b.walkDir(root, rootRec)

	return b.layout()
}

// walkDir processes dirNode's children in sorted byte-lex order, emitting
// a DirEntry or FileEntry for each, linking sibling/child/file chains, and
// recursing immediately into directory children before moving to the next
// sibling at this level (spec.md §4.4 Pass 1).
func (b *builder) walkDir(dirNode *Entry, parent *dirRec) {
	var lastDirSibling *dirRec
	var lastFileSibling *fileRec

	for _, child := range dirNode.sortedChildren() {
		if child.IsDir() {
			offset := b.dirCursor
			b.dirCursor += entrySize(dirEntryFixedSize, len(child.Name))

			rec := &dirRec{
				offset:        offset,
				parentOffset:  parent.offset,
				siblingOffset: sentinel,
				childOffset:   sentinel,
				fileOffset:    sentinel,
				name:          child.Name,
			}
			b.dirs = append(b.dirs, rec)

			if lastDirSibling == nil {
				parent.childOffset = offset
			} else {
				lastDirSibling.siblingOffset = offset
			}
			lastDirSibling = rec

			b.walkDir(child, rec)
		} else {
			offset := b.fileCursor
			b.fileCursor += entrySize(fileEntryFixedSize, len(child.Name))

			dataOffset := b.dataCursor
			b.dataCursor += align(uint64(len(child.Data)), 16)

			rec := &fileRec{
				offset:        offset,
				parentOffset:  parent.offset,
				siblingOffset: sentinel,
				dataOffset:    dataOffset,
				dataSize:      uint64(len(child.Data)),
				name:          child.Name,
			}
			rec.data = child.Data
			b.files = append(b.files, rec)

			if lastFileSibling == nil {
				parent.fileOffset = offset
			} else {
				lastFileSibling.siblingOffset = offset
			}
			lastFileSibling = rec
		}
	}
}

func (b *builder) layout() ([]byte, error) {
	b.assignHashBuckets()

	filePartitionSize := uint64(0)
	for i, f := range b.files {
		filePartitionSize += f.dataSize
		if i != len(b.files)-1 {
			filePartitionSize = align(filePartitionSize, 16)
		}
	}

	dirHashTableOfs := align(filePartitionSize+dataPartitionOfs, 4)
	dirBuckets := bucketCount(len(b.dirs))
	fileBuckets := bucketCount(len(b.files))

	dirHashTableSize := uint64(4) * uint64(dirBuckets)
	dirTableOfs := dirHashTableOfs + dirHashTableSize
	dirEntryLength := uint64(b.dirCursor)
	fileHashTableOfs := dirTableOfs + dirEntryLength
	fileHashTableSize := uint64(4) * uint64(fileBuckets)
	fileTableOfs := fileHashTableOfs + fileHashTableSize
	fileEntryLength := uint64(b.fileCursor)

	total := fileTableOfs + fileEntryLength
	buf := make([]byte, total)

	writeHeader(buf, dirHashTableOfs, dirHashTableSize, dirTableOfs, dirEntryLength,
		fileHashTableOfs, fileHashTableSize, fileTableOfs, fileEntryLength)

	for _, f := range b.files {
		copy(buf[dataPartitionOfs+f.dataOffset:], f.data)
	}

	writeHashTable(buf[dirHashTableOfs:dirHashTableOfs+dirHashTableSize], b.dirHeads)
	writeDirTable(buf[dirTableOfs:dirTableOfs+dirEntryLength], b.dirs)
	writeHashTable(buf[fileHashTableOfs:fileHashTableOfs+fileHashTableSize], b.fileHeads)
	writeFileTable(buf[fileTableOfs:fileTableOfs+fileEntryLength], b.files)

	return buf, nil
}

// assignHashBuckets computes each entry's hashSibling chain, inserting in
// emission order (LIFO per bucket: each new entry becomes the bucket head,
// chaining to whichever entry was previously head).
func (b *builder) assignHashBuckets() {
	dirBuckets := bucketCount(len(b.dirs))
	dirHeads := make([]uint32, dirBuckets)
	for i := range dirHeads {
		dirHeads[i] = sentinel
	}
	for _, d := range b.dirs {
		h := entryHash(d.parentOffset, d.name) % dirBuckets
		d.hashSibling = dirHeads[h]
		dirHeads[h] = d.offset
	}
	b.dirHeads = dirHeads

	fileBuckets := bucketCount(len(b.files))
	fileHeads := make([]uint32, fileBuckets)
	for i := range fileHeads {
		fileHeads[i] = sentinel
	}
	for _, f := range b.files {
		h := entryHash(f.parentOffset, f.name) % fileBuckets
		f.hashSibling = fileHeads[h]
		fileHeads[h] = f.offset
	}
	b.fileHeads = fileHeads
}

func writeHeader(buf []byte, dirHashOfs, dirHashSize, dirTableOfs, dirEntryLen,
	fileHashOfs, fileHashSize, fileTableOfs, fileEntryLen uint64) {
	fields := []uint64{
		headerSize,
		dirHashOfs, dirHashSize,
		dirTableOfs, dirEntryLen,
		fileHashOfs, fileHashSize,
		fileTableOfs, fileEntryLen,
		dataPartitionOfs,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
}

// writeHashTable serializes a bucket-head slice into the on-disk u32 LE
// hash table region.
func writeHashTable(buf []byte, heads []uint32) {
	for i, head := range heads {
		binary.LittleEndian.PutUint32(buf[i*4:], head)
	}
}

func writeDirTable(buf []byte, dirs []*dirRec) {
	for _, d := range dirs {
		putDirEntry(buf[d.offset:], d)
	}
}

func writeFileTable(buf []byte, files []*fileRec) {
	for _, f := range files {
		putFileEntry(buf[f.offset:], f)
	}
}

func putDirEntry(buf []byte, d *dirRec) {
	binary.LittleEndian.PutUint32(buf[0x00:], d.parentOffset)
	binary.LittleEndian.PutUint32(buf[0x04:], d.siblingOffset)
	binary.LittleEndian.PutUint32(buf[0x08:], d.childOffset)
	binary.LittleEndian.PutUint32(buf[0x0C:], d.fileOffset)
	binary.LittleEndian.PutUint32(buf[0x10:], d.hashSibling)
	binary.LittleEndian.PutUint32(buf[0x14:], uint32(len(d.name)))
	copy(buf[0x18:], d.name)
}

func putFileEntry(buf []byte, f *fileRec) {
	binary.LittleEndian.PutUint32(buf[0x00:], f.parentOffset)
	binary.LittleEndian.PutUint32(buf[0x04:], f.siblingOffset)
	binary.LittleEndian.PutUint64(buf[0x08:], f.dataOffset)
	binary.LittleEndian.PutUint64(buf[0x10:], f.dataSize)
	binary.LittleEndian.PutUint32(buf[0x18:], f.hashSibling)
	binary.LittleEndian.PutUint32(buf[0x1C:], uint32(len(f.name)))
	copy(buf[0x20:], f.name)
}
