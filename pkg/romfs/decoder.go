package romfs

import (
	"encoding/binary"

	"github.com/falk/nca-forge/pkg/ncaerr"
)

// Decode parses a RomFS image back into its Entry tree. It exists mainly to
// exercise Encode's round-trip property in tests and to back read-only
// inspection of already-built images.
func Decode(buf []byte) (*Entry, error) {
	if len(buf) < headerSize {
		return nil, ncaerr.New(ncaerr.InvalidFieldRange, "romfs header")
	}

	dirTableOfs := binary.LittleEndian.Uint64(buf[0x18:])
	dirEntryLength := binary.LittleEndian.Uint64(buf[0x20:])
	fileTableOfs := binary.LittleEndian.Uint64(buf[0x38:])
	fileEntryLength := binary.LittleEndian.Uint64(buf[0x40:])

	if dirTableOfs+dirEntryLength > uint64(len(buf)) || fileTableOfs+fileEntryLength > uint64(len(buf)) {
		return nil, ncaerr.New(ncaerr.InvalidFieldRange, "romfs table region")
	}

	dirTable := buf[dirTableOfs : dirTableOfs+dirEntryLength]
	fileTable := buf[fileTableOfs : fileTableOfs+fileEntryLength]

	root := &Entry{Name: "", Children: []*Entry{}}
	if err := decodeDir(root, 0, dirTable, fileTable, buf); err != nil {
		return nil, err
	}
	return root, nil
}

func decodeDir(node *Entry, offset uint32, dirTable, fileTable, image []byte) error {
	if offset >= uint32(len(dirTable)) {
		return ncaerr.New(ncaerr.InvalidFieldRange, "romfs dir offset")
	}
	childOffset := binary.LittleEndian.Uint32(dirTable[offset+0x08:])
	fileOffset := binary.LittleEndian.Uint32(dirTable[offset+0x0C:])

	for childOffset != sentinel {
		nameLen := binary.LittleEndian.Uint32(dirTable[childOffset+0x14:])
		name := string(dirTable[childOffset+0x18 : childOffset+0x18+nameLen])
		child := &Entry{Name: name, Children: []*Entry{}}
		node.Children = append(node.Children, child)
		if err := decodeDir(child, childOffset, dirTable, fileTable, image); err != nil {
			return err
		}
		childOffset = binary.LittleEndian.Uint32(dirTable[childOffset+0x04:])
	}

	for fileOffset != sentinel {
		if fileOffset >= uint32(len(fileTable)) {
			return ncaerr.New(ncaerr.InvalidFieldRange, "romfs file offset")
		}
		dataOffset := binary.LittleEndian.Uint64(fileTable[fileOffset+0x08:])
		dataSize := binary.LittleEndian.Uint64(fileTable[fileOffset+0x10:])
		nameLen := binary.LittleEndian.Uint32(fileTable[fileOffset+0x1C:])
		name := string(fileTable[fileOffset+0x20 : fileOffset+0x20+nameLen])

		start := dataPartitionOfs + dataOffset
		if start+dataSize > uint64(len(image)) {
			return ncaerr.New(ncaerr.InvalidFieldRange, "romfs file data range")
		}
		data := make([]byte, dataSize)
		copy(data, image[start:start+dataSize])

		node.Children = append(node.Children, &Entry{Name: name, Data: data})
		fileOffset = binary.LittleEndian.Uint32(fileTable[fileOffset+0x04:])
	}

	return nil
}
