package pfs0

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/sync/errgroup"

	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
)

// InputFile is a named byte blob to pack into a PFS0 container.
type InputFile struct {
	Name string
	Data []byte
}

func alignUp(v, align int) int {
	if align <= 0 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}

// Build packs files into a PFS0 container, preserving insertion order for
// the string table and the data region (spec.md §4.3).
func Build(files []InputFile) []byte {
	stringTable := make([]byte, 0)
	nameOffsets := make([]uint32, len(files))
	for i, f := range files {
		nameOffsets[i] = uint32(len(stringTable))
		stringTable = append(stringTable, []byte(f.Name)...)
		stringTable = append(stringTable, 0)
	}
	stringTableSize := alignUp(len(stringTable), stringTableAlign)
	stringTable = append(stringTable, make([]byte, stringTableSize-len(stringTable))...)

	entries := make([]FileEntry, len(files))
	var dataOffset uint64
	for i, f := range files {
		entries[i] = FileEntry{
			DataOffset: dataOffset,
			DataSize:   uint64(len(f.Data)),
			NameOffset: nameOffsets[i],
		}
		dataOffset += uint64(len(f.Data))
	}

	header := Header{
		NumFiles:        uint32(len(files)),
		StringTableSize: uint32(len(stringTable)),
	}
	copy(header.Magic[:], Magic)

	var buf bytes.Buffer
	buf.Grow(headerSize + len(entries)*entrySize + len(stringTable) + int(dataOffset))
	_ = binary.Write(&buf, binary.LittleEndian, header)
	_ = binary.Write(&buf, binary.LittleEndian, entries)
	buf.Write(stringTable)
	for _, f := range files {
		buf.Write(f.Data)
	}
	return buf.Bytes()
}

// HashTable is the SHA-256-per-block hash table over a PFS0 image, padded
// to a 0x200 boundary (spec.md §4.3).
type HashTable struct {
	// Table is the raw (unpadded) hash data: numBlocks * 0x20 bytes.
	Table []byte
	// Padded is Table zero-padded up to a multiple of 0x200 — this padded
	// length is "pfs0Offset" in spec.md's terms.
	Padded []byte
	// BlockSize used to build the table.
	BlockSize int
}

// BuildHashTable hashes pfs0Bytes in blockSize chunks (the last chunk
// zero-padded before hashing), in parallel across blocks.
func BuildHashTable(pfs0Bytes []byte, blockSize int) (*HashTable, error) {
	numBlocks := (len(pfs0Bytes) + blockSize - 1) / blockSize
	hashes := make([][32]byte, numBlocks)

	var g errgroup.Group
	g.SetLimit(8)
	for i := 0; i < numBlocks; i++ {
		i := i
		g.Go(func() error {
			start := i * blockSize
			end := start + blockSize
			if end > len(pfs0Bytes) {
				end = len(pfs0Bytes)
			}
			block := pfs0Bytes[start:end]
			if len(block) < blockSize {
				padded := make([]byte, blockSize)
				copy(padded, block)
				block = padded
			}
			hashes[i] = nsacrypto.SHA256(block)
			return nil
		})
	}
	_ = g.Wait()

	table := make([]byte, numBlocks*32)
	for i, h := range hashes {
		copy(table[i*32:], h[:])
	}

	paddedLen := alignUp(len(table), 0x200)
	padded := make([]byte, paddedLen)
	copy(padded, table)

	return &HashTable{Table: table, Padded: padded, BlockSize: blockSize}, nil
}

// MasterHash hashes the unpadded hash table (spec.md §4.3).
func MasterHash(table []byte) [32]byte {
	return nsacrypto.SHA256(table)
}
