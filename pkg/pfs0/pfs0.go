// Package pfs0 implements the Partition FileSystem 0 container: parsing
// (kept from the teacher) and encoding with an optional SHA-256 hash table
// (spec.md §4.3).
package pfs0

import (
	"encoding/binary"
	"io"

	"github.com/falk/nca-forge/pkg/ncaerr"
)

const (
	Magic         = "PFS0"
	headerSize    = 0x10
	entrySize     = 0x18
	stringTableAlign = 0x20
)

// Header mirrors the on-disk PFS0 header.
type Header struct {
	Magic           [4]byte
	NumFiles        uint32
	StringTableSize uint32
	Reserved        uint32
}

// FileEntry mirrors an on-disk PFS0 file entry.
type FileEntry struct {
	DataOffset uint64
	DataSize   uint64
	NameOffset uint32
	Reserved   uint32
}

// File is a parsed entry with its resolved name.
type File struct {
	Name  string
	Entry FileEntry
}

// Open parses a PFS0 container from r, returning its files and the byte
// offset where the data region begins.
func Open(r io.Reader) ([]File, int64, error) {
	var header Header
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, 0, err
	}

	if string(header.Magic[:]) != Magic {
		return nil, 0, ncaerr.New(ncaerr.InvalidMagic, "pfs0")
	}

	entries := make([]FileEntry, header.NumFiles)
	if err := binary.Read(r, binary.LittleEndian, &entries); err != nil {
		return nil, 0, err
	}

	stringTable := make([]byte, header.StringTableSize)
	if _, err := io.ReadFull(r, stringTable); err != nil {
		return nil, 0, err
	}

	files := make([]File, header.NumFiles)
	for i, entry := range entries {
		name, err := readCString(stringTable, entry.NameOffset)
		if err != nil {
			return nil, 0, err
		}
		files[i] = File{Name: name, Entry: entry}
	}

	dataStart := int64(headerSize + len(entries)*entrySize + len(stringTable))
	return files, dataStart, nil
}

func readCString(table []byte, offset uint32) (string, error) {
	if offset >= uint32(len(table)) {
		return "", ncaerr.New(ncaerr.InvalidFieldRange, "pfs0 name offset")
	}
	end := offset
	for end < uint32(len(table)) && table[end] != 0 {
		end++
	}
	return string(table[offset:end]), nil
}
