// Package xci parses the gamecard image container: a "HEAD"-tagged locator
// pointing at a root HFS0 whose entries are themselves sub-HFS0 partitions
// (spec.md §4.9).
package xci

import (
	"io"

	"github.com/falk/nca-forge/pkg/hfs0"
	"github.com/falk/nca-forge/pkg/ncaerr"
)

const (
	magicOffset       = 0x100
	Magic             = "HEAD"
	primaryHfs0Offset = 0xF000
	fallbackHfs0Offset = 0x10000
	secureEntryName   = "secure"
)

// Image is a parsed XCI: the root partitions, where the root HFS0 and its
// data region sit, and the secure sub-partition's files plus the absolute
// offset of its HFS0 header.
type Image struct {
	RootPartitions map[string]hfs0.File
	rootOffset     int64 // absolute offset of the root HFS0 header
	rootDataStart  int64 // root HFS0's data region, relative to rootOffset

	// Secure is the primary sub-partition's files, surfaced directly per
	// spec.md §4.9 ("one is named secure and surfaces as the primary file
	// map").
	Secure       []hfs0.File
	secureOffset int64
}

// Open locates and parses an XCI image's root HFS0, then the "secure"
// sub-partition within it.
func Open(r io.ReaderAt) (*Image, error) {
	magicBuf := make([]byte, 4)
	if _, err := r.ReadAt(magicBuf, magicOffset); err != nil {
		return nil, err
	}
	if string(magicBuf) != Magic {
		return nil, ncaerr.New(ncaerr.InvalidMagic, "xci HEAD")
	}

	rootOffset, rootDataStart, rootFiles, err := tryParseRootHfs0(r)
	if err != nil {
		return nil, err
	}

	img := &Image{
		RootPartitions: make(map[string]hfs0.File, len(rootFiles)),
		rootOffset:     rootOffset,
		rootDataStart:  rootDataStart,
	}
	for _, f := range rootFiles {
		img.RootPartitions[f.Name] = f
	}

	secure, ok := img.RootPartitions[secureEntryName]
	if !ok {
		return img, nil
	}

	img.secureOffset = rootOffset + rootDataStart + int64(secure.Entry.DataOffset)
	secureFiles, _, err := hfs0.Open(io.NewSectionReader(r, img.secureOffset, int64(secure.Entry.DataSize)))
	if err != nil {
		return nil, err
	}
	img.Secure = secureFiles

	return img, nil
}

// tryParseRootHfs0 parses the root HFS0 at the primary offset, falling
// back to the alternate offset on failure (spec.md §4.9 / §7 "local
// recovery ... XCI root HFS0 offset retry").
func tryParseRootHfs0(r io.ReaderAt) (int64, int64, []hfs0.File, error) {
	for _, offset := range []int64{primaryHfs0Offset, fallbackHfs0Offset} {
		files, dataStart, err := hfs0.Open(io.NewSectionReader(r, offset, 1<<31))
		if err == nil {
			return offset, dataStart, files, nil
		}
	}
	return 0, 0, nil, ncaerr.New(ncaerr.InvalidMagic, "xci root hfs0")
}
