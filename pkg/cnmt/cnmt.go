// Package cnmt builds the content-metadata record table: the list of NCAs
// making up a title, their hashes, sizes, and types (spec.md §4.7).
package cnmt

import (
	"encoding/binary"
)

const (
	metaType            = 0x80 // Application
	extendedHeaderSize   = 0x10
	recordSize           = 0x38
	digestSize           = 0x20
	extendedHeaderOffset = 0x20
	recordsOffset        = 0x30
)

// ContentType mirrors the CNMT record's type byte.
type ContentType uint8

const (
	ContentTypeProgram ContentType = iota
	ContentTypeMeta
	ContentTypeControl
	ContentTypeManualHtmlDoc
	ContentTypeLegalInfo
)

// ContentRecord is one NCA's entry in the CNMT table.
type ContentRecord struct {
	Hash     [32]byte
	Size     uint64 // must fit in 48 bits
	Type     ContentType
	IDOffset uint8
}

// Build lays out the CNMT record table for titleID/titleVersion and the
// given content records, in record order.
func Build(titleID uint64, titleVersion uint32, records []ContentRecord) []byte {
	total := recordsOffset + recordSize*len(records) + digestSize
	buf := make([]byte, total)

	binary.LittleEndian.PutUint64(buf[0x00:], titleID)
	binary.LittleEndian.PutUint32(buf[0x08:], titleVersion)
	buf[0x0C] = metaType
	binary.LittleEndian.PutUint16(buf[0x0E:], extendedHeaderSize)
	binary.LittleEndian.PutUint16(buf[0x10:], uint16(len(records)))

	binary.LittleEndian.PutUint64(buf[extendedHeaderOffset:], titleID+0x800)

	for i, rec := range records {
		base := recordsOffset + i*recordSize
		copy(buf[base:base+digestSize], rec.Hash[:])
		copy(buf[base+0x20:base+0x30], rec.Hash[:0x10])
		binary.LittleEndian.PutUint32(buf[base+0x30:], uint32(rec.Size&0xFFFFFFFF))
		binary.LittleEndian.PutUint16(buf[base+0x34:], uint16((rec.Size>>32)&0xFFFF))
		buf[base+0x36] = byte(rec.Type)
		buf[base+0x37] = rec.IDOffset
	}

	return buf
}

// NcaID returns an NCA's id (the first 16 bytes of its hash, lower-hex).
func NcaID(hash [32]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 32)
	for i := 0; i < 16; i++ {
		out[i*2] = hexDigits[hash[i]>>4]
		out[i*2+1] = hexDigits[hash[i]&0xF]
	}
	return string(out)
}
