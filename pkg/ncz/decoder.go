package ncz

import (
	"encoding/binary"
	"io"

	"github.com/falk/nca-forge/pkg/bytesource"
	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/falk/nca-forge/pkg/ncaerr"
	nsazstd "github.com/falk/nca-forge/pkg/zstd"
)

// Decode runs the full NCZ→NCA pipeline: Init → ReadHeader → ReadSections →
// [Block|Stream] → Emit* → Done, with any failure funneled through Error
// (spec.md §4.10). sink receives bytes in strictly increasing NCA-offset
// order and must never be written to again once it returns an error.
func Decode(source bytesource.ByteSource, sink Sink) (*Result, error) {
	header, err := source.Slice(0, HeaderSize)
	if err != nil {
		return nil, ncaerr.Wrap(ncaerr.InvalidFieldRange, "ncz header read", err)
	}
	if err := sink.Write(0, header); err != nil {
		return nil, ncaerr.Wrap(ncaerr.SinkWrite, "ncz header", err)
	}

	cursor := int64(HeaderSize)
	sectionTableHeader, err := source.Slice(cursor, cursor+16)
	if err != nil {
		return nil, ncaerr.Wrap(ncaerr.InvalidFieldRange, "ncz section table", err)
	}
	if string(sectionTableHeader[0:8]) != MagicSection {
		return nil, ncaerr.New(ncaerr.InvalidMagic, "ncz section table")
	}
	sectionCount := binary.LittleEndian.Uint64(sectionTableHeader[8:16])
	cursor += 16

	sections := make([]Section, sectionCount)
	for i := range sections {
		rec, err := source.Slice(cursor, cursor+SectionRecordSize)
		if err != nil {
			return nil, ncaerr.Wrap(ncaerr.InvalidFieldRange, "ncz section record", err)
		}
		sections[i] = Section{
			Offset:     binary.LittleEndian.Uint64(rec[0x00:]),
			Size:       binary.LittleEndian.Uint64(rec[0x08:]),
			CryptoType: binary.LittleEndian.Uint64(rec[0x10:]),
		}
		copy(sections[i].Key[:], rec[0x20:0x30])
		copy(sections[i].Counter[:], rec[0x30:0x40])
		cursor += SectionRecordSize
	}

	peek, err := source.Slice(cursor, cursor+blockHeaderFixedSize)
	if err != nil {
		return nil, ncaerr.Wrap(ncaerr.InvalidFieldRange, "ncz block probe", err)
	}

	if string(peek[0:8]) == MagicBlock {
		return decodeBlockMode(source, sink, sections, peek, cursor)
	}
	return decodeStreamMode(source, sink, sections, cursor)
}

func decodeBlockMode(source bytesource.ByteSource, sink Sink, sections []Section, peek []byte, blockHeaderStart int64) (*Result, error) {
	version := peek[8]
	blockType := peek[9]
	exponent := peek[10]
	blockCount := binary.LittleEndian.Uint32(peek[12:16])
	decompressedSize := binary.LittleEndian.Uint64(peek[16:24])

	if version != 2 || blockType != 1 {
		return nil, ncaerr.New(ncaerr.InvalidFieldRange, "ncz block version/type")
	}
	if exponent < minBlockSizeExponent || exponent > maxBlockSizeExponent {
		return nil, ncaerr.New(ncaerr.InvalidFieldRange, "ncz block size exponent")
	}

	sizeTableStart := blockHeaderStart + blockHeaderFixedSize
	sizeTable, err := source.Slice(sizeTableStart, sizeTableStart+int64(blockCount)*4)
	if err != nil {
		return nil, ncaerr.Wrap(ncaerr.InvalidFieldRange, "ncz block size table", err)
	}
	compressedSizes := make([]uint32, blockCount)
	for i := range compressedSizes {
		compressedSizes[i] = binary.LittleEndian.Uint32(sizeTable[i*4:])
	}

	blockSize := uint64(1) << exponent
	dataStart := sizeTableStart + int64(blockCount)*4

	ncaOffset := uint64(HeaderSize)
	compressedCursor := dataStart
	remaining := decompressedSize

	for i := uint32(0); i < blockCount; i++ {
		expected := blockSize
		if remaining < blockSize {
			expected = remaining
		}

		compressed, err := source.Slice(compressedCursor, compressedCursor+int64(compressedSizes[i]))
		if err != nil {
			return nil, ncaerr.Wrap(ncaerr.InvalidFieldRange, "ncz block data", err)
		}

		var plain []byte
		if uint64(compressedSizes[i]) < expected {
			plain, err = nsazstd.DecodeBlock(compressed, int(expected))
			if err != nil {
				return nil, ncaerr.Wrap(ncaerr.Zstd, "ncz block decompress", err)
			}
		} else {
			plain = make([]byte, len(compressed))
			copy(plain, compressed)
		}

		if err := reencryptChunk(plain, ncaOffset, sections); err != nil {
			return nil, err
		}
		if err := sink.Write(ncaOffset, plain); err != nil {
			return nil, ncaerr.Wrap(ncaerr.SinkWrite, "ncz block emit", err)
		}

		ncaOffset += uint64(len(plain))
		compressedCursor += int64(compressedSizes[i])
		remaining -= expected
	}

	return &Result{
		NcaSize:  HeaderSize + decompressedSize,
		Sections: sections,
		BlockHeader: &BlockHeader{
			Version: version, Type: blockType, BlockSizeExponent: exponent,
			BlockCount: blockCount, DecompressedSize: decompressedSize,
		},
	}, nil
}

func decodeStreamMode(source bytesource.ByteSource, sink Sink, sections []Section, compressedStart int64) (*Result, error) {
	var bodySize uint64
	for _, s := range sections {
		if end := s.Offset + s.Size; end > bodySize {
			bodySize = end
		}
	}
	ncaSize := uint64(HeaderSize) + bodySize

	r := &sourceReader{source: source, pos: compressedStart, end: source.Len()}
	dec, err := nsazstd.NewStreamDecoder(r)
	if err != nil {
		return nil, ncaerr.Wrap(ncaerr.Zstd, "ncz stream init", err)
	}
	defer dec.Close()

	ncaOffset := uint64(HeaderSize)
	buf := make([]byte, 0, streamFlushSize)

	for {
		chunk := make([]byte, streamFlushSize-len(buf))
		n, readErr := dec.Read(chunk)
		buf = append(buf, chunk[:n]...)

		for len(buf) >= streamFlushSize {
			flush := buf[:streamFlushSize]
			if err := emitStreamChunk(flush, &ncaOffset, sections, sink); err != nil {
				return nil, err
			}
			buf = append([]byte{}, buf[streamFlushSize:]...)
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, ncaerr.Wrap(ncaerr.Zstd, "ncz stream decompress", readErr)
		}
	}

	if len(buf) > 0 {
		if err := emitStreamChunk(buf, &ncaOffset, sections, sink); err != nil {
			return nil, err
		}
	}

	return &Result{NcaSize: ncaSize, Sections: sections, BlockHeader: nil}, nil
}

func emitStreamChunk(data []byte, ncaOffset *uint64, sections []Section, sink Sink) error {
	if err := reencryptChunk(data, *ncaOffset, sections); err != nil {
		return err
	}
	if err := sink.Write(*ncaOffset, data); err != nil {
		return ncaerr.Wrap(ncaerr.SinkWrite, "ncz stream emit", err)
	}
	*ncaOffset += uint64(len(data))
	return nil
}

// reencryptChunk re-encrypts data (already plaintext after zstd decode) in
// place at NCA offset ncaOffset. A chunk may span multiple sections; each
// covering sub-range is encrypted with its own section key and CTR built
// from the section counter plus the big-endian block offset
// (spec.md §4.10).
func reencryptChunk(data []byte, ncaOffset uint64, sections []Section) error {
	offset := ncaOffset
	remaining := data

	for len(remaining) > 0 {
		contentOffset := offset - HeaderSize
		sec, ok := findSection(sections, contentOffset)
		if !ok {
			return ncaerr.New(ncaerr.NoSectionForOffset, "ncz reencrypt")
		}

		chunkLen := HeaderSize + sec.Offset + sec.Size - offset
		if chunkLen > uint64(len(remaining)) {
			chunkLen = uint64(len(remaining))
		}

		if sec.CryptoType >= 3 {
			// NewCTRStream overwrites iv[8:16] with big-endian (offset/16)
			// itself; only the section's low counter bytes need supplying.
			iv := make([]byte, 16)
			copy(iv[0:8], sec.Counter[0:8])

			out, err := nsacrypto.CTREncrypt(sec.Key[:], iv, int64(offset), remaining[:chunkLen])
			if err != nil {
				return ncaerr.Wrap(ncaerr.CryptoBackend, "ncz section ctr", err)
			}
			copy(remaining[:chunkLen], out)
		}

		offset += chunkLen
		remaining = remaining[chunkLen:]
	}

	return nil
}

func findSection(sections []Section, offset uint64) (Section, bool) {
	for _, s := range sections {
		if s.contains(offset) {
			return s, true
		}
	}
	return Section{}, false
}

// sourceReader bridges a ByteSource's random-access Slice into an io.Reader
// for the streaming zstd decoder.
type sourceReader struct {
	source bytesource.ByteSource
	pos    int64
	end    int64
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if r.pos >= r.end {
		return 0, io.EOF
	}
	readEnd := r.pos + int64(len(p))
	if readEnd > r.end {
		readEnd = r.end
	}
	chunk, err := r.source.Slice(r.pos, readEnd)
	if err != nil {
		return 0, err
	}
	n := copy(p, chunk)
	r.pos += int64(n)
	return n, nil
}
