package ncz

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/falk/nca-forge/pkg/bytesource"
	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

type bufSink struct {
	mu   sync.Mutex
	data map[uint64][]byte
}

func newBufSink() *bufSink { return &bufSink{data: make(map[uint64][]byte)} }

func (s *bufSink) Write(offset uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[offset] = cp
	return nil
}

func (s *bufSink) flatten(size int) []byte {
	out := make([]byte, size)
	for off, chunk := range s.data {
		copy(out[off:], chunk)
	}
	return out
}

func buildStreamModeNcz(t *testing.T, key, counter [16]byte, plainSize int) []byte {
	t.Helper()

	buf := make([]byte, HeaderSize)

	sectionTable := make([]byte, 16+SectionRecordSize)
	copy(sectionTable[0:8], MagicSection)
	binary.LittleEndian.PutUint64(sectionTable[8:16], 1)
	rec := sectionTable[16:]
	binary.LittleEndian.PutUint64(rec[0x00:], 0)
	binary.LittleEndian.PutUint64(rec[0x08:], uint64(plainSize))
	binary.LittleEndian.PutUint64(rec[0x10:], 3)
	copy(rec[0x20:0x30], key[:])
	copy(rec[0x30:0x40], counter[:])
	buf = append(buf, sectionTable...)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(make([]byte, plainSize), nil)
	require.NoError(t, enc.Close())

	buf = append(buf, compressed...)
	return buf
}

func TestDecodeStreamModeReencryptsZeros(t *testing.T) {
	var key, counter [16]byte
	for i := 0; i < 16; i++ {
		key[i] = byte(i)
		counter[i] = byte(i)
	}
	const plainSize = 0x10000

	nczBytes := buildStreamModeNcz(t, key, counter, plainSize)
	source := bytesource.FromBytes(nczBytes)
	sink := newBufSink()

	result, err := Decode(source, sink)
	require.NoError(t, err)
	require.Equal(t, uint64(HeaderSize+plainSize), result.NcaSize)
	require.Nil(t, result.BlockHeader)

	got := sink.flatten(HeaderSize + plainSize)[HeaderSize:]

	want, err := nsacrypto.CTREncrypt(key[:], counter[:8], HeaderSize, make([]byte, plainSize))
	require.NoError(t, err)

	require.Equal(t, want, got)
}

func buildBlockModeNcz(t *testing.T, key, counter [16]byte, plainSize int) []byte {
	t.Helper()

	buf := make([]byte, HeaderSize)

	sectionTable := make([]byte, 16+SectionRecordSize)
	copy(sectionTable[0:8], MagicSection)
	binary.LittleEndian.PutUint64(sectionTable[8:16], 1)
	rec := sectionTable[16:]
	binary.LittleEndian.PutUint64(rec[0x00:], 0)
	binary.LittleEndian.PutUint64(rec[0x08:], uint64(plainSize))
	binary.LittleEndian.PutUint64(rec[0x10:], 3)
	copy(rec[0x20:0x30], key[:])
	copy(rec[0x30:0x40], counter[:])
	buf = append(buf, sectionTable...)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(make([]byte, plainSize), nil)
	require.NoError(t, enc.Close())

	blockHeader := make([]byte, blockHeaderFixedSize)
	copy(blockHeader[0:8], MagicBlock)
	blockHeader[8] = 2  // version
	blockHeader[9] = 1  // type
	blockHeader[10] = minBlockSizeExponent
	binary.LittleEndian.PutUint32(blockHeader[12:16], 1) // blockCount
	binary.LittleEndian.PutUint64(blockHeader[16:24], uint64(plainSize))
	buf = append(buf, blockHeader...)

	sizeTable := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeTable, uint32(len(compressed)))
	buf = append(buf, sizeTable...)

	buf = append(buf, compressed...)
	return buf
}

func TestDecodeBlockModeReencryptsZeros(t *testing.T) {
	var key, counter [16]byte
	for i := 0; i < 16; i++ {
		key[i] = byte(i + 1)
		counter[i] = byte(i + 2)
	}
	const plainSize = 1 << minBlockSizeExponent

	nczBytes := buildBlockModeNcz(t, key, counter, plainSize)
	source := bytesource.FromBytes(nczBytes)
	sink := newBufSink()

	result, err := Decode(source, sink)
	require.NoError(t, err)
	require.Equal(t, uint64(HeaderSize+plainSize), result.NcaSize)
	require.NotNil(t, result.BlockHeader)
	require.Equal(t, uint32(1), result.BlockHeader.BlockCount)
	require.Equal(t, byte(minBlockSizeExponent), result.BlockHeader.BlockSizeExponent)

	got := sink.flatten(HeaderSize + plainSize)[HeaderSize:]

	want, err := nsacrypto.CTREncrypt(key[:], counter[:8], HeaderSize, make([]byte, plainSize))
	require.NoError(t, err)

	require.Equal(t, want, got)
}

func TestDecodeRejectsBadSectionMagic(t *testing.T) {
	buf := make([]byte, HeaderSize+32)
	copy(buf[HeaderSize:], "BADMAGIC")
	_, err := Decode(bytesource.FromBytes(buf), newBufSink())
	require.Error(t, err)
}
