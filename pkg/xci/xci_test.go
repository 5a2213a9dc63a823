package xci

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/falk/nca-forge/pkg/hfs0"
	"github.com/stretchr/testify/require"
)

func buildHfs0Bytes(names []string, datas [][]byte) []byte {
	stringTable := make([]byte, 0)
	nameOffsets := make([]uint32, len(names))
	for i, n := range names {
		nameOffsets[i] = uint32(len(stringTable))
		stringTable = append(stringTable, []byte(n)...)
		stringTable = append(stringTable, 0)
	}

	entries := make([]hfs0.FileEntry, len(names))
	var dataOffset uint64
	for i, d := range datas {
		entries[i] = hfs0.FileEntry{
			DataOffset: dataOffset,
			DataSize:   uint64(len(d)),
			NameOffset: nameOffsets[i],
		}
		dataOffset += uint64(len(d))
	}

	header := hfs0.Header{NumFiles: uint32(len(names)), StringTableSize: uint32(len(stringTable))}
	copy(header.Magic[:], hfs0.Magic)

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, header)
	_ = binary.Write(&buf, binary.LittleEndian, entries)
	buf.Write(stringTable)
	for _, d := range datas {
		buf.Write(d)
	}
	return buf.Bytes()
}

func buildXciImage() []byte {
	secureHfs0 := buildHfs0Bytes([]string{"program.nca"}, [][]byte{[]byte("fake nca body")})
	rootHfs0 := buildHfs0Bytes([]string{secureEntryName}, [][]byte{secureHfs0})

	image := make([]byte, primaryHfs0Offset+len(rootHfs0))
	copy(image[magicOffset:magicOffset+4], Magic)
	copy(image[primaryHfs0Offset:], rootHfs0)
	return image
}

func TestOpenParsesSecurePartition(t *testing.T) {
	image := buildXciImage()

	img, err := Open(bytes.NewReader(image))
	require.NoError(t, err)
	require.Contains(t, img.RootPartitions, secureEntryName)
	require.Len(t, img.Secure, 1)
	require.Equal(t, "program.nca", img.Secure[0].Name)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	image := make([]byte, 0x200)
	_, err := Open(bytes.NewReader(image))
	require.Error(t, err)
}
