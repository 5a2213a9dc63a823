// Package ivfc builds the Integrity Verification File Collection: a
// six-level SHA-256 Merkle tree over 0x4000-byte blocks, used as the RomFS
// section superblock inside an NCA (spec.md §4.5).
package ivfc

import (
	"encoding/binary"

	"github.com/falk/nca-forge/pkg/ncaerr"
	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"golang.org/x/sync/errgroup"
)

const (
	Magic        = "IVFC"
	id           = 0x20000
	masterHashSz = 0x20
	numLevels    = 7
	HeaderSize   = 0xE0
	blockSize    = 0x4000
	blockSizeLog2 = 0x0E

	maxParallelHashes = 8
)

// Levels holds the finished tree: the 0xE0 header plus levels 1..5 (level 6
// is the caller's original data, kept only by reference for length
// accounting; level 7 doesn't exist separately — "six hash levels...level 6
// = data itself" per spec.md §4.5).
type Levels struct {
	Header     [HeaderSize]byte
	Level1     []byte
	Level2     []byte
	Level3     []byte
	Level4     []byte
	Level5     []byte
	DataLength uint64
}

// Build hashes data (already aligned to 0x4000 by the caller) bottom-up into
// five SHA-256 hash levels and assembles the IVFC header.
func Build(data []byte) (*Levels, error) {
	if len(data)%blockSize != 0 {
		return nil, ncaerr.New(ncaerr.Misaligned, "ivfc input")
	}

	level5, err := hashLevel(data)
	if err != nil {
		return nil, err
	}
	level4, err := hashLevel(padTo(level5, blockSize))
	if err != nil {
		return nil, err
	}
	level3, err := hashLevel(padTo(level4, blockSize))
	if err != nil {
		return nil, err
	}
	level2, err := hashLevel(padTo(level3, blockSize))
	if err != nil {
		return nil, err
	}
	level1, err := hashLevel(padTo(level2, blockSize))
	if err != nil {
		return nil, err
	}

	masterHash := nsacrypto.SHA256(padTo(level1, blockSize))

	lv := &Levels{
		Level1:     level1,
		Level2:     level2,
		Level3:     level3,
		Level4:     level4,
		Level5:     level5,
		DataLength: uint64(len(data)),
	}
	writeHeader(lv, masterHash)
	return lv, nil
}

// hashLevel produces SHA-256(block) for each 0x4000-byte block of data,
// parallelized across an errgroup the way pkg/pfs0's hash table is.
func hashLevel(data []byte) ([]byte, error) {
	numBlocks := (len(data) + blockSize - 1) / blockSize
	if numBlocks == 0 {
		numBlocks = 1
		data = padTo(data, blockSize)
	}
	out := make([]byte, numBlocks*32)

	var g errgroup.Group
	g.SetLimit(maxParallelHashes)
	for i := 0; i < numBlocks; i++ {
		i := i
		g.Go(func() error {
			start := i * blockSize
			end := start + blockSize
			var block []byte
			if end <= len(data) {
				block = data[start:end]
			} else {
				block = padTo(data[start:], blockSize)
			}
			h := nsacrypto.SHA256(block)
			copy(out[i*32:], h[:])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ncaerr.Wrap(ncaerr.CryptoBackend, "ivfc level hash", err)
	}
	return out, nil
}

func padTo(data []byte, align int) []byte {
	if len(data)%align == 0 {
		return data
	}
	padded := make([]byte, (len(data)/align+1)*align)
	copy(padded, data)
	return padded
}

func writeHeader(lv *Levels, masterHash [32]byte) {
	buf := lv.Header[:]
	copy(buf[0x00:0x04], Magic)
	binary.LittleEndian.PutUint32(buf[0x04:], id)
	binary.LittleEndian.PutUint32(buf[0x08:], masterHashSz)
	binary.LittleEndian.PutUint32(buf[0x0C:], numLevels)

	levelSizes := []uint64{
		uint64(len(lv.Level1)), uint64(len(lv.Level2)), uint64(len(lv.Level3)),
		uint64(len(lv.Level4)), uint64(len(lv.Level5)), lv.DataLength,
	}

	var logicalOffset uint64
	for i, sz := range levelSizes {
		desc := buf[0x10+i*0x18:]
		binary.LittleEndian.PutUint64(desc[0x00:], logicalOffset)
		if i == len(levelSizes)-1 {
			binary.LittleEndian.PutUint64(desc[0x08:], lv.DataLength)
		} else {
			binary.LittleEndian.PutUint64(desc[0x08:], padSize(sz, blockSize))
		}
		binary.LittleEndian.PutUint32(desc[0x10:], blockSizeLog2)
		binary.LittleEndian.PutUint32(desc[0x14:], 0)
		logicalOffset += padSize(sz, blockSize)
	}

	copy(buf[0xC0:], masterHash[:])
}

func padSize(sz uint64, align uint64) uint64 {
	if sz%align == 0 {
		return sz
	}
	return sz + (align - sz%align)
}
