package nca

import (
	"encoding/binary"

	"github.com/falk/nca-forge/pkg/ivfc"
	"github.com/falk/nca-forge/pkg/ncaerr"
	"github.com/falk/nca-forge/pkg/pfs0"
	"github.com/falk/nca-forge/pkg/romfs"
)

const (
	FsTypeRomFS = 0
	FsTypePFS0  = 1

	HashTypePFS0  = 2
	HashTypeIVFC  = 3

	CryptTypeNone = 1
	CryptTypeCTR  = 3

	superblockSize = 0x1F8
)

// Section is one finished NCA section body plus its fsHeader fields,
// ready to be packed into an envelope by Assemble.
type Section struct {
	Data       []byte
	FsType     byte
	HashType   byte
	CryptType  byte
	Superblock [superblockSize]byte
}

// BuildPFS0Section composes a PFS0 section: a SHA-256 hash table over
// blockSize-aligned blocks followed by the PFS0 archive itself
// (spec.md §4.8).
func BuildPFS0Section(files []pfs0.InputFile, blockSize int, cryptType byte) (*Section, error) {
	raw := pfs0.Build(files)

	ht, err := pfs0.BuildHashTable(raw, blockSize)
	if err != nil {
		return nil, ncaerr.Wrap(ncaerr.CryptoBackend, "pfs0 section hash table", err)
	}
	masterHash := pfs0.MasterHash(ht.Table)

	data := make([]byte, 0, len(ht.Padded)+len(raw))
	data = append(data, ht.Padded...)
	data = append(data, raw...)

	sec := &Section{Data: data, FsType: FsTypePFS0, HashType: HashTypePFS0, CryptType: cryptType}
	sb := sec.Superblock[:]
	copy(sb[0x00:0x20], masterHash[:])
	binary.LittleEndian.PutUint32(sb[0x20:], uint32(blockSize))
	binary.LittleEndian.PutUint32(sb[0x24:], 2)
	binary.LittleEndian.PutUint64(sb[0x28:], 0)
	binary.LittleEndian.PutUint64(sb[0x30:], uint64(len(ht.Table)))
	binary.LittleEndian.PutUint64(sb[0x38:], uint64(len(ht.Padded)))
	binary.LittleEndian.PutUint64(sb[0x40:], uint64(len(raw)))

	return sec, nil
}

// BuildRomFSSection composes a RomFS section: the IVFC hash levels followed
// by the RomFS image itself, padded to 0x4000 before hashing
// (spec.md §4.4, §4.5, §4.8).
func BuildRomFSSection(root *romfs.Entry) (*Section, error) {
	image, err := romfs.Encode(root)
	if err != nil {
		return nil, err
	}
	padded := padTo(image, 0x4000)

	levels, err := ivfc.Build(padded)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(levels.Level1)+len(levels.Level2)+len(levels.Level3)+len(levels.Level4)+len(levels.Level5)+len(padded))
	data = append(data, levels.Level1...)
	data = append(data, levels.Level2...)
	data = append(data, levels.Level3...)
	data = append(data, levels.Level4...)
	data = append(data, levels.Level5...)
	data = append(data, padded...)

	sec := &Section{Data: data, FsType: FsTypeRomFS, HashType: HashTypeIVFC, CryptType: CryptTypeCTR}
	copy(sec.Superblock[:ivfc.HeaderSize], levels.Header[:])

	return sec, nil
}

func padTo(data []byte, align int) []byte {
	if len(data)%align == 0 {
		return data
	}
	padded := make([]byte, (len(data)/align+1)*align)
	copy(padded, data)
	return padded
}
