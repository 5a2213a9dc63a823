package nca

import (
	"encoding/binary"
	"io"

	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/falk/nca-forge/pkg/ncaerr"
)

// Info is a read-only view over an already-built NCA: the fields an
// inspector needs without re-running the construction pipeline
// (spec.md §9 "inspection tooling will need the XTS decrypt path").
type Info struct {
	ContentType   ContentType
	KeyGeneration byte
	TitleID       uint64
	ContentSize   uint64
	SdkVersion    uint32
	FsHeaders     [maxSections]FsHeaderInfo
}

// FsHeaderInfo is one section's decoded fsHeader.
type FsHeaderInfo struct {
	Present       bool
	FsType        byte
	HashType      byte
	CryptType     byte
	SectionCtr    uint32
	BktrRelocation *BktrHeader
	BktrSubsection *BktrHeader
}

// BktrHeader mirrors a BKTR relocation/subsection descriptor embedded in a
// patch NCA's fsHeader (offsets 0x100-0x120 and 0x120-0x140).
type BktrHeader struct {
	Offset     uint64
	Size       uint64
	Magic      [4]byte
	Version    uint32
	EntryCount uint32
}

// Inspect decrypts r's header with headerKey (AES-128-XTS) and parses the
// main header fields plus all four fsHeader slots. It never touches section
// bodies — decoding already-encrypted NCA content stays out of scope; only
// the header is decrypted here.
func Inspect(r io.ReaderAt, headerKey []byte) (*Info, error) {
	encrypted := make([]byte, HeaderStructSize)
	if _, err := r.ReadAt(encrypted, 0); err != nil {
		return nil, err
	}

	decrypted, err := nsacrypto.XTSDecrypt(encrypted, headerKey, MediaSize, 0)
	if err != nil {
		return nil, ncaerr.Wrap(ncaerr.CryptoBackend, "nca header decrypt", err)
	}

	main := decrypted[0x200:]
	if string(main[0x00:0x04]) != Magic {
		return nil, ncaerr.New(ncaerr.InvalidMagic, "nca header")
	}

	info := &Info{
		ContentType:   ContentType(main[0x05]),
		KeyGeneration: main[0x06],
		ContentSize:   binary.LittleEndian.Uint64(main[0x08:]),
		TitleID:       binary.LittleEndian.Uint64(main[0x10:]),
		SdkVersion:    binary.LittleEndian.Uint32(main[0x1C:]),
	}

	for i := 0; i < maxSections; i++ {
		fsHeader := decrypted[0x400+i*0x200 : 0x400+i*0x200+0x200]
		cryptType := fsHeader[0x04]
		if cryptType == 0 {
			continue
		}
		fi := FsHeaderInfo{
			Present:    true,
			FsType:     fsHeader[0x02],
			HashType:   fsHeader[0x03],
			CryptType:  cryptType,
			SectionCtr: binary.LittleEndian.Uint32(fsHeader[0x140:]),
		}
		if cryptType == 4 { // BKTR
			fi.BktrRelocation = parseBktrHeader(fsHeader[0x100:0x120])
			fi.BktrSubsection = parseBktrHeader(fsHeader[0x120:0x140])
		}
		info.FsHeaders[i] = fi
	}

	return info, nil
}

func parseBktrHeader(data []byte) *BktrHeader {
	if len(data) < 32 {
		return nil
	}
	h := &BktrHeader{
		Offset:     binary.LittleEndian.Uint64(data[0:8]),
		Size:       binary.LittleEndian.Uint64(data[8:16]),
		Version:    binary.LittleEndian.Uint32(data[20:24]),
		EntryCount: binary.LittleEndian.Uint32(data[24:28]),
	}
	copy(h.Magic[:], data[16:20])
	return h
}
