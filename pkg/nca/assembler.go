// Package nca assembles encrypted, signed NCA envelopes from prebuilt
// section bodies: header fields, section hashes, RSA signature, key-area
// encryption, per-section AES-CTR, and the final AES-128-XTS header seal
// (spec.md §4.8).
package nca

import (
	"encoding/binary"

	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/falk/nca-forge/pkg/keys"
	"github.com/falk/nca-forge/pkg/ncaerr"
)

// AssembleOptions carries everything needed to build one NCA envelope.
type AssembleOptions struct {
	KeySet        *keys.KeySet
	KeyGeneration uint8 // default 1
	KeyAreaKey    [16]byte
	TitleID       uint64
	SdkVersion    uint32
	ContentType   ContentType
	Sections      []*Section // up to 4, in header-slot order
	Sign          bool
	Plaintext     bool
}

// Result is a finished, encrypted NCA plus its derived identity.
type Result struct {
	Bytes []byte
	ID    string // lower-hex of the first 16 bytes of SHA-256(Bytes)
}

// Assemble runs the full NCA construction pipeline (spec.md §4.8, steps
// 1-11) in strict order: section layout, header fields, fsHeader writes,
// section hashes, key-area placement, signature, section CTR encryption,
// key-area wrap, and the header XTS seal.
func Assemble(opts AssembleOptions) (*Result, error) {
	if len(opts.Sections) == 0 || len(opts.Sections) > maxSections {
		return nil, ncaerr.New(ncaerr.InvalidFieldRange, "nca section count")
	}
	keyGen := opts.KeyGeneration
	if keyGen == 0 {
		keyGen = 1
	}

	// Step 1: section offsets.
	paddedSizes := make([]int, len(opts.Sections))
	offsets := make([]int, len(opts.Sections))
	cursor := HeaderStructSize
	for i, sec := range opts.Sections {
		offsets[i] = cursor
		paddedSizes[i] = mediaPad(len(sec.Data))
		cursor += paddedSizes[i]
	}
	total := cursor

	envelope := make([]byte, total)

	// Step 2: write section bodies.
	for i, sec := range opts.Sections {
		copy(envelope[offsets[i]:], sec.Data)
	}

	// Step 3: header fields.
	header := envelope[0x200:HeaderStructSize]
	copy(header[0x00:0x04], Magic)
	header[0x04] = 0 // distribution
	header[0x05] = byte(opts.ContentType)
	cryptoType := byte(2)
	if keyGen == 1 {
		cryptoType = 0
	}
	header[0x06] = cryptoType
	header[0x07] = 0 // kaek_index
	binary.LittleEndian.PutUint64(header[0x08:], uint64(total))
	binary.LittleEndian.PutUint64(header[0x10:], opts.TitleID)
	binary.LittleEndian.PutUint32(header[0x1C:], opts.SdkVersion)

	cryptoType2 := byte(0)
	if keyGen > 2 {
		cryptoType2 = keyGen
	}
	header[0x20] = cryptoType2

	for i := range opts.Sections {
		entry := header[0x40+i*0x10:]
		binary.LittleEndian.PutUint32(entry[0x00:], uint32(offsets[i]/MediaSize))
		binary.LittleEndian.PutUint32(entry[0x04:], uint32((offsets[i]+paddedSizes[i])/MediaSize))
		binary.LittleEndian.PutUint32(entry[0x08:], 1)
		binary.LittleEndian.PutUint32(entry[0x0C:], 0)
	}

	// Step 4: fsHeaders.
	for i, sec := range opts.Sections {
		fsHeader := envelope[0x400+i*0x200 : 0x400+i*0x200+0x200]
		binary.LittleEndian.PutUint16(fsHeader[0x00:], 2) // version
		fsHeader[0x02] = sec.FsType
		fsHeader[0x03] = sec.HashType
		fsHeader[0x04] = sec.CryptType
		copy(fsHeader[0x08:0x08+len(sec.Superblock)], sec.Superblock[:])
		binary.LittleEndian.PutUint32(fsHeader[0x140:], uint32(i))
	}

	// Step 5: section hashes.
	for i := range opts.Sections {
		fsHeader := envelope[0x400+i*0x200 : 0x400+i*0x200+0x200]
		h := nsacrypto.SHA256(fsHeader)
		copy(envelope[0x280+i*0x20:], h[:])
	}

	// Step 6: plaintext key-area-key into slot 2.
	copy(envelope[0x320:0x330], opts.KeyAreaKey[:])

	// Step 7: signature over the signed header region.
	if opts.Sign {
		sig, err := nsacrypto.RSAPssSign(envelope[0x200:0x400])
		if err != nil {
			return nil, ncaerr.Wrap(ncaerr.CryptoBackend, "nca signature", err)
		}
		copy(envelope[0x100:0x200], sig)
	}

	// Step 8: per-section CTR encryption.
	if !opts.Plaintext {
		for i, sec := range opts.Sections {
			if sec.CryptType != CryptTypeCTR {
				continue
			}
			start := offsets[i]
			end := start + paddedSizes[i]
			sectionCtr := make([]byte, 4)
			binary.LittleEndian.PutUint32(sectionCtr, uint32(i))
			if err := ctrEncryptRegion(envelope, start, end, opts.KeyAreaKey[:], sectionCtr); err != nil {
				return nil, err
			}
		}
	}

	// Step 9: wrap the key area.
	if opts.KeySet != nil && keyGen >= 1 && int(keyGen)-1 < 32 {
		kak := opts.KeySet.KeyAreaKeys[keyGen-1][0]
		wrapped, err := nsacrypto.ECBEncrypt(envelope[0x300:0x340], kak[:])
		if err != nil {
			return nil, ncaerr.Wrap(ncaerr.CryptoBackend, "nca key area wrap", err)
		}
		copy(envelope[0x300:0x340], wrapped)
	}

	// Step 10: XTS-seal the header.
	var headerKey []byte
	if opts.KeySet != nil {
		headerKey = opts.KeySet.HeaderKey[:]
	}
	if len(headerKey) == 32 {
		sealed, err := nsacrypto.XTSEncrypt(envelope[0:HeaderStructSize], headerKey, MediaSize, 0)
		if err != nil {
			return nil, ncaerr.Wrap(ncaerr.CryptoBackend, "nca header seal", err)
		}
		copy(envelope[0:HeaderStructSize], sealed)
	}

	// Step 11: identity.
	hash := nsacrypto.SHA256(envelope)
	return &Result{Bytes: envelope, ID: hexLower(hash[:16])}, nil
}

// ctrEncryptRegion builds the Nintendo NCA section CTR (reversed section
// counter bytes ‖ big-endian block offset) and encrypts envelope[start:end]
// in place.
func ctrEncryptRegion(envelope []byte, start, end int, key, sectionCtr []byte) error {
	iv := make([]byte, 16)
	for i := 0; i < 4; i++ {
		iv[3-i] = sectionCtr[i]
	}
	out, err := nsacrypto.CTREncrypt(key, iv, int64(start), envelope[start:end])
	if err != nil {
		return ncaerr.Wrap(ncaerr.CryptoBackend, "nca section ctr", err)
	}
	copy(envelope[start:end], out)
	return nil
}

func hexLower(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0xF]
	}
	return string(out)
}
