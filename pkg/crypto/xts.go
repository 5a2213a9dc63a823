package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// XTSEncrypt and XTSDecrypt implement AES-128-XTS with the Nintendo tweak
// variant: the sector number is encoded big-endian into a 16-byte tweak
// value (byte 15 is the LSB) before being run through AES-ECB(K2, ...),
// rather than the little-endian tweak the XTS standard otherwise uses.
//
// key must be 32 bytes: the first 16 are K1 (data cipher), the last 16 are
// K2 (tweak cipher). data must be a multiple of sectorSize, and sectorSize
// must itself be a multiple of 16.

func XTSEncrypt(data, key []byte, sectorSize int, startSector uint64) ([]byte, error) {
	return xtsTransform(data, key, sectorSize, startSector, true)
}

func XTSDecrypt(data, key []byte, sectorSize int, startSector uint64) ([]byte, error) {
	return xtsTransform(data, key, sectorSize, startSector, false)
}

func xtsTransform(data, key []byte, sectorSize int, startSector uint64, encrypt bool) ([]byte, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("XTS key must be 32 bytes (2x16) for AES-128")
	}
	if sectorSize <= 0 || sectorSize%16 != 0 {
		return nil, fmt.Errorf("XTS sectorSize must be a positive multiple of 16, got %d", sectorSize)
	}
	if len(data)%sectorSize != 0 {
		return nil, fmt.Errorf("XTS data length %d is not a multiple of sectorSize %d", len(data), sectorSize)
	}

	c1, err := aes.NewCipher(key[:16]) // K1: data cipher
	if err != nil {
		return nil, err
	}
	c2, err := aes.NewCipher(key[16:]) // K2: tweak cipher
	if err != nil {
		return nil, err
	}

	numSectors := len(data) / sectorSize
	out := make([]byte, len(data))

	// Each sector's tweak evolves independently of every other sector, so
	// sectors can be processed concurrently (spec: tweak state is
	// per-sector-independent; only the block order within a sector matters).
	g := new(errgroup.Group)
	g.SetLimit(sectorLimit())
	for s := 0; s < numSectors; s++ {
		s := s
		g.Go(func() error {
			xtsSector(c1, c2, data[s*sectorSize:(s+1)*sectorSize], out[s*sectorSize:(s+1)*sectorSize], startSector+uint64(s), encrypt)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func sectorLimit() int {
	// Bounded fan-out: XTS sectors are tiny (16-byte-block loops), so this
	// caps goroutine overhead rather than CPU saturation.
	return 8
}

func xtsSector(c1, c2 cipher.Block, in, out []byte, sector uint64, encrypt bool) {
	tweak := make([]byte, 16)
	binary.BigEndian.PutUint64(tweak[8:], sector)

	tweakEnc := make([]byte, 16)
	c2.Encrypt(tweakEnc, tweak)
	tweak = tweakEnc

	buf := make([]byte, 16)
	block := make([]byte, 16)

	for i := 0; i < len(in); i += 16 {
		chunk := in[i : i+16]

		xor(buf, chunk, tweak)
		if encrypt {
			c1.Encrypt(block, buf)
		} else {
			c1.Decrypt(block, buf)
		}
		xor(out[i:i+16], block, tweak)

		mul2(tweak)
	}
}

func xor(dst, a, b []byte) {
	for i := 0; i < 16; i++ {
		dst[i] = a[i] ^ b[i]
	}
}

// mul2 doubles a 16-byte tweak in GF(2^128) (polynomial
// x^128 + x^7 + x^2 + x + 1, standard AES-XTS convention: index 0 is the
// least significant byte), with 0x87 folded into byte 0 on carry-out from
// byte 15.
func mul2(tweak []byte) {
	var carry byte
	for i := 0; i < 16; i++ {
		b := tweak[i]
		nextCarry := b >> 7
		tweak[i] = (b << 1) | carry
		carry = nextCarry
	}
	if carry != 0 {
		tweak[0] ^= 0x87
	}
}
