package crypto

import "github.com/falk/nca-forge/pkg/ncaerr"

// Backend is the narrow set of crypto primitives the rest of this module
// depends on (spec.md §9 "Backend injection"). The default backend wires
// these to the functions in this package. No pipeline in this module takes
// a Backend: pkg/keys, pkg/nca, pkg/ncz and pkg/nsp call this package's
// functions directly, so another implementation cannot be substituted
// into them.
type Backend interface {
	AesEcbEncrypt(key, data []byte) ([]byte, error)
	AesEcbDecrypt(key, data []byte) ([]byte, error)
	AesCtr(key, iv []byte, absoluteOffset int64, data []byte) ([]byte, error)
	AesXtsEncrypt(key, data []byte, sectorSize int, startSector uint64) ([]byte, error)
	AesXtsDecrypt(key, data []byte, sectorSize int, startSector uint64) ([]byte, error)
	Sha256(data []byte) [32]byte
	RsaPssSign(data []byte) ([]byte, error)
}

// DefaultBackend wires Backend to this package's own primitives.
type DefaultBackend struct{}

func (DefaultBackend) AesEcbEncrypt(key, data []byte) ([]byte, error) { return ECBEncrypt(data, key) }
func (DefaultBackend) AesEcbDecrypt(key, data []byte) ([]byte, error) { return ECBDecrypt(data, key) }

func (DefaultBackend) AesCtr(key, iv []byte, absoluteOffset int64, data []byte) ([]byte, error) {
	return CTREncrypt(key, iv, absoluteOffset, data)
}

func (DefaultBackend) AesXtsEncrypt(key, data []byte, sectorSize int, startSector uint64) ([]byte, error) {
	return XTSEncrypt(data, key, sectorSize, startSector)
}

func (DefaultBackend) AesXtsDecrypt(key, data []byte, sectorSize int, startSector uint64) ([]byte, error) {
	return XTSDecrypt(data, key, sectorSize, startSector)
}

func (DefaultBackend) Sha256(data []byte) [32]byte { return SHA256(data) }

func (DefaultBackend) RsaPssSign(data []byte) ([]byte, error) { return RSAPssSign(data) }

// WrapBackendError tags an underlying primitive failure with the operation
// that failed, for the CryptoBackend error kind (spec.md §7).
func WrapBackendError(operation string, err error) error {
	return ncaerr.Wrap(ncaerr.CryptoBackend, operation, err)
}
