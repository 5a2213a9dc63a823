package crypto

import "crypto/sha256"

// SHA256 hashes bytes and returns the 32-byte digest.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// SHA256Slice is a convenience for call sites that want a []byte rather
// than a fixed array (e.g. to copy straight into a header field).
func SHA256Slice(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
