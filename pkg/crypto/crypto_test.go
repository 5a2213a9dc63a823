package crypto

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestECBRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	plain := make([]byte, 48)
	for i := range plain {
		plain[i] = byte(i * 3)
	}

	enc, err := ECBEncrypt(plain, key)
	require.NoError(t, err)
	require.NotEqual(t, plain, enc)

	dec, err := ECBDecrypt(enc, key)
	require.NoError(t, err)
	require.Equal(t, plain, dec)
}

func TestECBRejectsUnalignedData(t *testing.T) {
	key := make([]byte, 16)
	_, err := ECBEncrypt(make([]byte, 17), key)
	require.Error(t, err)
}

func TestCTRRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 8)
	for i := range key {
		key[i] = byte(i + 1)
	}
	plain := []byte("a message spanning more than one 16-byte block")

	enc, err := CTREncrypt(key, iv, 0x4000, plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, enc)

	dec, err := CTRDecrypt(key, iv, 0x4000, enc)
	require.NoError(t, err)
	require.Equal(t, plain, dec)
}

func TestCTRDifferentOffsetsDifferentKeystream(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 8)
	plain := make([]byte, 16)

	a, err := CTREncrypt(key, iv, 0, plain)
	require.NoError(t, err)
	b, err := CTREncrypt(key, iv, 16, plain)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDoublingZeroMSBShiftsLeft(t *testing.T) {
	tweak := make([]byte, 16)
	tweak[0] = 0x01
	mul2(tweak)
	want := make([]byte, 16)
	want[0] = 0x02
	require.Equal(t, want, tweak)
}

func TestDoublingCarryOutFoldsReductionPolynomial(t *testing.T) {
	tweak := make([]byte, 16)
	tweak[15] = 0x80
	mul2(tweak)
	want := make([]byte, 16)
	want[0] = 0x87
	require.Equal(t, want, tweak)
}

func TestXTSRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 5)
	}
	const sectorSize = 0x200
	plain := make([]byte, sectorSize*3)
	for i := range plain {
		plain[i] = byte(i)
	}

	enc, err := XTSEncrypt(plain, key, sectorSize, 0)
	require.NoError(t, err)
	require.NotEqual(t, plain, enc)

	dec, err := XTSDecrypt(enc, key, sectorSize, 0)
	require.NoError(t, err)
	require.Equal(t, plain, dec)
}

func TestXTSRejectsShortKey(t *testing.T) {
	_, err := XTSEncrypt(make([]byte, 0x200), make([]byte, 16), 0x200, 0)
	require.Error(t, err)
}

func TestXTSRejectsMisalignedData(t *testing.T) {
	_, err := XTSEncrypt(make([]byte, 0x201), make([]byte, 32), 0x200, 0)
	require.Error(t, err)
}

func TestDefaultBackendDelegatesToPackageFunctions(t *testing.T) {
	var b DefaultBackend
	key := make([]byte, 16)
	data := make([]byte, 16)

	direct, err := ECBEncrypt(data, key)
	require.NoError(t, err)
	viaBackend, err := b.AesEcbEncrypt(key, data)
	require.NoError(t, err)
	require.Equal(t, direct, viaBackend)

	require.Equal(t, SHA256(data), b.Sha256(data))
}

func TestRSAPssSignIsVerifiableAgainstPublicModulus(t *testing.T) {
	ResetSigningKeyForTest()
	data := []byte("signed header region")
	sig, err := RSAPssSign(data)
	require.NoError(t, err)
	require.Len(t, sig, 256)

	modulus, err := PublicModulus()
	require.NoError(t, err)
	require.Len(t, modulus, 256)

	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: 65537}
	digest := sha256.Sum256(data)
	require.NoError(t, rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: 32,
		Hash:       crypto.SHA256,
	}))
}
