package keys

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/stretchr/testify/require"
)

func fixedBytes(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}

func TestDeriveEmptyKeyfileLeavesEverythingAbsent(t *testing.T) {
	ks, err := Derive("")
	require.NoError(t, err)
	require.False(t, ks.HasKeyAreaKey(0, 0))
	require.Equal(t, [32]byte{}, ks.HeaderKey)
}

func TestDeriveFullGeneration0Chain(t *testing.T) {
	secureBootKey := fixedBytes(16, 0x10)
	tsecKey := fixedBytes(16, 0x20)
	keyblobKeySource := fixedBytes(16, 0x30)
	keyblobMacKeySource := fixedBytes(16, 0x40)
	masterKeySource := fixedBytes(16, 0x50)
	aesKekGenSource := fixedBytes(16, 0x60)
	aesKeyGenSource := fixedBytes(16, 0x70)
	kakAppSource := fixedBytes(16, 0x80)
	titleKekSource := fixedBytes(16, 0x90)
	headerKekSource := fixedBytes(16, 0xA0)
	headerKeySource := fixedBytes(32, 0xB0)

	// Independently compute keyblobKey the same way deriveKeyblobs does.
	inner, err := nsacrypto.ECBDecrypt(keyblobKeySource, tsecKey)
	require.NoError(t, err)
	keyblobKey, err := nsacrypto.ECBDecrypt(inner, secureBootKey)
	require.NoError(t, err)

	wantMacKey, err := nsacrypto.ECBDecrypt(keyblobMacKeySource, keyblobKey)
	require.NoError(t, err)

	payload := fixedBytes(0x90, 0xC0)
	ctr := fixedBytes(0x10, 0xD0)
	plain, err := nsacrypto.CTRDecrypt(keyblobKey, ctr, 0, payload)
	require.NoError(t, err)
	wantMasterKek := plain[0:0x10]
	wantPackage1Key := plain[0x80:0x90]

	wantMasterKey, err := nsacrypto.ECBDecrypt(masterKeySource, wantMasterKek)
	require.NoError(t, err)

	kek, err := nsacrypto.ECBDecrypt(aesKekGenSource, wantMasterKey)
	require.NoError(t, err)
	kek, err = nsacrypto.ECBDecrypt(kakAppSource, kek)
	require.NoError(t, err)
	wantKak, err := nsacrypto.ECBDecrypt(aesKeyGenSource, kek)
	require.NoError(t, err)

	wantTitleKek, err := nsacrypto.ECBDecrypt(titleKekSource, wantMasterKey)
	require.NoError(t, err)

	wantHeaderKek, err := nsacrypto.ECBDecrypt(headerKekSource, wantMasterKey)
	require.NoError(t, err)
	wantHeaderKeyBlock0, err := nsacrypto.ECBDecrypt(headerKeySource[0:16], wantHeaderKek)
	require.NoError(t, err)
	wantHeaderKeyBlock1, err := nsacrypto.ECBDecrypt(headerKeySource[16:32], wantHeaderKek)
	require.NoError(t, err)

	keyfile := buildKeyfile(map[string][]byte{
		"secure_boot_key":                  secureBootKey,
		"tsec_key":                         tsecKey,
		"keyblob_key_source_00":            keyblobKeySource,
		"keyblob_mac_key_source":           keyblobMacKeySource,
		"keyblob_00":                       append(append(make([]byte, 0x10), ctr...), payload...),
		"master_key_source":                masterKeySource,
		"aes_kek_generation_source":        aesKekGenSource,
		"aes_key_generation_source":        aesKeyGenSource,
		"key_area_key_application_source":  kakAppSource,
		"titlekek_source":                  titleKekSource,
		"header_kek_source":                headerKekSource,
		"header_key_source":                headerKeySource,
	})

	ks, err := Derive(keyfile)
	require.NoError(t, err)

	require.Equal(t, keyblobKey, ks.KeyblobKeys[0][:])
	require.Equal(t, wantMacKey, ks.KeyblobMacKeys[0][:])
	require.Equal(t, wantMasterKek, ks.MasterKeks[0][:])
	require.Equal(t, wantPackage1Key, ks.Package1Keys[0][:])
	require.Equal(t, wantMasterKey, ks.MasterKeys[0][:])
	require.True(t, ks.HasKeyAreaKey(0, 0))
	require.Equal(t, wantKak, ks.KeyAreaKeys[0][0][:])
	require.Equal(t, wantTitleKek, ks.TitleKeks[0][:])
	require.Equal(t, append(wantHeaderKeyBlock0, wantHeaderKeyBlock1...), ks.HeaderKey[:])
}

func buildKeyfile(entries map[string][]byte) string {
	var b strings.Builder
	for name, val := range entries {
		fmt.Fprintf(&b, "%s = %s\n", name, hex.EncodeToString(val))
	}
	return b.String()
}
