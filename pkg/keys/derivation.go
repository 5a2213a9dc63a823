package keys

import (
	"golang.org/x/sync/errgroup"

	nsacrypto "github.com/falk/nca-forge/pkg/crypto"
	"github.com/falk/nca-forge/pkg/ncaerr"
)

// DeriveOptions configures a derivation run.
type DeriveOptions struct {
	// TargetGeneration, if >= 0, lets the derivation skip generations that
	// provably can't affect the requested one (spec.md §4.2: "When a
	// caller pre-specifies a target generation, derivations for other
	// generations MAY be skipped"). Behavioral output for TargetGeneration
	// itself is unchanged either way.
	TargetGeneration int
}

// DefaultDeriveOptions derives every generation.
func DefaultDeriveOptions() DeriveOptions { return DeriveOptions{TargetGeneration: -1} }

// Derive parses a keyfile and runs the full master-key derivation chain
// (spec.md §4.2), populating every output it can given what's present.
// Missing inputs silently leave their outputs zeroed; this never fails
// outright except on a malformed keyfile line.
func Derive(keyfileText string, opts ...DeriveOptions) (*KeySet, error) {
	opt := DefaultDeriveOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	raw, err := ParseKeyfile(keyfileText)
	if err != nil {
		return nil, err
	}

	ks := &KeySet{}
	wanted := func(gen int) bool {
		return opt.TargetGeneration < 0 || gen == opt.TargetGeneration
	}

	deriveKeyblobs(raw, ks)
	deriveTsecRootKeys(raw, ks)

	var g errgroup.Group
	for gen := 0; gen < 32; gen++ {
		gen := gen
		if !wanted(gen) {
			continue
		}
		g.Go(func() error {
			deriveGeneration(raw, ks, gen)
			return nil
		})
	}
	_ = g.Wait()

	if wanted(0) {
		deriveHeaderKey(raw, ks)
	}

	return ks, nil
}

// deriveKeyblobs runs the "old" chain: keyblob keys -> keyblob mac keys ->
// keyblobs -> package1 key / old master kek, for generations 0..5.
func deriveKeyblobs(raw rawKeys, ks *KeySet) {
	secureBootKey := raw.get("secure_boot_key")
	tsecKey := raw.get("tsec_key")
	keyblobMacKeySource := raw.get("keyblob_mac_key_source")

	if secureBootKey == nil || tsecKey == nil {
		return
	}

	for i := 0; i < 6; i++ {
		src := raw.getIndexed("keyblob_key_source_", i)
		if src == nil {
			continue
		}

		inner, err := nsacrypto.ECBDecrypt(src, tsecKey)
		if err != nil {
			continue
		}
		keyblobKey, err := nsacrypto.ECBDecrypt(inner, secureBootKey)
		if err != nil {
			continue
		}
		copy(ks.KeyblobKeys[i][:], keyblobKey)

		if keyblobMacKeySource != nil {
			if mac, err := nsacrypto.ECBDecrypt(keyblobMacKeySource, keyblobKey); err == nil {
				copy(ks.KeyblobMacKeys[i][:], mac)
			}
		}

		encryptedKeyblob := raw.getIndexed("keyblob_", i)
		if encryptedKeyblob == nil || len(encryptedKeyblob) < 0x20+0x90 {
			continue
		}
		ctr := encryptedKeyblob[0x10:0x20]
		payload := encryptedKeyblob[0x20 : 0x20+0x90]
		plain, err := nsacrypto.CTRDecrypt(keyblobKey, ctr, 0, payload)
		if err != nil {
			continue
		}
		copy(ks.Keyblobs[i][:], plain)

		copy(ks.MasterKeks[i][:], plain[0:0x10])
		copy(ks.Package1Keys[i][:], plain[0x80:0x90])
	}
}

// deriveTsecRootKeys runs the "new" chain's first step: tsec root keys for
// generations 6..31, from tsec_root_kek and per-generation auth signatures.
func deriveTsecRootKeys(raw rawKeys, ks *KeySet) {
	tsecRootKek := raw.get("tsec_root_kek")
	if tsecRootKek == nil {
		return
	}
	for i := 6; i < 32; i++ {
		sig := raw.getIndexed("tsec_auth_signature_", i-6)
		if sig == nil {
			continue
		}
		rootKey, err := nsacrypto.ECBEncrypt(sig, tsecRootKek)
		if err != nil {
			continue
		}
		copy(ks.TsecRootKeys[i][:], rootKey)
	}
}

// deriveGeneration derives masterKek[i] (old or new chain depending on i),
// masterKey[i], and the three key-area keys + title kek for generation i.
func deriveGeneration(raw rawKeys, ks *KeySet, gen int) {
	var masterKek []byte

	if gen < 6 {
		if isZero(ks.MasterKeks[gen][:]) {
			return
		}
		masterKek = ks.MasterKeks[gen][:]
	} else {
		masterKekSource := raw.getIndexed("master_kek_source_", gen)
		tsecRootKey := ks.TsecRootKeys[gen][:]
		if masterKekSource == nil || isZero(tsecRootKey) {
			return
		}
		mk, err := nsacrypto.ECBDecrypt(masterKekSource, tsecRootKey)
		if err != nil {
			return
		}
		copy(ks.MasterKeks[gen][:], mk)
		masterKek = mk
	}

	masterKeySource := raw.get("master_key_source")
	if masterKeySource == nil {
		return
	}
	masterKey, err := nsacrypto.ECBDecrypt(masterKeySource, masterKek)
	if err != nil {
		return
	}
	copy(ks.MasterKeys[gen][:], masterKey)
	ks.present[gen] = true

	aesKekGen := raw.get("aes_kek_generation_source")
	aesKeyGen := raw.get("aes_key_generation_source")
	variantSources := [3][]byte{
		raw.get("key_area_key_application_source"),
		raw.get("key_area_key_ocean_source"),
		raw.get("key_area_key_system_source"),
	}

	if aesKekGen != nil && aesKeyGen != nil {
		for v := 0; v < 3; v++ {
			if variantSources[v] == nil {
				continue
			}
			kek, err := nsacrypto.ECBDecrypt(aesKekGen, masterKey)
			if err != nil {
				continue
			}
			kek, err = nsacrypto.ECBDecrypt(variantSources[v], kek)
			if err != nil {
				continue
			}
			kak, err := nsacrypto.ECBDecrypt(aesKeyGen, kek)
			if err != nil {
				continue
			}
			copy(ks.KeyAreaKeys[gen][v][:], kak)
		}
	}

	if titleKekSource := raw.get("titlekek_source"); titleKekSource != nil {
		if tk, err := nsacrypto.ECBDecrypt(titleKekSource, masterKey); err == nil {
			copy(ks.TitleKeks[gen][:], tk)
		}
	}
}

// deriveHeaderKey derives the 32-byte header key from generation-0's
// master key (spec.md §4.2: "at i=0 only").
func deriveHeaderKey(raw rawKeys, ks *KeySet) {
	headerKekSource := raw.get("header_kek_source")
	headerKeySource := raw.get("header_key_source")
	if headerKekSource == nil || headerKeySource == nil || !ks.present[0] {
		return
	}

	headerKek, err := nsacrypto.ECBDecrypt(headerKekSource, ks.MasterKeys[0][:])
	if err != nil {
		return
	}

	headerKey := make([]byte, 0, 32)
	for i := 0; i < len(headerKeySource); i += 16 {
		end := i + 16
		if end > len(headerKeySource) {
			break
		}
		block, err := nsacrypto.ECBDecrypt(headerKeySource[i:end], headerKek)
		if err != nil {
			return
		}
		headerKey = append(headerKey, block...)
	}
	if len(headerKey) == 32 {
		copy(ks.HeaderKey[:], headerKey)
	}
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// DecryptTitleKey decrypts a ticket-supplied, wrapped title key for the
// given generation.
func DecryptTitleKey(ks *KeySet, encryptedKey []byte, gen int) ([]byte, error) {
	if gen < 0 || gen >= 32 {
		return nil, ncaerr.New(ncaerr.InvalidFieldRange, "key generation")
	}
	return nsacrypto.ECBDecrypt(encryptedKey, ks.TitleKeks[gen][:])
}

// UnwrapKeyAreaTitleKey unwraps a title key from an NCA's key area using
// the application key-area key for the given generation (spec.md §4.8
// step 6's inverse, used during inspection).
func UnwrapKeyAreaTitleKey(ks *KeySet, wrapped []byte, gen int) ([]byte, error) {
	if gen < 0 || gen >= 32 {
		return nil, ncaerr.New(ncaerr.InvalidFieldRange, "key generation")
	}
	return nsacrypto.ECBDecrypt(wrapped, ks.KeyAreaKeys[gen][0][:])
}
