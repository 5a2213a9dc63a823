// Package npdm patches the process metadata block (main.npdm) carried in a
// program's ExeFS: locating ACI0/ACID, extracting and optionally overwriting the
// title id, and patching the ACID public modulus (spec.md §4.6).
package npdm

import (
	"encoding/binary"

	"github.com/falk/nca-forge/pkg/ncaerr"
)

const (
	metaMagic = "META"
	aci0Magic = "ACI0"
	acidMagic = "ACID"

	aci0OffsetField = 0x70
	acidOffsetField = 0x78

	aci0TitleIDOffset = 0x10
	acidModulusOffset = 0x100
	acidModulusSize   = 0x100 // acid+0x100..acid+0x200

	minTitleID = 0x0100000000000000
	maxTitleID = 0x0FFFFFFFFFFFFFFF
)

// Patch mutates npdm in place: validates META/ACI0/ACID framing, extracts
// the ACI0 title id (optionally overwriting it), range-checks it, and
// optionally overwrites the ACID public modulus.
//
// Returns the (possibly overridden) title id.
func Patch(npdm []byte, titleIDOverride *uint64, publicModulus []byte, patchAcidKey bool) (uint64, error) {
	if len(npdm) < 0x80 || string(npdm[0x00:0x04]) != metaMagic {
		return 0, ncaerr.New(ncaerr.InvalidMagic, "npdm META")
	}

	aci0Off := binary.LittleEndian.Uint32(npdm[aci0OffsetField:])
	acidOff := binary.LittleEndian.Uint32(npdm[acidOffsetField:])

	if int(aci0Off)+0x04 > len(npdm) || string(npdm[aci0Off:aci0Off+4]) != aci0Magic {
		return 0, ncaerr.New(ncaerr.InvalidMagic, "npdm ACI0")
	}
	if int(acidOff)+0x204 > len(npdm) || string(npdm[acidOff+0x200:acidOff+0x204]) != acidMagic {
		return 0, ncaerr.New(ncaerr.InvalidMagic, "npdm ACID")
	}

	titleIDOff := aci0Off + aci0TitleIDOffset
	titleID := binary.LittleEndian.Uint64(npdm[titleIDOff:])

	if titleIDOverride != nil {
		titleID = *titleIDOverride
		binary.LittleEndian.PutUint64(npdm[titleIDOff:], titleID)
	}

	if titleID < minTitleID || titleID > maxTitleID {
		return 0, ncaerr.New(ncaerr.InvalidFieldRange, "npdm aci0 title id")
	}

	if patchAcidKey {
		if len(publicModulus) != acidModulusSize {
			return 0, ncaerr.New(ncaerr.InvalidFieldRange, "npdm acid public modulus length")
		}
		dst := acidOff + acidModulusOffset
		copy(npdm[dst:dst+acidModulusSize], publicModulus)
	}

	return titleID, nil
}
