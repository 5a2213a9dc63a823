// Package nacp patches the Nintendo Application Control Property block:
// user-visible title metadata embedded in the Control NCA's RomFS
// (spec.md §4.11 step 4).
package nacp

const (
	logoHandlingOffset = 0x30F1

	numLocalizations  = 12
	localizationSize  = 0x300
	titleSlotOffset   = 0x000
	titleSlotSize     = 0x200
	publisherSlotOffset = 0x200
	publisherSlotSize   = 0x100
)

// PatchLogoHandling overwrites the LogoHandling byte to 0 (Auto).
func PatchLogoHandling(nacp []byte) {
	if len(nacp) > logoHandlingOffset {
		nacp[logoHandlingOffset] = 0
	}
}

// PatchTitleAndPublisher overwrites all 12 localization slots' title and
// publisher fields with the given UTF-8 strings, clamped one byte short of
// the slot (to leave room for the terminating zero) and zero-padded.
func PatchTitleAndPublisher(nacp []byte, title, publisher string) {
	titleBytes := []byte(title)
	pubBytes := []byte(publisher)

	for i := 0; i < numLocalizations; i++ {
		base := i * localizationSize
		if base+localizationSize > len(nacp) {
			break
		}
		writeSlot(nacp[base+titleSlotOffset:base+titleSlotOffset+titleSlotSize], titleBytes)
		writeSlot(nacp[base+publisherSlotOffset:base+publisherSlotOffset+publisherSlotSize], pubBytes)
	}
}

func writeSlot(slot []byte, value []byte) {
	for i := range slot {
		slot[i] = 0
	}
	n := len(value)
	if n > len(slot)-1 {
		n = len(slot) - 1
	}
	copy(slot, value[:n])
}
