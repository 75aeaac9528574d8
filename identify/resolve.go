package identify

import "github.com/retroflex/atapio"

// ResolveAddressing picks the addressing mode for a drive from its reported
// capacities: LBA48 if it reports any 48-bit sectors, LBA28 if it reports any
// 28-bit sectors, and CHS otherwise.
//
// CHS is returned even if the drive reported no usable geometry. The sector
// engine refuses to do I/O on such a drive rather than guess.
func ResolveAddressing(lba48Sectors uint64, lba28Sectors uint32) atapio.Mode {
	if lba48Sectors > 0 {
		return atapio.LBA48
	}
	if lba28Sectors > 0 {
		return atapio.LBA28
	}
	return atapio.CHS
}
