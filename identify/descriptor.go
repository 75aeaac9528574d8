package identify

import (
	"strings"

	"github.com/retroflex/atapio"
)

// Descriptor is the 256-word block returned by IDENTIFY DEVICE. Only the
// words the driver uses have accessors here; see ATA8-ACS table 45 for the
// rest.
type Descriptor [256]uint16

// Word offsets into the descriptor.
const (
	wordGeneralConfig   = 0
	wordDefaultCyls     = 1
	wordDefaultHeads    = 3
	wordDefaultSPT      = 6
	wordSerial          = 10
	wordFirmware        = 23
	wordModel           = 27
	wordFieldValidity   = 53
	wordCurrentCyls     = 54
	wordCurrentHeads    = 55
	wordCurrentSPT      = 56
	wordLBA28Sectors    = 60
	wordCommandSet2     = 83
	wordUDMA            = 88
	wordHardwareReset   = 93
	wordLBA48Sectors    = 100
	wordSectorSizeCount = 106
)

// Absent returns true if word 0 carries one of the "nothing here" signatures.
func Absent(word0 uint16) bool {
	return word0 == 0x0000 || word0 == 0xFFFF
}

// ataString decodes `nWords` words starting at `index`. Each word holds two
// characters with the first one in the high byte. Trailing padding (spaces
// or NULs) is removed.
func (d *Descriptor) ataString(index int, nWords int) string {
	raw := make([]byte, 0, nWords*2)
	for _, word := range d[index : index+nWords] {
		raw = append(raw, byte(word>>8), byte(word))
	}
	if i := strings.IndexByte(string(raw), 0); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(string(raw), " ")
}

func (d *Descriptor) GeneralConfig() uint16 {
	return d[wordGeneralConfig]
}

// Model returns the model number, words 27-46.
func (d *Descriptor) Model() string {
	return d.ataString(wordModel, 20)
}

// Serial returns the serial number, words 10-19.
func (d *Descriptor) Serial() string {
	return strings.TrimSpace(d.ataString(wordSerial, 10))
}

// Firmware returns the firmware revision, words 23-26.
func (d *Descriptor) Firmware() string {
	return d.ataString(wordFirmware, 4)
}

// LBA48Capable reports the 48-bit Address feature set bit (word 83 bit 10).
func (d *Descriptor) LBA48Capable() bool {
	return d[wordCommandSet2]&(1<<10) != 0
}

// UDMA returns word 88: supported modes in the low byte, active mode in the
// high byte.
func (d *Descriptor) UDMA() uint16 {
	return d[wordUDMA]
}

// Cable80 reports whether an 80-conductor cable was detected (word 93 bit 11).
func (d *Descriptor) Cable80() bool {
	return d[wordHardwareReset]&(1<<11) != 0
}

// LBA28Sectors returns the number of sectors addressable with 28-bit
// commands, words 60-61.
func (d *Descriptor) LBA28Sectors() uint32 {
	return uint32(d[wordLBA28Sectors]) | uint32(d[wordLBA28Sectors+1])<<16
}

// LBA48Sectors returns the number of sectors addressable with 48-bit
// commands, words 100-103.
func (d *Descriptor) LBA48Sectors() uint64 {
	return uint64(d[wordLBA48Sectors]) |
		uint64(d[wordLBA48Sectors+1])<<16 |
		uint64(d[wordLBA48Sectors+2])<<32 |
		uint64(d[wordLBA48Sectors+3])<<48
}

// Geometry returns the current CHS translation (words 54-56) if word 53 says
// it is valid, otherwise the default geometry (words 1, 3 and 6). Either may
// be all zeros on drives that no longer support CHS.
func (d *Descriptor) Geometry() atapio.Geometry {
	if d[wordFieldValidity]&0x0001 != 0 {
		current := atapio.Geometry{
			Cylinders:       uint32(d[wordCurrentCyls]),
			Heads:           uint32(d[wordCurrentHeads]),
			SectorsPerTrack: uint32(d[wordCurrentSPT]),
		}
		if current.Valid() {
			return current
		}
	}
	return atapio.Geometry{
		Cylinders:       uint32(d[wordDefaultCyls]),
		Heads:           uint32(d[wordDefaultHeads]),
		SectorsPerTrack: uint32(d[wordDefaultSPT]),
	}
}

// SectorSize returns the logical sector size. Word 106 is read as a multiple
// of 512 bytes; anything that doesn't come out to 512, 1024, 2048 or 4096 is
// ignored and the default of 512 is used.
func (d *Descriptor) SectorSize() uint32 {
	candidate := uint32(d[wordSectorSizeCount]) * atapio.DefaultSectorSize
	switch candidate {
	case 512, 1024, 2048, 4096:
		return candidate
	}
	return atapio.DefaultSectorSize
}

// Parse extracts everything the driver needs from the descriptor and resolves
// the addressing mode. It doesn't check word 0; see [Absent].
func (d *Descriptor) Parse(channel atapio.Channel, position atapio.Position) atapio.DriveInfo {
	info := atapio.DriveInfo{
		Detected:           true,
		Channel:            channel,
		Position:           position,
		GeneralConfig:      d.GeneralConfig(),
		Model:              d.Model(),
		Serial:             d.Serial(),
		Firmware:           d.Firmware(),
		SectorSize:         d.SectorSize(),
		LBA28Sectors:       d.LBA28Sectors(),
		LBA48Sectors:       d.LBA48Sectors(),
		LBA48Capable:       d.LBA48Capable(),
		SupportedUDMAModes: d.UDMA(),
		Cable80:            d.Cable80(),
		Geometry:           d.Geometry(),
	}
	info.Addressing = ResolveAddressing(info.LBA48Sectors, info.LBA28Sectors)
	return info
}
