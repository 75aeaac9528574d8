package atapio

import (
	"fmt"
	"io"
	"strconv"

	"github.com/boljen/go-bitmap"
)

// Channel is one of the two legacy ATA controllers (register blocks).
type Channel int

const (
	Primary Channel = iota
	Secondary
)

func (c Channel) String() string {
	switch c {
	case Primary:
		return "Primary"
	case Secondary:
		return "Secondary"
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// Valid returns true for Primary and Secondary.
func (c Channel) Valid() bool {
	return c == Primary || c == Secondary
}

// Position is the drive's place on its channel's cable.
type Position int

const (
	Master Position = iota
	Slave
)

func (p Position) String() string {
	switch p {
	case Master:
		return "Master"
	case Slave:
		return "Slave"
	}
	return fmt.Sprintf("Position(%d)", int(p))
}

// Valid returns true for Master and Slave.
func (p Position) Valid() bool {
	return p == Master || p == Slave
}

// Channels and Positions list every valid value, in scan order.
var Channels = []Channel{Primary, Secondary}
var Positions = []Position{Master, Slave}

// Mode is the addressing scheme used to locate sectors on a drive.
type Mode int

const (
	// AddressingUnknown is only ever seen on a DriveInfo that wasn't detected.
	AddressingUnknown Mode = iota
	CHS
	LBA28
	LBA48
)

func (m Mode) String() string {
	switch m {
	case CHS:
		return "CHS"
	case LBA28:
		return "LBA28"
	case LBA48:
		return "LBA48"
	}
	return "unknown"
}

// Geometry is a drive's cylinder/head/sector layout. A zero Heads or
// SectorsPerTrack means the drive didn't report one.
type Geometry struct {
	Cylinders       uint32
	Heads           uint32
	SectorsPerTrack uint32
}

// Valid returns true if the geometry can be used to translate addresses.
func (g Geometry) Valid() bool {
	return g.Cylinders > 0 && g.Heads > 0 && g.SectorsPerTrack > 0
}

// TotalSectors gives the number of addressable sectors described by the
// geometry.
func (g Geometry) TotalSectors() uint64 {
	return uint64(g.Cylinders) * uint64(g.Heads) * uint64(g.SectorsPerTrack)
}

// DefaultSectorSize is the sector size assumed unless the drive reports a
// different, plausible one.
const DefaultSectorSize = 512

// DriveInfo describes one physical drive position. It's filled in once by
// identification and is read-only afterwards.
//
// If Detected is false, every other field is zero and must be ignored.
type DriveInfo struct {
	Detected bool
	Channel  Channel
	Position Position

	// Addressing is decided once, right after identification, by the priority
	// LBA48 > LBA28 > CHS.
	Addressing Mode

	// GeneralConfig is descriptor word 0. Bit 15 clear means an ATA device.
	GeneralConfig uint16
	Model         string
	Serial        string
	Firmware      string

	SectorSize   uint32
	LBA28Sectors uint32
	LBA48Sectors uint64
	LBA48Capable bool

	// SupportedUDMAModes has the supported-mode mask in the low byte and the
	// active-mode mask in the high byte. Reported only; transfers are PIO.
	SupportedUDMAModes uint16
	Cable80            bool

	Geometry Geometry
}

// Capacity returns the number of sectors addressable with the drive's
// addressing mode.
func (d *DriveInfo) Capacity() uint64 {
	switch d.Addressing {
	case LBA48:
		return d.LBA48Sectors
	case LBA28:
		return uint64(d.LBA28Sectors)
	case CHS:
		return d.Geometry.TotalSectors()
	}
	return 0
}

// UDMAModes lists the UDMA modes the drive supports, lowest first.
func (d *DriveInfo) UDMAModes() []int {
	mask := []byte{byte(d.SupportedUDMAModes)}
	modes := make([]int, 0, 8)
	for i := 0; i < 8; i++ {
		if bitmap.Get(mask, i) {
			modes = append(modes, i)
		}
	}
	return modes
}

// ActiveUDMAMode returns the currently selected UDMA mode, or -1 if none is.
func (d *DriveInfo) ActiveUDMAMode() int {
	mask := []byte{byte(d.SupportedUDMAModes >> 8)}
	for i := 0; i < 8; i++ {
		if bitmap.Get(mask, i) {
			return i
		}
	}
	return -1
}

func (d *DriveInfo) String() string {
	if !d.Detected {
		return "not detected"
	}
	return fmt.Sprintf(
		"%s %s: %q, %s, %d sectors of %d B",
		d.Channel,
		d.Position,
		d.Model,
		d.Addressing,
		d.Capacity(),
		d.SectorSize,
	)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// Describe writes a multi-line report of everything known about the drive.
func (d *DriveInfo) Describe(w io.Writer) error {
	if !d.Detected {
		_, err := io.WriteString(w, "Drive not detected.\n")
		return err
	}

	cable := "40-wire cable"
	if d.Cable80 {
		cable = "80-wire cable"
	}

	activeMode := "none"
	if mode := d.ActiveUDMAMode(); mode >= 0 {
		activeMode = strconv.Itoa(mode)
	}

	_, err := fmt.Fprintf(
		w,
		"Drive Model: %s\n"+
			"Serial Number: %s\n"+
			"Firmware: %s\n"+
			"Location: %s channel, %s\n"+
			"Cable: %s\n"+
			"Addressing: %s\n"+
			"Sector Size: %d\n"+
			"Supports LBA48: %s\n"+
			"LBA28 Sector Count: %d\n"+
			"LBA48 Sector Count: %d\n"+
			"Cylinders: %d\n"+
			"Heads per Cylinder: %d\n"+
			"Sectors per Track: %d\n"+
			"Supported UDMA Modes: %v (0x%04X)\n"+
			"Active UDMA Mode: %s\n",
		d.Model,
		d.Serial,
		d.Firmware,
		d.Channel,
		d.Position,
		cable,
		d.Addressing,
		d.SectorSize,
		yesNo(d.LBA48Capable),
		d.LBA28Sectors,
		d.LBA48Sectors,
		d.Geometry.Cylinders,
		d.Geometry.Heads,
		d.Geometry.SectorsPerTrack,
		d.UDMAModes(),
		d.SupportedUDMAModes,
		activeMode,
	)
	return err
}
