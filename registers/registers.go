// Package registers maps ATA channels to their legacy I/O register blocks and
// implements drive selection and bounded status polling on top of a
// [atapio.PortIO].
//
// Nothing in this package remembers which drive was selected last. All four
// drive positions share the two register blocks, so every command sequence
// must begin with a call to [Selector.Select].
package registers

import (
	"fmt"
	"strings"

	"github.com/retroflex/atapio"
)

// Status register bits.
const (
	StatusERR  = 0x01
	StatusDRQ  = 0x08
	StatusDF   = 0x20
	StatusDRDY = 0x40
	StatusBSY  = 0x80
)

// Device control register bits.
const (
	ControlNIEN = 0x02
)

// Error register bits. The register is only meaningful while ERR is set in
// the status register.
const (
	ErrorAMNF  = 0x01
	ErrorTK0NF = 0x02
	ErrorABRT  = 0x04
	ErrorMCR   = 0x08
	ErrorIDNF  = 0x10
	ErrorMC    = 0x20
	ErrorUNC   = 0x40
	ErrorBBK   = 0x80
)

var errorBitNames = [8]string{"AMNF", "TK0NF", "ABRT", "MCR", "IDNF", "MC", "UNC", "BBK"}

// DescribeError names the bits set in an error register value, e.g.
// "ABRT|IDNF". It returns "none" if no bit is set.
func DescribeError(value uint8) string {
	names := make([]string, 0, 8)
	for i, name := range errorBitNames {
		if value&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Drive select register bits.
const (
	SelectBase  = 0xA0
	SelectSlave = 0x10
	SelectLBA   = 0x40
)

// Commands.
const (
	CmdReadSectors     = 0x20
	CmdReadSectorsCHS  = 0x21
	CmdReadSectorsExt  = 0x24
	CmdWriteSectors    = 0x30
	CmdWriteSectorsCHS = 0x31
	CmdWriteSectorsExt = 0x34
	CmdIdentifyDevice  = 0xEC
	CmdFlushCache      = 0xE7
	CmdFlushCacheExt   = 0xEA
)

// Block is the set of I/O ports belonging to one channel.
type Block struct {
	// Base is the port of the data register; the seven task-file registers
	// follow it.
	Base uint16
	// Control is the alternate status / device control port.
	Control uint16
}

var PrimaryBlock = Block{Base: 0x1F0, Control: 0x3F6}
var SecondaryBlock = Block{Base: 0x170, Control: 0x376}

// ForChannel returns the register block of a channel.
func ForChannel(channel atapio.Channel) Block {
	if channel == atapio.Secondary {
		return SecondaryBlock
	}
	return PrimaryBlock
}

func (b Block) Data() uint16          { return b.Base }
func (b Block) ErrorRegister() uint16 { return b.Base + 1 }
func (b Block) Features() uint16      { return b.Base + 1 }
func (b Block) SectorCount() uint16   { return b.Base + 2 }

// LBALow is also the sector number register in CHS mode.
func (b Block) LBALow() uint16 { return b.Base + 3 }

// LBAMid is also the cylinder low register in CHS mode.
func (b Block) LBAMid() uint16 { return b.Base + 4 }

// LBAHigh is also the cylinder high register in CHS mode.
func (b Block) LBAHigh() uint16 { return b.Base + 5 }

func (b Block) DriveSelect() uint16   { return b.Base + 6 }
func (b Block) Command() uint16       { return b.Base + 7 }
func (b Block) Status() uint16        { return b.Base + 7 }
func (b Block) AltStatus() uint16     { return b.Control }
func (b Block) DeviceControl() uint16 { return b.Control }

func (b Block) String() string {
	return fmt.Sprintf("ports 0x%03X-0x%03X/0x%03X", b.Base, b.Base+7, b.Control)
}

// SelectValue computes the byte written to the drive select register.
// `addrBits` is OR'd in unchanged; callers use it for the LBA flag and the
// top nibble of an LBA28 address or the CHS head number.
func SelectValue(position atapio.Position, addrBits uint8) uint8 {
	value := uint8(SelectBase) | addrBits
	if position == atapio.Slave {
		value |= SelectSlave
	}
	return value
}
