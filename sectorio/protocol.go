package sectorio

import (
	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/registers"
)

// protocol is the addressing-specific half of a sector command: how to load
// one sector's address into the task file, and which opcodes to use.
type protocol interface {
	// limit is one past the highest addressable sector.
	limit() uint64
	// selectBits is OR'd into the drive select byte when addressing `sector`.
	selectBits(sector uint64) uint8
	// program writes the address of `sector` and a sector count of one. The
	// drive must already be selected and idle.
	program(selector registers.Selector, sector uint64)
	command(writing bool) uint8
	String() string
}

// protocolFor matches the drive's addressing mode once per operation.
func protocolFor(drive *atapio.DriveInfo) (protocol, error) {
	switch drive.Addressing {
	case atapio.LBA48:
		return lba48{sectors: drive.LBA48Sectors}, nil
	case atapio.LBA28:
		return lba28{sectors: drive.LBA28Sectors}, nil
	case atapio.CHS:
		if err := checkGeometry(drive.Geometry); err != nil {
			return nil, err
		}
		return chs{geometry: drive.Geometry}, nil
	}
	return nil, atapio.ErrUnsupportedAddressingMode.WithMessage(drive.Addressing.String())
}

// -----------------------------------------------------------------------------

type lba48 struct {
	sectors uint64
}

func (p lba48) limit() uint64 {
	return min(p.sectors, 1<<48)
}

// program writes the high-order bytes first, then the low-order bytes. The
// drive keeps the previous write to each register as its "high" half.
func (p lba48) program(selector registers.Selector, sector uint64) {
	port := selector.Port
	block := selector.Block

	port.Outb(block.SectorCount(), 0)
	port.Outb(block.LBALow(), uint8(sector>>24))
	port.Outb(block.LBAMid(), uint8(sector>>32))
	port.Outb(block.LBAHigh(), uint8(sector>>40))

	port.Outb(block.SectorCount(), 1)
	port.Outb(block.LBALow(), uint8(sector))
	port.Outb(block.LBAMid(), uint8(sector>>8))
	port.Outb(block.LBAHigh(), uint8(sector>>16))
}

func (p lba48) selectBits(uint64) uint8 {
	return registers.SelectLBA
}

func (p lba48) command(writing bool) uint8 {
	if writing {
		return registers.CmdWriteSectorsExt
	}
	return registers.CmdReadSectorsExt
}

func (p lba48) String() string { return "LBA48" }

// -----------------------------------------------------------------------------

type lba28 struct {
	sectors uint32
}

func (p lba28) limit() uint64 {
	return min(uint64(p.sectors), 1<<28)
}

// selectBits carries bits 24-27 of the address.
func (p lba28) selectBits(sector uint64) uint8 {
	return registers.SelectLBA | uint8(sector>>24)&0x0F
}

func (p lba28) program(selector registers.Selector, sector uint64) {
	port := selector.Port
	block := selector.Block

	port.Outb(block.SectorCount(), 1)
	port.Outb(block.LBALow(), uint8(sector))
	port.Outb(block.LBAMid(), uint8(sector>>8))
	port.Outb(block.LBAHigh(), uint8(sector>>16))
}

func (p lba28) command(writing bool) uint8 {
	if writing {
		return registers.CmdWriteSectors
	}
	return registers.CmdReadSectors
}

func (p lba28) String() string { return "LBA28" }

// -----------------------------------------------------------------------------

type chs struct {
	geometry atapio.Geometry
}

func (p chs) limit() uint64 {
	return p.geometry.TotalSectors()
}

// selectBits carries the head number.
func (p chs) selectBits(sector uint64) uint8 {
	return uint8(toCHS(sector, p.geometry).Head) & 0x0F
}

func (p chs) program(selector registers.Selector, sector uint64) {
	port := selector.Port
	block := selector.Block

	address := toCHS(sector, p.geometry)
	port.Outb(block.LBAHigh(), uint8(address.Cylinder>>8))
	port.Outb(block.LBAMid(), uint8(address.Cylinder))
	port.Outb(block.LBALow(), uint8(address.Sector))
	port.Outb(block.SectorCount(), 1)
}

func (p chs) command(writing bool) uint8 {
	if writing {
		return registers.CmdWriteSectorsCHS
	}
	return registers.CmdReadSectorsCHS
}

func (p chs) String() string { return "CHS" }
