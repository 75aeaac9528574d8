// Package sectorio transfers whole sectors between memory and a detected ATA
// drive using polled PIO, one sector per command.
package sectorio

import (
	"encoding/binary"
	"fmt"

	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/registers"
)

// Engine reads and writes sectors through a [atapio.PortIO]. It holds no
// per-drive state; callers serialize access to each channel.
type Engine struct {
	port      atapio.PortIO
	pollLimit int
}

// New returns an engine that gives up on a drive after `pollLimit` status
// reads.
func New(port atapio.PortIO, pollLimit int) *Engine {
	return &Engine{port: port, pollLimit: pollLimit}
}

// ReadSectors fills `buffer` with consecutive sectors starting at `start`. The
// buffer length must be a nonzero multiple of the drive's sector size.
//
// If a sector fails, sectors before it have already been stored in `buffer`
// and nothing after it is touched.
func (e *Engine) ReadSectors(drive *atapio.DriveInfo, start uint64, buffer []byte) error {
	return e.transfer(drive, start, buffer, false)
}

// WriteSectors writes `buffer` to consecutive sectors starting at `start`. The
// buffer length must be a nonzero multiple of the drive's sector size. Data
// may sit in the drive's cache until [Engine.Flush] is called.
func (e *Engine) WriteSectors(drive *atapio.DriveInfo, start uint64, buffer []byte) error {
	return e.transfer(drive, start, buffer, true)
}

// Flush asks the drive to commit its write cache to media.
func (e *Engine) Flush(drive *atapio.DriveInfo) error {
	if drive == nil || !drive.Detected {
		return atapio.ErrDriveNotPresent
	}

	var command uint8 = registers.CmdFlushCache
	var addrBits uint8
	if drive.Addressing == atapio.LBA48 {
		command = registers.CmdFlushCacheExt
	}
	if drive.Addressing != atapio.CHS {
		addrBits = registers.SelectLBA
	}

	selector := registers.NewSelector(e.port, drive.Channel)
	status, result := selector.SelectAndWait(drive.Position, addrBits, e.pollLimit)
	if result != registers.PollReady {
		return driveFault(selector, result, status,
			"%s %s: flush %s before the command", drive.Channel, drive.Position, result)
	}

	selector.Command(command)
	status, result = selector.Poll(e.pollLimit, false)
	if result != registers.PollReady {
		return driveFault(selector, result, status,
			"%s %s: flush %s", drive.Channel, drive.Position, result)
	}
	return nil
}

// sectorCount validates `buffer` against the drive and returns the number of
// sectors it covers.
func sectorCount(drive *atapio.DriveInfo, buffer []byte) (uint64, error) {
	if drive == nil || !drive.Detected {
		return 0, atapio.ErrDriveNotPresent
	}
	if drive.SectorSize == 0 || drive.SectorSize%2 != 0 {
		return 0, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bad sector size %d", drive.SectorSize))
	}
	if len(buffer) == 0 || uint64(len(buffer))%uint64(drive.SectorSize) != 0 {
		return 0, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer length %d is not a nonzero multiple of the sector size %d",
				len(buffer),
				drive.SectorSize,
			))
	}
	return uint64(len(buffer)) / uint64(drive.SectorSize), nil
}

func (e *Engine) transfer(
	drive *atapio.DriveInfo, start uint64, buffer []byte, writing bool,
) error {
	count, err := sectorCount(drive, buffer)
	if err != nil {
		return err
	}

	proto, err := protocolFor(drive)
	if err != nil {
		return err
	}

	limit := proto.limit()
	if start >= limit || count > limit-start {
		return atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"sectors [%d, %d) not in range [0, %d) for %s",
				start,
				start+count,
				limit,
				proto,
			))
	}

	selector := registers.NewSelector(e.port, drive.Channel)
	sectorSize := uint64(drive.SectorSize)
	words := make([]uint16, sectorSize/2)

	for i := uint64(0); i < count; i++ {
		sector := start + i
		chunk := buffer[i*sectorSize : (i+1)*sectorSize]

		status, result := selector.SelectAndWait(
			drive.Position, proto.selectBits(sector), e.pollLimit)
		if result != registers.PollReady {
			return transferError(selector, drive, proto, sector, result, status, "before the command")
		}

		proto.program(selector, sector)
		selector.Command(proto.command(writing))

		status, result = selector.Poll(e.pollLimit, true)
		if result != registers.PollReady {
			return transferError(selector, drive, proto, sector, result, status, "waiting for data")
		}

		if !writing {
			e.port.Insw(selector.Block.Data(), words)
			for j, word := range words {
				binary.LittleEndian.PutUint16(chunk[2*j:], word)
			}
			continue
		}

		for j := range words {
			words[j] = binary.LittleEndian.Uint16(chunk[2*j:])
		}
		e.port.Outsw(selector.Block.Data(), words)

		// The drive reports write errors once it's done with the data.
		status, result = selector.Poll(e.pollLimit, false)
		if result != registers.PollReady {
			return transferError(selector, drive, proto, sector, result, status, "after the data")
		}
	}
	return nil
}

func transferError(
	selector registers.Selector,
	drive *atapio.DriveInfo,
	proto protocol,
	sector uint64,
	result registers.PollResult,
	status uint8,
	stage string,
) error {
	return driveFault(
		selector,
		result,
		status,
		"%s %s: %s sector %d %s %s",
		drive.Channel,
		drive.Position,
		proto,
		sector,
		result,
		stage,
	)
}

// driveFault builds an ErrDriveFault from a failed poll. If the drive reported
// an error, the error register is read and decoded into the message.
func driveFault(
	selector registers.Selector,
	result registers.PollResult,
	status uint8,
	format string,
	args ...any,
) error {
	message := fmt.Sprintf(format, args...) + fmt.Sprintf(" (status 0x%02X", status)
	if result == registers.PollFault {
		errorBits := selector.ErrorRegister()
		message += fmt.Sprintf(", error 0x%02X %s", errorBits, registers.DescribeError(errorBits))
	}
	return atapio.ErrDriveFault.WithMessage(message + ")")
}
