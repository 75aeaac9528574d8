// Package identify detects drives with IDENTIFY DEVICE and turns the returned
// descriptor into an [atapio.DriveInfo].
package identify

import (
	"fmt"

	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/registers"
)

// Identifier probes drive positions. It holds no per-drive state and can be
// reused for every position on both channels.
type Identifier struct {
	port      atapio.PortIO
	pollLimit int
}

// New creates an Identifier. `pollLimit` is the maximum number of status
// reads to wait for BSY to clear, both after selecting the drive and after
// issuing IDENTIFY.
func New(port atapio.PortIO, pollLimit int) *Identifier {
	return &Identifier{port: port, pollLimit: pollLimit}
}

// Identify issues IDENTIFY DEVICE to one drive position.
//
// An empty position is not an error: the returned DriveInfo has Detected set
// to false and all other fields zero. [atapio.ErrIdentifyTimeout] is returned
// if the drive stays busy for longer than the poll limit, either after being
// selected or after the command. An unknown channel or position is
// [atapio.ErrInvalidArgument] and touches no ports.
func (id *Identifier) Identify(
	channel atapio.Channel, position atapio.Position,
) (atapio.DriveInfo, error) {
	if !channel.Valid() || !position.Valid() {
		return atapio.DriveInfo{}, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no such drive: %s %s", channel, position))
	}

	selector := registers.NewSelector(id.port, channel)
	block := selector.Block

	status, result := selector.SelectAndWait(position, 0, id.pollLimit)
	if result != registers.PollReady {
		return atapio.DriveInfo{}, atapio.ErrIdentifyTimeout.WithMessage(
			fmt.Sprintf(
				"%s %s: busy after %d polls before the command (status 0x%02X)",
				channel,
				position,
				id.pollLimit,
				status,
			),
		)
	}

	selector.DisableInterrupts()
	id.port.Outb(block.SectorCount(), 0)
	id.port.Outb(block.LBALow(), 0)
	id.port.Outb(block.LBAMid(), 0)
	id.port.Outb(block.LBAHigh(), 0)
	selector.Command(registers.CmdIdentifyDevice)

	// 0x00 means no device answered and 0xFF is a floating bus. Neither will
	// ever clear BSY in a meaningful way, so let word 0 decide.
	status = selector.Status()
	if status != 0x00 && status != 0xFF {
		lastStatus, result := selector.Poll(id.pollLimit, false)
		switch result {
		case registers.PollTimeout:
			return atapio.DriveInfo{}, atapio.ErrIdentifyTimeout.WithMessage(
				fmt.Sprintf(
					"%s %s: still busy after %d polls (status 0x%02X)",
					channel,
					position,
					id.pollLimit,
					lastStatus,
				),
			)
		case registers.PollFault:
			// Not an ATA disk, e.g. an ATAPI device aborting the command.
			return atapio.DriveInfo{}, nil
		}
	}

	var descriptor Descriptor
	descriptor[0] = id.port.Inw(block.Data())
	if Absent(descriptor[0]) {
		return atapio.DriveInfo{}, nil
	}
	id.port.Insw(block.Data(), descriptor[1:])

	return descriptor.Parse(channel, position), nil
}
