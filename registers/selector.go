package registers

import (
	"github.com/retroflex/atapio"
)

// PollResult is the outcome of waiting on the status register.
type PollResult int

const (
	// PollReady means BSY cleared without ERR or DF, and DRQ is set if it was
	// asked for.
	PollReady PollResult = iota
	// PollTimeout means the limit ran out first.
	PollTimeout
	// PollFault means BSY cleared with ERR or DF set.
	PollFault
)

func (r PollResult) String() string {
	switch r {
	case PollReady:
		return "ready"
	case PollTimeout:
		return "timed out"
	case PollFault:
		return "fault"
	}
	return "?"
}

// Selector issues register accesses for one channel. It's a plain value: two
// Selectors for the same channel are interchangeable.
type Selector struct {
	Port  atapio.PortIO
	Block Block
}

// NewSelector returns a selector for `channel` using `port` for all I/O.
func NewSelector(port atapio.PortIO, channel atapio.Channel) Selector {
	return Selector{Port: port, Block: ForChannel(channel)}
}

// Select makes `position` the target of subsequent register writes, then
// waits the ~400ns the drive needs to respond by reading the alternate status
// register four times.
func (s Selector) Select(position atapio.Position, addrBits uint8) {
	s.Port.Outb(s.Block.DriveSelect(), SelectValue(position, addrBits))
	s.Settle()
}

// SelectAndWait selects `position` like [Selector.Select], then waits for the
// drive with [Selector.WaitIdle]. A drive that is still busy ignores
// task-file writes, so nothing may be programmed until this returns
// [PollReady].
func (s Selector) SelectAndWait(
	position atapio.Position, addrBits uint8, limit int,
) (uint8, PollResult) {
	s.Select(position, addrBits)
	return s.WaitIdle(limit)
}

// WaitIdle reads the status register up to `limit` times until neither BSY nor
// DRQ is set. ERR and DF are left for the next command to report. A status of
// 0xFF means nothing is driving the bus; it is returned as ready at once and
// the command that follows finds out there is no drive.
//
// A limit of zero or less is treated as one read.
func (s Selector) WaitIdle(limit int) (uint8, PollResult) {
	var status uint8

	if limit <= 0 {
		limit = 1
	}

	for i := 0; i < limit; i++ {
		status = s.Status()
		if status == 0xFF || status&(StatusBSY|StatusDRQ) == 0 {
			return status, PollReady
		}
	}
	return status, PollTimeout
}

// ErrorRegister reads the error register of the selected drive.
func (s Selector) ErrorRegister() uint8 {
	return s.Port.Inb(s.Block.ErrorRegister())
}

// Settle reads the alternate status register four times. The alternate status
// port doesn't acknowledge interrupts, so this has no side effect on the drive.
func (s Selector) Settle() {
	for i := 0; i < 4; i++ {
		s.Port.Inb(s.Block.AltStatus())
	}
}

// Status reads the status register.
func (s Selector) Status() uint8 {
	return s.Port.Inb(s.Block.Status())
}

// DisableInterrupts sets nIEN so the drive never raises IRQ 14/15. The driver
// only ever polls.
func (s Selector) DisableInterrupts() {
	s.Port.Outb(s.Block.DeviceControl(), ControlNIEN)
}

// Command writes a command byte.
func (s Selector) Command(command uint8) {
	s.Port.Outb(s.Block.Command(), command)
}

// Poll reads the status register up to `limit` times, waiting for BSY to
// clear. If `needDRQ` is true, it also waits for DRQ once BSY is clear. The
// last status value read is returned alongside the result.
//
// A limit of zero or less is treated as one read.
func (s Selector) Poll(limit int, needDRQ bool) (uint8, PollResult) {
	var status uint8

	if limit <= 0 {
		limit = 1
	}

	for i := 0; i < limit; i++ {
		status = s.Status()
		if status&StatusBSY != 0 {
			continue
		}
		if status&(StatusERR|StatusDF) != 0 {
			return status, PollFault
		}
		if !needDRQ || status&StatusDRQ != 0 {
			return status, PollReady
		}
	}
	return status, PollTimeout
}
