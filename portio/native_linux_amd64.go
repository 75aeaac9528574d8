//go:build linux && amd64

package portio

import (
	"fmt"

	"github.com/retroflex/atapio/registers"
	"golang.org/x/sys/unix"
)

func inb(port uint16) uint8
func outb(port uint16, value uint8)
func inw(port uint16) uint16
func outw(port uint16, value uint16)

// Native performs real port I/O with the IN/OUT instructions. The process
// needs CAP_SYS_RAWIO; OpenNative requests access to the legacy ATA ports
// with ioperm(2).
type Native struct{}

var ataPortRanges = []registers.Block{registers.PrimaryBlock, registers.SecondaryBlock}

// OpenNative grants the calling thread access to both legacy ATA register
// blocks.
//
// ioperm(2) permissions are per-thread. Callers must lock the goroutine to its
// OS thread (runtime.LockOSThread) before calling this and keep it locked for
// as long as the returned value is used.
func OpenNative() (*Native, error) {
	for _, block := range ataPortRanges {
		if err := unix.Ioperm(int(block.Base), 8, 1); err != nil {
			return nil, fmt.Errorf("ioperm(0x%03X, 8): %w", block.Base, err)
		}
		if err := unix.Ioperm(int(block.Control), 1, 1); err != nil {
			return nil, fmt.Errorf("ioperm(0x%03X, 1): %w", block.Control, err)
		}
	}
	return &Native{}, nil
}

// Close drops the port permissions granted by OpenNative.
func (n *Native) Close() error {
	for _, block := range ataPortRanges {
		if err := unix.Ioperm(int(block.Base), 8, 0); err != nil {
			return err
		}
		if err := unix.Ioperm(int(block.Control), 1, 0); err != nil {
			return err
		}
	}
	return nil
}

func (*Native) Inb(port uint16) uint8          { return inb(port) }
func (*Native) Outb(port uint16, value uint8)  { outb(port, value) }
func (*Native) Inw(port uint16) uint16         { return inw(port) }
func (*Native) Outw(port uint16, value uint16) { outw(port, value) }

func (*Native) Insw(port uint16, buffer []uint16) {
	for i := range buffer {
		buffer[i] = inw(port)
	}
}

func (*Native) Outsw(port uint16, buffer []uint16) {
	for _, word := range buffer {
		outw(port, word)
	}
}
