// Package blockdev presents a detected drive as a byte-addressable stream, so
// that it can be used wherever an io.ReaderAt or io.WriterAt is expected.
//
// Nothing is cached. Unaligned writes read the surrounding sectors first and
// write them back whole.
package blockdev

import (
	"fmt"
	"io"

	"github.com/retroflex/atapio"
)

// SectorIO is satisfied by both controller.Controller and sectorio.Engine.
type SectorIO interface {
	ReadSectors(drive *atapio.DriveInfo, start uint64, buffer []byte) error
	WriteSectors(drive *atapio.DriveInfo, start uint64, buffer []byte) error
	Flush(drive *atapio.DriveInfo) error
}

// Device is a window of whole sectors on one drive.
//
// The exposed fields are for informational purposes only and should never be
// changed.
type Device struct {
	// BytesPerBlock is the drive's sector size.
	BytesPerBlock uint
	// TotalBlocks is the number of sectors in the window.
	TotalBlocks uint64
	// StartBlock is the drive sector that is block 0 of this device. This is
	// useful for skipping over an MBR or addressing a single partition.
	StartBlock uint64

	sectors SectorIO
	drive   atapio.DriveInfo
}

// New creates a Device covering `totalBlocks` sectors of `drive` starting at
// `startBlock`. If `totalBlocks` is 0, the window extends to the end of the
// drive.
func New(
	sectors SectorIO, drive atapio.DriveInfo, startBlock uint64, totalBlocks uint64,
) (*Device, error) {
	if !drive.Detected {
		return nil, atapio.ErrDriveNotPresent
	}

	capacity := drive.Capacity()
	if startBlock >= capacity {
		return nil, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("start block %d not in range [0, %d)", startBlock, capacity))
	}
	if totalBlocks == 0 {
		totalBlocks = capacity - startBlock
	} else if totalBlocks > capacity-startBlock {
		return nil, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"%d blocks from block %d extends past the end of the drive (%d blocks)",
				totalBlocks,
				startBlock,
				capacity,
			))
	}

	return &Device{
		BytesPerBlock: uint(drive.SectorSize),
		TotalBlocks:   totalBlocks,
		StartBlock:    startBlock,
		sectors:       sectors,
		drive:         drive,
	}, nil
}

// Drive returns the drive the device was created on.
func (d *Device) Drive() atapio.DriveInfo {
	return d.drive
}

// Size returns the size of the device in bytes.
func (d *Device) Size() int64 {
	return int64(d.TotalBlocks) * int64(d.BytesPerBlock)
}

// CheckIOBounds checks to see if `dataLength` bytes can be read from or
// written to the device, starting at `block`.
func (d *Device) CheckIOBounds(block uint64, dataLength uint) error {
	if block >= d.TotalBlocks {
		return atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid block %d: not in range [0, %d)", block, d.TotalBlocks))
	}

	if dataLength%d.BytesPerBlock != 0 {
		return atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"data must be a multiple of the block size (%d B), got %d (remainder %d)",
				d.BytesPerBlock,
				dataLength,
				dataLength%d.BytesPerBlock,
			))
	}

	blocks := uint64(dataLength / d.BytesPerBlock)
	if blocks > d.TotalBlocks-block {
		return atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("block %d plus %d blocks of data extends past end of device", block, blocks))
	}
	return nil
}

// Read returns `count` whole blocks starting at `block`.
func (d *Device) Read(block uint64, count uint) ([]byte, error) {
	buffer := make([]byte, count*d.BytesPerBlock)
	if err := d.CheckIOBounds(block, uint(len(buffer))); err != nil {
		return nil, err
	}
	if err := d.sectors.ReadSectors(&d.drive, d.StartBlock+block, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

// Write writes whole blocks starting at `block`. `data` must be a multiple of
// the block size.
func (d *Device) Write(block uint64, data []byte) error {
	if err := d.CheckIOBounds(block, uint(len(data))); err != nil {
		return err
	}
	return d.sectors.WriteSectors(&d.drive, d.StartBlock+block, data)
}

// Sync asks the drive to commit its own write cache.
func (d *Device) Sync() error {
	return d.sectors.Flush(&d.drive)
}

// span returns the range of whole blocks covering `length` bytes at byte
// offset `offset`, clipped to the end of the device. ok is false if nothing
// at `offset` is on the device.
func (d *Device) span(offset int64, length int) (first uint64, count uint, clipped int, ok bool) {
	size := d.Size()
	if offset < 0 || offset >= size || length == 0 {
		return 0, 0, 0, false
	}

	clipped = length
	if int64(clipped) > size-offset {
		clipped = int(size - offset)
	}

	blockSize := int64(d.BytesPerBlock)
	first = uint64(offset / blockSize)
	last := uint64((offset + int64(clipped) - 1) / blockSize)
	return first, uint(last-first) + 1, clipped, true
}

// ReadAt implements [io.ReaderAt].
func (d *Device) ReadAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, atapio.ErrInvalidArgument.WithMessage(fmt.Sprintf("negative offset %d", offset))
	}
	if len(p) == 0 {
		return 0, nil
	}

	first, count, clipped, ok := d.span(offset, len(p))
	if !ok {
		return 0, io.EOF
	}

	data, err := d.Read(first, count)
	if err != nil {
		return 0, err
	}

	skip := offset - int64(first)*int64(d.BytesPerBlock)
	n := copy(p, data[skip:skip+int64(clipped)])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements [io.WriterAt]. Writing past the end of the device is an
// error; nothing past the end is written.
func (d *Device) WriteAt(p []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, atapio.ErrInvalidArgument.WithMessage(fmt.Sprintf("negative offset %d", offset))
	}
	if len(p) == 0 {
		return 0, nil
	}

	first, count, clipped, ok := d.span(offset, len(p))
	if !ok {
		return 0, io.ErrShortWrite
	}

	blockSize := int64(d.BytesPerBlock)
	skip := offset - int64(first)*blockSize

	var data []byte
	if skip == 0 && int64(clipped)%blockSize == 0 {
		data = p[:clipped]
	} else {
		var err error
		data, err = d.Read(first, count)
		if err != nil {
			return 0, err
		}
		copy(data[skip:], p[:clipped])
	}

	if err := d.Write(first, data); err != nil {
		return 0, err
	}
	if clipped < len(p) {
		return clipped, io.ErrShortWrite
	}
	return clipped, nil
}

// Reader returns an io.ReadSeeker over the whole device.
func (d *Device) Reader() *io.SectionReader {
	return io.NewSectionReader(d, 0, d.Size())
}
