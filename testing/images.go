package testing

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/retroflex/atapio"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage creates a disk image with the given number of sectors and
// bytes per sector. It is guaranteed to either return a valid slice or fail the
// test and abort.
func CreateRandomImage(bytesPerSector, totalSectors uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerSector*totalSectors)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d sectors of size %d with random bytes",
		totalSectors,
		bytesPerSector,
	)
	return backingData
}

// DriveSpec describes what a simulated drive reports in its IDENTIFY
// descriptor. Zero fields are left zero in the descriptor.
type DriveSpec struct {
	// GeneralConfig is word 0. If zero, 0x0040 (fixed, non-removable ATA
	// device) is used, since a zero word 0 means "no drive".
	GeneralConfig uint16
	Model         string
	Serial        string
	Firmware      string

	// Geometry is written to the current-geometry words 54-56 and word 53
	// bit 0 is set, unless DefaultGeometryOnly is true, in which case it goes
	// to the default-geometry words 1, 3 and 6 instead.
	Geometry            atapio.Geometry
	DefaultGeometryOnly bool

	LBA28Sectors uint32
	// LBA48Sectors also sets the LBA48 feature bit (word 83 bit 10) if nonzero.
	LBA48Sectors uint64
	UDMA         uint16
	Cable80      bool
	// SectorSizeWord is written verbatim to word 106.
	SectorSizeWord uint16
}

// putWords writes `values` as little-endian words starting at word `index` of
// the raw 512-byte descriptor.
func putWords(raw []byte, index int, values ...uint16) error {
	writer := bytewriter.New(raw[index*2:])
	return binary.Write(writer, binary.LittleEndian, values)
}

// putString writes an ATA string: two ASCII characters per word, first
// character in the high byte, padded with spaces.
func putString(raw []byte, index int, nWords int, s string) error {
	padded := make([]byte, nWords*2)
	for i := range padded {
		padded[i] = ' '
	}
	copy(padded, s)

	words := make([]uint16, nWords)
	for i := range words {
		words[i] = uint16(padded[2*i])<<8 | uint16(padded[2*i+1])
	}
	return putWords(raw, index, words...)
}

// BuildDescriptor serializes a DriveSpec into the 256 words returned by
// IDENTIFY DEVICE.
func BuildDescriptor(spec DriveSpec) ([256]uint16, error) {
	var descriptor [256]uint16
	raw := make([]byte, 512)

	generalConfig := spec.GeneralConfig
	if generalConfig == 0 {
		generalConfig = 0x0040
	}

	err := putWords(raw, 0, generalConfig)
	if err != nil {
		return descriptor, err
	}

	geometry := spec.Geometry
	if spec.DefaultGeometryOnly {
		err = putWords(raw, 1, uint16(geometry.Cylinders))
		if err == nil {
			err = putWords(raw, 3, uint16(geometry.Heads))
		}
		if err == nil {
			err = putWords(raw, 6, uint16(geometry.SectorsPerTrack))
		}
	} else if geometry.Valid() {
		err = putWords(raw, 53, 0x0001,
			uint16(geometry.Cylinders),
			uint16(geometry.Heads),
			uint16(geometry.SectorsPerTrack))
	}
	if err != nil {
		return descriptor, err
	}

	steps := []func() error{
		func() error { return putString(raw, 10, 10, spec.Serial) },
		func() error { return putString(raw, 23, 4, spec.Firmware) },
		func() error { return putString(raw, 27, 20, spec.Model) },
		func() error {
			return putWords(raw, 60, uint16(spec.LBA28Sectors), uint16(spec.LBA28Sectors>>16))
		},
		func() error { return putWords(raw, 88, spec.UDMA) },
		func() error { return putWords(raw, 106, spec.SectorSizeWord) },
	}
	if spec.LBA48Sectors > 0 {
		steps = append(steps,
			func() error { return putWords(raw, 83, 1<<10) },
			func() error {
				return putWords(raw, 100,
					uint16(spec.LBA48Sectors),
					uint16(spec.LBA48Sectors>>16),
					uint16(spec.LBA48Sectors>>32),
					uint16(spec.LBA48Sectors>>48))
			},
		)
	}
	if spec.Cable80 {
		steps = append(steps, func() error { return putWords(raw, 93, 1<<11) })
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return descriptor, err
		}
	}

	for i := range descriptor {
		descriptor[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return descriptor, nil
}

// MustBuildDescriptor is BuildDescriptor that fails the test on error.
func MustBuildDescriptor(t *testing.T, spec DriveSpec) [256]uint16 {
	descriptor, err := BuildDescriptor(spec)
	require.NoError(t, err, "failed to build IDENTIFY descriptor")
	return descriptor
}
