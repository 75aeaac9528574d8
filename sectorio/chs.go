package sectorio

import (
	"fmt"

	"github.com/retroflex/atapio"
)

// Register-imposed limits on CHS addresses: 16-bit cylinder, 4-bit head and
// 8-bit, 1-based sector number.
const (
	maxCylinders       = 65536
	maxHeads           = 16
	maxSectorsPerTrack = 255
)

// CHSAddress is a cylinder/head/sector triple. Sector is 1-based.
type CHSAddress struct {
	Cylinder uint32
	Head     uint32
	Sector   uint32
}

func (a CHSAddress) String() string {
	return fmt.Sprintf("C%d/H%d/S%d", a.Cylinder, a.Head, a.Sector)
}

// checkGeometry returns an error if `geometry` can't be used to address a
// drive through the task file registers.
func checkGeometry(geometry atapio.Geometry) error {
	if !geometry.Valid() {
		return atapio.ErrUnsupportedAddressingMode.WithMessage(
			fmt.Sprintf("drive reported no CHS geometry (%+v)", geometry))
	}
	if geometry.Cylinders > maxCylinders ||
		geometry.Heads > maxHeads ||
		geometry.SectorsPerTrack > maxSectorsPerTrack {
		return atapio.ErrUnsupportedAddressingMode.WithMessage(
			fmt.Sprintf("geometry %+v exceeds CHS register limits", geometry))
	}
	return nil
}

// ToCHS translates a linear sector index into a CHS address using `geometry`.
func ToCHS(index uint64, geometry atapio.Geometry) (CHSAddress, error) {
	if !geometry.Valid() {
		return CHSAddress{}, atapio.ErrUnsupportedAddressingMode.WithMessage(
			"can't translate without a geometry")
	}
	if index >= geometry.TotalSectors() {
		return CHSAddress{}, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"sector %d not in range [0, %d)", index, geometry.TotalSectors()))
	}

	return toCHS(index, geometry), nil
}

// toCHS is ToCHS without the checks. `geometry` must be valid and `index`
// below its total sector count.
func toCHS(index uint64, geometry atapio.Geometry) CHSAddress {
	heads := uint64(geometry.Heads)
	sectorsPerTrack := uint64(geometry.SectorsPerTrack)
	return CHSAddress{
		Cylinder: uint32(index / (heads * sectorsPerTrack)),
		Head:     uint32((index / sectorsPerTrack) % heads),
		Sector:   uint32(index%sectorsPerTrack) + 1,
	}
}

// FromCHS is the inverse of ToCHS.
func FromCHS(address CHSAddress, geometry atapio.Geometry) (uint64, error) {
	if !geometry.Valid() {
		return 0, atapio.ErrUnsupportedAddressingMode.WithMessage(
			"can't translate without a geometry")
	}
	if address.Cylinder >= geometry.Cylinders ||
		address.Head >= geometry.Heads ||
		address.Sector < 1 ||
		address.Sector > geometry.SectorsPerTrack {
		return 0, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s is outside geometry %+v", address, geometry))
	}

	heads := uint64(geometry.Heads)
	sectorsPerTrack := uint64(geometry.SectorsPerTrack)
	return (uint64(address.Cylinder)*heads+uint64(address.Head))*sectorsPerTrack +
		uint64(address.Sector-1), nil
}
