package identify_test

import (
	"testing"

	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/identify"
	atatest "github.com/retroflex/atapio/testing"
	"github.com/stretchr/testify/assert"
)

func TestResolveAddressing__Priority(t *testing.T) {
	assert.Equal(t, atapio.LBA48, identify.ResolveAddressing(1, 1))
	assert.Equal(t, atapio.LBA48, identify.ResolveAddressing(1, 0))
	assert.Equal(t, atapio.LBA28, identify.ResolveAddressing(0, 1))
	assert.Equal(t, atapio.CHS, identify.ResolveAddressing(0, 0))
}

// Whatever the capacities, exactly one mode comes out and it's never unknown.
func TestResolveAddressing__TotalAndExclusive(t *testing.T) {
	values48 := []uint64{0, 1, 0xFFFFFFFF, 1 << 47}
	values28 := []uint32{0, 1, 0x0FFFFFFF}

	for _, lba48 := range values48 {
		for _, lba28 := range values28 {
			mode := identify.ResolveAddressing(lba48, lba28)
			assert.Contains(t, []atapio.Mode{atapio.CHS, atapio.LBA28, atapio.LBA48}, mode)

			switch {
			case lba48 > 0:
				assert.Equal(t, atapio.LBA48, mode)
			case lba28 > 0:
				assert.Equal(t, atapio.LBA28, mode)
			default:
				assert.Equal(t, atapio.CHS, mode)
			}
		}
	}
}

func TestParse__Word83AndWords100To103SelectLBA48(t *testing.T) {
	descriptor := identify.Descriptor(atatest.MustBuildDescriptor(t, atatest.DriveSpec{
		LBA28Sectors: 0x0FFFFFFF,
		LBA48Sectors: 0x1_0000_0000,
	}))
	assert.True(t, descriptor.LBA48Capable())

	info := descriptor.Parse(atapio.Primary, atapio.Master)
	assert.Equal(t, atapio.LBA48, info.Addressing)
}

func TestParse__ChsWithoutGeometry(t *testing.T) {
	var descriptor identify.Descriptor
	descriptor[0] = 0x0040

	info := descriptor.Parse(atapio.Primary, atapio.Slave)
	assert.Equal(t, atapio.CHS, info.Addressing)
	assert.False(t, info.Geometry.Valid())
}
