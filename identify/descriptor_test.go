package identify_test

import (
	"testing"

	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/identify"
	atatest "github.com/retroflex/atapio/testing"
	"github.com/stretchr/testify/assert"
)

func parseSpec(t *testing.T, spec atatest.DriveSpec) atapio.DriveInfo {
	descriptor := identify.Descriptor(atatest.MustBuildDescriptor(t, spec))
	return descriptor.Parse(atapio.Secondary, atapio.Master)
}

func TestDescriptor__Strings(t *testing.T) {
	info := parseSpec(t, atatest.DriveSpec{
		Model:        "WDC WD800JB-00JJC0",
		Serial:       "  WD-WCAM9123456",
		Firmware:     "05.01C05",
		LBA28Sectors: 1000,
	})

	assert.Equal(t, "WDC WD800JB-00JJC0", info.Model)
	assert.Equal(t, "WD-WCAM9123456", info.Serial)
	assert.Equal(t, "05.01C05", info.Firmware)
	assert.Equal(t, atapio.Secondary, info.Channel)
	assert.Equal(t, atapio.Master, info.Position)
}

// Each word of the model string holds its first character in the high byte.
func TestDescriptor__ModelIsByteSwapped(t *testing.T) {
	var descriptor identify.Descriptor
	descriptor[27] = 'Q'<<8 | 'E'
	descriptor[28] = 'M'<<8 | 'U'
	descriptor[29] = 0

	assert.Equal(t, "QEMU", descriptor.Model())
}

func TestDescriptor__Capabilities(t *testing.T) {
	info := parseSpec(t, atatest.DriveSpec{
		LBA28Sectors: 0x0FFFFFFF,
		LBA48Sectors: 0x0000_1234_5678_9ABC,
		UDMA:         0x203F,
		Cable80:      true,
	})

	assert.True(t, info.Detected)
	assert.True(t, info.LBA48Capable, "word 83 bit 10 not decoded")
	assert.EqualValues(t, 0x0FFFFFFF, info.LBA28Sectors)
	assert.EqualValues(t, 0x0000_1234_5678_9ABC, info.LBA48Sectors)
	assert.EqualValues(t, 0x203F, info.SupportedUDMAModes)
	assert.True(t, info.Cable80, "word 93 bit 11 not decoded")
	assert.EqualValues(t, 0x0040, info.GeneralConfig)
}

func TestDescriptor__SectorSize(t *testing.T) {
	cases := []struct {
		word106  uint16
		expected uint32
	}{
		{0, 512},
		{1, 512},
		{2, 1024},
		{4, 2048},
		{8, 4096},
		{3, 512},
		{16, 512},
		{0x4000, 512},
	}

	for _, tc := range cases {
		var descriptor identify.Descriptor
		descriptor[106] = tc.word106
		assert.Equalf(
			t, tc.expected, descriptor.SectorSize(), "wrong sector size for word 106 = %#x", tc.word106)
	}
}

func TestDescriptor__CurrentGeometry(t *testing.T) {
	geometry := atapio.Geometry{Cylinders: 1024, Heads: 16, SectorsPerTrack: 63}
	info := parseSpec(t, atatest.DriveSpec{Geometry: geometry})
	assert.Equal(t, geometry, info.Geometry)
}

func TestDescriptor__DefaultGeometryFallback(t *testing.T) {
	geometry := atapio.Geometry{Cylinders: 615, Heads: 4, SectorsPerTrack: 17}
	info := parseSpec(t, atatest.DriveSpec{Geometry: geometry, DefaultGeometryOnly: true})
	assert.Equal(t, geometry, info.Geometry)
}

func TestDescriptor__Absent(t *testing.T) {
	assert.True(t, identify.Absent(0x0000))
	assert.True(t, identify.Absent(0xFFFF))
	assert.False(t, identify.Absent(0x0040))
	assert.False(t, identify.Absent(0x8000))
}
