package portio_test

import (
	"testing"

	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/portio"
	atatest "github.com/retroflex/atapio/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace__RecordsAndForwards(t *testing.T) {
	drive := atatest.NewDrive(
		t, atatest.DriveSpec{LBA28Sectors: 8}, 512, atatest.CreateRandomImage(512, 8, t))
	controller := atatest.NewController()
	controller.Attach(atapio.Primary, atapio.Master, drive)
	trace := portio.NewTrace(controller, 0)

	trace.Outb(0x1F6, 0xA0)
	trace.Outb(0x1F7, 0xEC)
	status := trace.Inb(0x1F7)
	words := make([]uint16, 4)
	trace.Insw(0x1F0, words)

	assert.NotZero(t, status)
	assert.Equal(t, drive.Descriptor[:4], words, "Insw should pass through the drive's data")

	accesses := trace.Accesses()
	require.Len(t, accesses, 7)
	assert.Equal(t, portio.Access{Op: portio.OpOutb, Port: 0x1F6, Value: 0xA0}, accesses[0])
	assert.Equal(t, portio.Access{Op: portio.OpInb, Port: 0x1F7, Value: uint16(status)}, accesses[2])
	assert.Equal(t, portio.Access{Op: portio.OpInw, Port: 0x1F0, Value: words[3]}, accesses[6])

	assert.Len(t, trace.Writes(), 2)
	assert.Equal(t, 4, trace.Count(portio.OpInw, 0x1F0))
	assert.Equal(t, 0, trace.Count(portio.OpOutw, 0x1F0))
}

func TestTrace__Limit(t *testing.T) {
	trace := portio.NewTrace(atatest.NewController(), 3)
	for i := 0; i < 5; i++ {
		trace.Inb(0x1F7)
	}
	trace.Outsw(0x1F0, []uint16{1, 2})

	assert.Len(t, trace.Accesses(), 3)
	assert.Equal(t, 4, trace.Dropped())

	trace.Reset()
	assert.Empty(t, trace.Accesses())
	assert.Zero(t, trace.Dropped())
}

func TestAccess__String(t *testing.T) {
	assert.Equal(t, "outb 0x1F6 0xE0", portio.Access{Op: portio.OpOutb, Port: 0x1F6, Value: 0xE0}.String())
	assert.Equal(t, "inw 0x170 0x0040", portio.Access{Op: portio.OpInw, Port: 0x170, Value: 0x40}.String())
	assert.True(t, portio.OpOutw.IsWrite())
	assert.False(t, portio.OpInb.IsWrite())
}
