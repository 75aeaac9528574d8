package controller_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/controller"
	atatest "github.com/retroflex/atapio/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logLine struct {
	tick    uint64
	message string
}

type recordingSink struct {
	lock  sync.Mutex
	lines []logLine
}

func (s *recordingSink) Logf(tick uint64, format string, args ...any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.lines = append(s.lines, logLine{tick: tick, message: fmt.Sprintf(format, args...)})
}

func (s *recordingSink) Lines() []logLine {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]logLine(nil), s.lines...)
}

func newDrive(t *testing.T, spec atatest.DriveSpec) *atatest.Drive {
	return atatest.NewDrive(t, spec, 512, atatest.CreateRandomImage(512, 64, t))
}

func newController(
	t *testing.T, pollLimit int,
) (*atatest.Controller, *controller.Controller, *recordingSink) {
	sim := atatest.NewController()
	sink := &recordingSink{}
	ctrl := controller.New(sim, controller.Options{
		PollLimit: pollLimit,
		Sink:      sink,
		Clock:     &atapio.CounterClock{},
	})
	return sim, ctrl, sink
}

func TestNew__Defaults(t *testing.T) {
	ctrl := controller.New(atatest.NewController(), controller.Options{})
	assert.Equal(t, controller.DefaultPollLimit, ctrl.PollLimit())

	info, err := ctrl.Identify(atapio.Primary, atapio.Master)
	require.NoError(t, err)
	assert.False(t, info.Detected)
}

func TestScan__MixedPositions(t *testing.T) {
	sim, ctrl, sink := newController(t, 1000)
	sim.Attach(atapio.Primary, atapio.Master, newDrive(t, atatest.DriveSpec{
		Model:        "QEMU HARDDISK",
		LBA28Sectors: 64,
		LBA48Sectors: 64,
	}))
	sim.Attach(atapio.Secondary, atapio.Slave, newDrive(t, atatest.DriveSpec{
		Model:    "OLD DISK",
		Geometry: atapio.Geometry{Cylinders: 4, Heads: 2, SectorsPerTrack: 8},
	}))

	results, err := ctrl.Scan()
	require.NoError(t, err)
	require.Len(t, results, 4)

	expected := []struct {
		channel  atapio.Channel
		position atapio.Position
		detected bool
	}{
		{atapio.Primary, atapio.Master, true},
		{atapio.Primary, atapio.Slave, false},
		{atapio.Secondary, atapio.Master, false},
		{atapio.Secondary, atapio.Slave, true},
	}
	for i, want := range expected {
		assert.Equal(t, want.channel, results[i].Channel)
		assert.Equal(t, want.position, results[i].Position)
		assert.Equalf(t, want.detected, results[i].Drive.Detected, "result %d", i)
		assert.NoError(t, results[i].Err)
	}
	assert.Equal(t, atapio.LBA48, results[0].Drive.Addressing)
	assert.Equal(t, atapio.CHS, results[3].Drive.Addressing)

	drives := controller.Detected(results)
	require.Len(t, drives, 2)
	assert.Equal(t, "OLD DISK", drives[1].Model)

	lines := sink.Lines()
	require.Len(t, lines, 4, "one line per position")
	assert.Contains(t, lines[0].message, "QEMU HARDDISK")
	assert.Equal(t, "Primary Slave: no drive", lines[1].message)
	for i := 1; i < len(lines); i++ {
		assert.Greater(t, lines[i].tick, lines[i-1].tick, "ticks must increase")
	}
}

// A hung drive doesn't stop the rest of the scan, and its error comes back in
// the aggregate.
func TestScan__TimeoutIsCollected(t *testing.T) {
	sim, ctrl, sink := newController(t, 50)

	hung := newDrive(t, atatest.DriveSpec{LBA28Sectors: 64})
	hung.Hang = true
	sim.Attach(atapio.Primary, atapio.Slave, hung)
	sim.Attach(atapio.Secondary, atapio.Master, newDrive(t, atatest.DriveSpec{LBA28Sectors: 64}))

	results, err := ctrl.Scan()
	require.Error(t, err)
	assert.ErrorIs(t, err, atapio.ErrIdentifyTimeout)
	require.Len(t, results, 4)

	assert.ErrorIs(t, results[1].Err, atapio.ErrIdentifyTimeout)
	assert.False(t, results[1].Drive.Detected)
	assert.True(t, results[2].Drive.Detected)

	lines := sink.Lines()
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1].message, "identification failed")
}

func TestIdentify__InvalidLocation(t *testing.T) {
	_, ctrl, _ := newController(t, 10)

	_, err := ctrl.Identify(atapio.Channel(2), atapio.Master)
	assert.ErrorIs(t, err, atapio.ErrInvalidArgument)

	_, err = ctrl.Identify(atapio.Primary, atapio.Position(-1))
	assert.ErrorIs(t, err, atapio.ErrInvalidArgument)
}

func TestReadWrite__RoundTrip(t *testing.T) {
	sim, ctrl, _ := newController(t, 1000)
	drive := newDrive(t, atatest.DriveSpec{LBA28Sectors: 64})
	sim.Attach(atapio.Secondary, atapio.Slave, drive)

	info, err := ctrl.Identify(atapio.Secondary, atapio.Slave)
	require.NoError(t, err)

	data := atatest.CreateRandomImage(512, 4, t)
	require.NoError(t, ctrl.WriteSectors(&info, 20, data))
	require.NoError(t, ctrl.Flush(&info))

	readBack := make([]byte, len(data))
	require.NoError(t, ctrl.ReadSectors(&info, 20, readBack))
	assert.Equal(t, data, readBack)
	assert.Equal(t, 4, drive.WrittenCount())
}

func TestReadSectors__FailureIsLogged(t *testing.T) {
	sim, ctrl, sink := newController(t, 1000)
	drive := newDrive(t, atatest.DriveSpec{LBA28Sectors: 64})
	sim.Attach(atapio.Primary, atapio.Master, drive)

	info, err := ctrl.Identify(atapio.Primary, atapio.Master)
	require.NoError(t, err)
	drive.FailCommand = 1

	err = ctrl.ReadSectors(&info, 3, make([]byte, 512))
	assert.ErrorIs(t, err, atapio.ErrDriveFault)

	lines := sink.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1].message, "read of 512 bytes at sector 3 failed")
}

func TestReadSectors__NotDetected(t *testing.T) {
	_, ctrl, sink := newController(t, 1000)

	err := ctrl.ReadSectors(&atapio.DriveInfo{}, 0, make([]byte, 512))
	assert.ErrorIs(t, err, atapio.ErrDriveNotPresent)
	assert.Len(t, sink.Lines(), 1)
}

// Several goroutines hammering both channels at once must never interleave
// register sequences within a channel.
func TestReadSectors__Concurrent(t *testing.T) {
	sim, ctrl, _ := newController(t, 1000)

	type target struct {
		info     atapio.DriveInfo
		expected [][]byte
	}
	var targets []*target

	for _, channel := range atapio.Channels {
		for _, position := range atapio.Positions {
			drive := newDrive(t, atatest.DriveSpec{LBA28Sectors: 64})
			sim.Attach(channel, position, drive)

			info, err := ctrl.Identify(channel, position)
			require.NoError(t, err)

			tgt := &target{info: info}
			for sector := uint64(0); sector < 64; sector++ {
				tgt.expected = append(tgt.expected, drive.Sector(sector))
			}
			targets = append(targets, tgt)
		}
	}

	var group sync.WaitGroup
	failures := make(chan string, 1000)

	for worker := 0; worker < 8; worker++ {
		group.Add(1)
		go func(worker int) {
			defer group.Done()
			tgt := targets[worker%len(targets)]
			buffer := make([]byte, 2*512)

			for i := 0; i < 25; i++ {
				sector := uint64((worker*7 + i*3) % 63)
				if err := ctrl.ReadSectors(&tgt.info, sector, buffer); err != nil {
					failures <- err.Error()
					return
				}
				if string(buffer[:512]) != string(tgt.expected[sector]) ||
					string(buffer[512:]) != string(tgt.expected[sector+1]) {
					failures <- fmt.Sprintf("worker %d: wrong data for sector %d", worker, sector)
					return
				}
			}
		}(worker)
	}

	group.Wait()
	close(failures)
	for failure := range failures {
		t.Error(failure)
	}
}
