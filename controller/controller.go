// Package controller ties identification and sector I/O together for all four
// drive positions behind one [atapio.PortIO], serializing access per channel
// and reporting what happens to a diagnostic sink.
package controller

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/identify"
	"github.com/retroflex/atapio/sectorio"
)

// DefaultPollLimit is the number of status reads after which a drive is
// considered unresponsive, if Options doesn't give one.
const DefaultPollLimit = 100000

type Options struct {
	// PollLimit bounds every wait on the status register. Zero or less means
	// DefaultPollLimit.
	PollLimit int
	// Sink receives diagnostics. Nil discards them.
	Sink atapio.DiagnosticSink
	// Clock tags diagnostic lines. Nil means a MonotonicClock started by New.
	Clock atapio.Clock
}

// ScanResult is the outcome of identifying one drive position.
type ScanResult struct {
	Channel  atapio.Channel
	Position atapio.Position
	Drive    atapio.DriveInfo
	// Err is set only if identification failed outright, i.e. timed out.
	Err error
}

// Controller is safe for concurrent use. Operations on different channels
// proceed in parallel; operations on the same channel are serialized, since
// both of its drives share one register block.
type Controller struct {
	identifier *identify.Identifier
	engine     *sectorio.Engine
	sink       atapio.DiagnosticSink
	clock      atapio.Clock
	pollLimit  int
	locks      [2]sync.Mutex
}

func New(port atapio.PortIO, options Options) *Controller {
	if options.PollLimit <= 0 {
		options.PollLimit = DefaultPollLimit
	}
	if options.Sink == nil {
		options.Sink = atapio.NopSink
	}
	if options.Clock == nil {
		options.Clock = atapio.NewMonotonicClock()
	}

	return &Controller{
		identifier: identify.New(port, options.PollLimit),
		engine:     sectorio.New(port, options.PollLimit),
		sink:       options.Sink,
		clock:      options.Clock,
		pollLimit:  options.PollLimit,
	}
}

// PollLimit returns the limit in effect after defaults were applied.
func (c *Controller) PollLimit() int {
	return c.pollLimit
}

func (c *Controller) logf(format string, args ...any) {
	c.sink.Logf(c.clock.Ticks(), format, args...)
}

func (c *Controller) lockFor(channel atapio.Channel) (*sync.Mutex, error) {
	if !channel.Valid() {
		return nil, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no such channel: %s", channel))
	}
	return &c.locks[channel], nil
}

// Identify probes one drive position. An empty position is not an error; it
// gives a DriveInfo with Detected set to false.
func (c *Controller) Identify(
	channel atapio.Channel, position atapio.Position,
) (atapio.DriveInfo, error) {
	lock, err := c.lockFor(channel)
	if err != nil {
		return atapio.DriveInfo{}, err
	}
	if !position.Valid() {
		return atapio.DriveInfo{}, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no such position: %s", position))
	}

	lock.Lock()
	info, err := c.identifier.Identify(channel, position)
	lock.Unlock()

	switch {
	case err != nil:
		c.logf("%s %s: identification failed: %s", channel, position, err)
	case !info.Detected:
		c.logf("%s %s: no drive", channel, position)
	default:
		c.logf("%s", info.String())
	}
	return info, err
}

// Scan identifies every drive position in order: primary master, primary
// slave, secondary master, secondary slave. A position that fails doesn't
// stop the scan; all failures are returned together.
func (c *Controller) Scan() ([]ScanResult, error) {
	var errs *multierror.Error
	results := make([]ScanResult, 0, len(atapio.Channels)*len(atapio.Positions))

	for _, channel := range atapio.Channels {
		for _, position := range atapio.Positions {
			info, err := c.Identify(channel, position)
			if err != nil {
				errs = multierror.Append(errs, err)
			}
			results = append(results, ScanResult{
				Channel:  channel,
				Position: position,
				Drive:    info,
				Err:      err,
			})
		}
	}
	return results, errs.ErrorOrNil()
}

// Detected filters `results` down to the drives that were found.
func Detected(results []ScanResult) []atapio.DriveInfo {
	var drives []atapio.DriveInfo
	for _, result := range results {
		if result.Drive.Detected {
			drives = append(drives, result.Drive)
		}
	}
	return drives
}

func (c *Controller) withChannel(drive *atapio.DriveInfo, operation func() error) error {
	if drive == nil || !drive.Detected {
		return atapio.ErrDriveNotPresent
	}
	lock, err := c.lockFor(drive.Channel)
	if err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()
	return operation()
}

// ReadSectors reads consecutive sectors into `buffer`. See
// [sectorio.Engine.ReadSectors].
func (c *Controller) ReadSectors(drive *atapio.DriveInfo, start uint64, buffer []byte) error {
	err := c.withChannel(drive, func() error {
		return c.engine.ReadSectors(drive, start, buffer)
	})
	if err != nil {
		c.logf("read of %d bytes at sector %d failed: %s", len(buffer), start, err)
	}
	return err
}

// WriteSectors writes `buffer` to consecutive sectors. See
// [sectorio.Engine.WriteSectors].
func (c *Controller) WriteSectors(drive *atapio.DriveInfo, start uint64, buffer []byte) error {
	err := c.withChannel(drive, func() error {
		return c.engine.WriteSectors(drive, start, buffer)
	})
	if err != nil {
		c.logf("write of %d bytes at sector %d failed: %s", len(buffer), start, err)
	}
	return err
}

func (c *Controller) Flush(drive *atapio.DriveInfo) error {
	err := c.withChannel(drive, func() error {
		return c.engine.Flush(drive)
	})
	if err != nil {
		c.logf("flush failed: %s", err)
	}
	return err
}
