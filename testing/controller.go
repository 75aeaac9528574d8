package testing

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/boljen/go-bitmap"
	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/registers"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Drive is a simulated ATA hard drive. Exported fields control fault
// injection and may be changed between commands.
type Drive struct {
	Descriptor [256]uint16
	SectorSize uint
	// Geometry is used to translate CHS addresses into media offsets.
	Geometry atapio.Geometry

	// BusyPolls is the number of status reads that report BSY after each
	// command before the command completes.
	BusyPolls int
	// SelectBusyPolls is the number of status reads that report BSY after
	// each write to the drive select register. While BSY is reported, the
	// drive ignores task-file writes and commands, as real drives do.
	SelectBusyPolls int
	// Hang keeps BSY set forever after the next command.
	Hang bool
	// FailCommand makes the Nth data command (reads and writes, counted from
	// 1 across the drive's lifetime) complete with ERR set. Zero disables it.
	FailCommand int
	// AbortIdentify makes IDENTIFY DEVICE fail with ERR|ABRT, as an ATAPI
	// device would.
	AbortIdentify bool

	media        io.ReadWriteSeeker
	totalSectors uint
	written      bitmap.Bitmap
	dataCommands int
}

// NewDrive creates a simulated drive whose media is `image`. The image size
// must be a multiple of the sector size.
func NewDrive(t *testing.T, spec DriveSpec, sectorSize uint, image []byte) *Drive {
	require.Zerof(
		t,
		uint(len(image))%sectorSize,
		"image size %d is not a multiple of the sector size %d",
		len(image),
		sectorSize,
	)

	totalSectors := uint(len(image)) / sectorSize
	return &Drive{
		Descriptor:   MustBuildDescriptor(t, spec),
		SectorSize:   sectorSize,
		Geometry:     spec.Geometry,
		media:        bytesextra.NewReadWriteSeeker(image),
		totalSectors: totalSectors,
		written:      bitmap.New(int(totalSectors)),
	}
}

// TotalSectors returns the number of sectors backed by media.
func (d *Drive) TotalSectors() uint {
	return d.totalSectors
}

// Written returns true if a write command has stored data in `sector`.
func (d *Drive) Written(sector uint) bool {
	return sector < d.totalSectors && d.written.Get(int(sector))
}

// WrittenCount returns the number of distinct sectors that have been written.
func (d *Drive) WrittenCount() int {
	n := 0
	for i := 0; i < int(d.totalSectors); i++ {
		if d.written.Get(i) {
			n++
		}
	}
	return n
}

func (d *Drive) inRange(sector uint64, count uint64) bool {
	total := uint64(d.totalSectors)
	return sector < total && count <= total-sector
}

func (d *Drive) readMedia(sector uint64, count uint) ([]byte, error) {
	if !d.inRange(sector, uint64(count)) {
		return nil, fmt.Errorf("sector %d+%d past end of media", sector, count)
	}
	_, err := d.media.Seek(int64(sector)*int64(d.SectorSize), io.SeekStart)
	if err != nil {
		return nil, err
	}
	data := make([]byte, count*d.SectorSize)
	_, err = io.ReadFull(d.media, data)
	return data, err
}

func (d *Drive) writeMedia(sector uint64, data []byte) error {
	count := uint(len(data)) / d.SectorSize
	if !d.inRange(sector, uint64(count)) {
		return fmt.Errorf("sector %d+%d past end of media", sector, count)
	}
	_, err := d.media.Seek(int64(sector)*int64(d.SectorSize), io.SeekStart)
	if err != nil {
		return err
	}
	_, err = d.media.Write(data)
	if err != nil {
		return err
	}
	for i := uint(0); i < count; i++ {
		d.written.Set(int(sector)+int(i), true)
	}
	return nil
}

// Sector returns a copy of one sector of the media.
func (d *Drive) Sector(sector uint64) []byte {
	data, err := d.readMedia(sector, 1)
	if err != nil {
		panic(err)
	}
	return data
}

// -----------------------------------------------------------------------------

// CommandRecord is one command accepted by a simulated drive, decoded from
// the task file at the moment the command register was written.
type CommandRecord struct {
	Channel  atapio.Channel
	Position atapio.Position
	Command  uint8
	// LBA is the decoded linear address. For CHS commands it is computed from
	// the drive's geometry.
	LBA uint64
	// Cylinder, Head and Sector are only set for CHS commands.
	Cylinder uint32
	Head     uint32
	Sector   uint32
	Count    uint32
	// Failed is true if the command completed with ERR set.
	Failed bool
}

// taskRegister keeps the previous value written alongside the current one,
// which is how 48-bit commands see the "high order" bytes.
type taskRegister struct {
	current  uint8
	previous uint8
}

func (r *taskRegister) write(value uint8) {
	r.previous = r.current
	r.current = value
}

type simChannel struct {
	channel atapio.Channel
	block   registers.Block
	drives  [2]*Drive

	selectReg   uint8
	sectorCount taskRegister
	lbaLow      taskRegister
	lbaMid      taskRegister
	lbaHigh     taskRegister

	status    uint8
	errorReg  uint8
	busyLeft  int
	hung      bool
	buffer    []uint16
	bufferPos int

	writing     bool
	writeTarget uint64
}

func (c *simChannel) selected() *Drive {
	return c.drives[(c.selectReg>>4)&1]
}

func (c *simChannel) position() atapio.Position {
	if c.selectReg&registers.SelectSlave != 0 {
		return atapio.Slave
	}
	return atapio.Master
}

// Controller simulates both legacy ATA channels and implements
// [atapio.PortIO]. Ports outside the two register blocks read as 0xFF.
type Controller struct {
	// FloatingBus makes empty positions read 0xFF from every register, as on
	// a channel with nothing attached. Otherwise they read 0x00.
	FloatingBus bool

	lock     sync.Mutex
	channels [2]*simChannel
	commands []CommandRecord
}

// NewController creates a simulated controller with no drives attached.
func NewController() *Controller {
	controller := &Controller{}
	for i, channel := range atapio.Channels {
		controller.channels[i] = &simChannel{
			channel: channel,
			block:   registers.ForChannel(channel),
		}
	}
	return controller
}

// Attach connects `drive` at the given location, replacing whatever was there.
func (c *Controller) Attach(channel atapio.Channel, position atapio.Position, drive *Drive) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.channels[channel].drives[position] = drive
}

// Commands returns every command accepted so far, in order.
func (c *Controller) Commands() []CommandRecord {
	c.lock.Lock()
	defer c.lock.Unlock()

	result := make([]CommandRecord, len(c.commands))
	copy(result, c.commands)
	return result
}

// ResetCommands clears the command log.
func (c *Controller) ResetCommands() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.commands = nil
}

// route finds the channel owning `port` and the register offset within it.
// The offset of the control port is reported as 8.
func (c *Controller) route(port uint16) (*simChannel, uint16, bool) {
	for _, channel := range c.channels {
		if port >= channel.block.Base && port <= channel.block.Base+7 {
			return channel, port - channel.block.Base, true
		}
		if port == channel.block.Control {
			return channel, 8, true
		}
	}
	return nil, 0, false
}

func (c *Controller) emptyValue() uint8 {
	if c.FloatingBus {
		return 0xFF
	}
	return 0x00
}

func (c *Controller) Inb(port uint16) uint8 {
	c.lock.Lock()
	defer c.lock.Unlock()

	channel, offset, ok := c.route(port)
	if !ok {
		return 0xFF
	}

	drive := channel.selected()
	if drive == nil {
		return c.emptyValue()
	}

	switch offset {
	case 1:
		return channel.errorReg
	case 2:
		return channel.sectorCount.current
	case 3:
		return channel.lbaLow.current
	case 4:
		return channel.lbaMid.current
	case 5:
		return channel.lbaHigh.current
	case 6:
		return channel.selectReg
	case 7:
		if channel.hung {
			return registers.StatusBSY
		}
		if channel.busyLeft > 0 {
			channel.busyLeft--
			return registers.StatusBSY
		}
		return channel.status
	case 8:
		if channel.hung || channel.busyLeft > 0 {
			return registers.StatusBSY
		}
		return channel.status
	}
	return 0
}

func (c *Controller) Outb(port uint16, value uint8) {
	c.lock.Lock()
	defer c.lock.Unlock()

	channel, offset, ok := c.route(port)
	if !ok {
		return
	}

	if (offset >= 1 && offset <= 5) || offset == 7 {
		if channel.hung || channel.busyLeft > 0 {
			return
		}
	}

	switch offset {
	case 2:
		channel.sectorCount.write(value)
	case 3:
		channel.lbaLow.write(value)
	case 4:
		channel.lbaMid.write(value)
	case 5:
		channel.lbaHigh.write(value)
	case 6:
		channel.selectReg = value
		if drive := channel.selected(); drive != nil && !channel.hung {
			channel.status = registers.StatusDRDY
			channel.busyLeft = max(channel.busyLeft, drive.SelectBusyPolls)
		}
	case 7:
		c.execute(channel, value)
	}
}

func (c *Controller) Inw(port uint16) uint16 {
	c.lock.Lock()
	defer c.lock.Unlock()

	channel, offset, ok := c.route(port)
	if !ok || offset != 0 {
		return 0xFFFF
	}
	if channel.selected() == nil {
		return uint16(c.emptyValue()) | uint16(c.emptyValue())<<8
	}
	if channel.writing || channel.bufferPos >= len(channel.buffer) {
		return 0
	}

	word := channel.buffer[channel.bufferPos]
	channel.bufferPos++
	if channel.bufferPos == len(channel.buffer) {
		channel.status = registers.StatusDRDY
	}
	return word
}

func (c *Controller) Outw(port uint16, value uint16) {
	c.lock.Lock()
	defer c.lock.Unlock()

	channel, offset, ok := c.route(port)
	if !ok || offset != 0 || !channel.writing {
		return
	}

	channel.buffer[channel.bufferPos] = value
	channel.bufferPos++
	if channel.bufferPos < len(channel.buffer) {
		return
	}

	drive := channel.selected()
	data := make([]byte, len(channel.buffer)*2)
	for i, word := range channel.buffer {
		data[2*i] = byte(word)
		data[2*i+1] = byte(word >> 8)
	}

	channel.writing = false
	if err := drive.writeMedia(channel.writeTarget, data); err != nil {
		channel.status = registers.StatusDRDY | registers.StatusERR
		channel.errorReg = registers.ErrorUNC
		return
	}
	channel.status = registers.StatusDRDY
}

func (c *Controller) Insw(port uint16, buffer []uint16) {
	for i := range buffer {
		buffer[i] = c.Inw(port)
	}
}

func (c *Controller) Outsw(port uint16, buffer []uint16) {
	for _, word := range buffer {
		c.Outw(port, word)
	}
}

// decodeAddress interprets the task file for `command`.
func decodeAddress(channel *simChannel, drive *Drive, command uint8) CommandRecord {
	record := CommandRecord{
		Channel:  channel.channel,
		Position: channel.position(),
		Command:  command,
	}

	switch {
	case command == registers.CmdReadSectorsExt || command == registers.CmdWriteSectorsExt:
		record.LBA = uint64(channel.lbaLow.current) |
			uint64(channel.lbaMid.current)<<8 |
			uint64(channel.lbaHigh.current)<<16 |
			uint64(channel.lbaLow.previous)<<24 |
			uint64(channel.lbaMid.previous)<<32 |
			uint64(channel.lbaHigh.previous)<<40
		record.Count = uint32(channel.sectorCount.previous)<<8 | uint32(channel.sectorCount.current)
		if record.Count == 0 {
			record.Count = 65536
		}
		return record

	case channel.selectReg&registers.SelectLBA != 0:
		record.LBA = uint64(channel.lbaLow.current) |
			uint64(channel.lbaMid.current)<<8 |
			uint64(channel.lbaHigh.current)<<16 |
			uint64(channel.selectReg&0x0F)<<24

	default:
		record.Sector = uint32(channel.lbaLow.current)
		record.Cylinder = uint32(channel.lbaMid.current) | uint32(channel.lbaHigh.current)<<8
		record.Head = uint32(channel.selectReg & 0x0F)
		geometry := drive.Geometry
		if record.Sector == 0 || !geometry.Valid() {
			record.LBA = ^uint64(0)
		} else {
			record.LBA = (uint64(record.Cylinder)*uint64(geometry.Heads)+uint64(record.Head))*
				uint64(geometry.SectorsPerTrack) + uint64(record.Sector-1)
		}
	}

	record.Count = uint32(channel.sectorCount.current)
	if record.Count == 0 {
		record.Count = 256
	}
	return record
}

func (c *Controller) execute(channel *simChannel, command uint8) {
	drive := channel.selected()
	if drive == nil {
		return
	}

	channel.writing = false
	channel.buffer = nil
	channel.bufferPos = 0
	channel.errorReg = 0
	channel.busyLeft = drive.BusyPolls
	channel.hung = drive.Hang

	failWith := func(record CommandRecord, errorBits uint8) {
		record.Failed = true
		c.commands = append(c.commands, record)
		channel.status = registers.StatusDRDY | registers.StatusERR
		channel.errorReg = errorBits
	}
	fail := func(record CommandRecord) {
		failWith(record, registers.ErrorABRT)
	}

	switch command {
	case registers.CmdIdentifyDevice:
		record := CommandRecord{
			Channel:  channel.channel,
			Position: channel.position(),
			Command:  command,
		}
		if drive.AbortIdentify {
			fail(record)
			return
		}
		c.commands = append(c.commands, record)
		channel.buffer = append([]uint16(nil), drive.Descriptor[:]...)
		channel.status = registers.StatusDRDY | registers.StatusDRQ

	case registers.CmdReadSectors, registers.CmdReadSectorsCHS, registers.CmdReadSectorsExt:
		record := decodeAddress(channel, drive, command)
		drive.dataCommands++
		if drive.FailCommand == drive.dataCommands {
			fail(record)
			return
		}

		data, err := drive.readMedia(record.LBA, uint(record.Count))
		if err != nil {
			failWith(record, registers.ErrorIDNF)
			return
		}
		c.commands = append(c.commands, record)

		channel.buffer = make([]uint16, len(data)/2)
		for i := range channel.buffer {
			channel.buffer[i] = uint16(data[2*i]) | uint16(data[2*i+1])<<8
		}
		channel.status = registers.StatusDRDY | registers.StatusDRQ

	case registers.CmdWriteSectors, registers.CmdWriteSectorsCHS, registers.CmdWriteSectorsExt:
		record := decodeAddress(channel, drive, command)
		drive.dataCommands++
		if drive.FailCommand == drive.dataCommands {
			fail(record)
			return
		}
		if !drive.inRange(record.LBA, uint64(record.Count)) {
			failWith(record, registers.ErrorIDNF)
			return
		}
		c.commands = append(c.commands, record)

		channel.writing = true
		channel.writeTarget = record.LBA
		channel.buffer = make([]uint16, uint(record.Count)*drive.SectorSize/2)
		channel.status = registers.StatusDRDY | registers.StatusDRQ

	case registers.CmdFlushCache, registers.CmdFlushCacheExt:
		c.commands = append(c.commands, CommandRecord{
			Channel:  channel.channel,
			Position: channel.position(),
			Command:  command,
		})
		channel.status = registers.StatusDRDY

	default:
		fail(CommandRecord{
			Channel:  channel.channel,
			Position: channel.position(),
			Command:  command,
		})
	}
}
