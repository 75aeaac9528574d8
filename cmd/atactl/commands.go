package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/blockdev"
	"github.com/retroflex/atapio/controller"
	"github.com/urfave/cli/v2"
)

// maxReadSectors bounds the buffer `atactl read` allocates.
const maxReadSectors = 65536

// scanRow is one line of `atactl scan --csv`.
type scanRow struct {
	Channel    string `csv:"channel"`
	Position   string `csv:"position"`
	Detected   bool   `csv:"detected"`
	Model      string `csv:"model"`
	Serial     string `csv:"serial"`
	Firmware   string `csv:"firmware"`
	Addressing string `csv:"addressing"`
	SectorSize uint32 `csv:"sector_size"`
	Sectors    uint64 `csv:"sectors"`
	UDMAModes  string `csv:"udma_modes"`
	Error      string `csv:"error"`
}

func newScanRow(result controller.ScanResult) scanRow {
	drive := result.Drive
	row := scanRow{
		Channel:  result.Channel.String(),
		Position: result.Position.String(),
		Detected: drive.Detected,
	}
	if result.Err != nil {
		row.Error = result.Err.Error()
	}
	if !drive.Detected {
		return row
	}

	modes := make([]string, 0, 8)
	for _, mode := range drive.UDMAModes() {
		modes = append(modes, strconv.Itoa(mode))
	}

	row.Model = drive.Model
	row.Serial = drive.Serial
	row.Firmware = drive.Firmware
	row.Addressing = drive.Addressing.String()
	row.SectorSize = drive.SectorSize
	row.Sectors = drive.Capacity()
	row.UDMAModes = strings.Join(modes, " ")
	return row
}

func scanDrives(context *cli.Context) error {
	s, err := openSession(context)
	if err != nil {
		return err
	}
	defer s.Close()

	results, scanErr := s.controller.Scan()
	out := context.App.Writer

	if context.Bool("csv") {
		rows := make([]scanRow, 0, len(results))
		for _, result := range results {
			rows = append(rows, newScanRow(result))
		}
		if err := gocsv.Marshal(rows, out); err != nil {
			return err
		}
		return scanErr
	}

	for _, result := range results {
		switch {
		case result.Err != nil:
			fmt.Fprintf(out, "%s %s: error: %s\n", result.Channel, result.Position, result.Err)
		case !result.Drive.Detected:
			fmt.Fprintf(out, "%s %s: not detected\n", result.Channel, result.Position)
		default:
			fmt.Fprintln(out, result.Drive.String())
		}
	}
	return scanErr
}

func describeDrive(context *cli.Context) error {
	channel, position, err := parseLocationArgs(context)
	if err != nil {
		return err
	}

	s, err := openSession(context)
	if err != nil {
		return err
	}
	defer s.Close()

	drive, err := s.controller.Identify(channel, position)
	if err != nil {
		return err
	}
	return drive.Describe(context.App.Writer)
}

// identifyOrFail identifies a drive and fails if nothing is there, since no
// I/O can be done on an empty position.
func identifyOrFail(
	s *session, channel atapio.Channel, position atapio.Position,
) (atapio.DriveInfo, error) {
	drive, err := s.controller.Identify(channel, position)
	if err != nil {
		return drive, err
	}
	if !drive.Detected {
		return drive, atapio.ErrDriveNotPresent.WithMessage(
			fmt.Sprintf("%s %s", channel, position))
	}
	return drive, nil
}

func readSectors(context *cli.Context) (err error) {
	channel, position, err := parseLocationArgs(context)
	if err != nil {
		return err
	}
	start, err := parseSectorArg(context, 2, "START", 0)
	if err != nil {
		return err
	}
	count, err := parseSectorArg(context, 3, "COUNT", 1)
	if err != nil {
		return err
	}
	if count == 0 || count > maxReadSectors {
		return atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("COUNT must be in [1, %d], got %d", maxReadSectors, count))
	}

	s, err := openSession(context)
	if err != nil {
		return err
	}
	defer s.Close()

	drive, err := identifyOrFail(s, channel, position)
	if err != nil {
		return err
	}

	buffer := make([]byte, count*uint64(drive.SectorSize))
	if err := s.controller.ReadSectors(&drive, start, buffer); err != nil {
		return err
	}

	out, closeOutput, err := openOutput(context)
	if err != nil {
		return err
	}
	defer keepCloseError(&err, closeOutput)

	_, err = out.Write(buffer)
	return err
}

// openOutput returns the file named by --output, or stdout if there is none.
func openOutput(context *cli.Context) (io.Writer, func() error, error) {
	path := context.String("output")
	if path == "" {
		return context.App.Writer, func() error { return nil }, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file for writing: `%v`: %w", path, err)
	}
	return file, file.Close, nil
}

// keepCloseError calls `closer` and stores its error in `err` unless `err`
// already holds one. A file's last write can fail on close.
func keepCloseError(err *error, closer func() error) {
	closeErr := closer()
	if *err == nil {
		*err = closeErr
	}
}

func dumpDrive(context *cli.Context) (err error) {
	channel, position, err := parseLocationArgs(context)
	if err != nil {
		return err
	}

	s, err := openSession(context)
	if err != nil {
		return err
	}
	defer s.Close()

	drive, err := identifyOrFail(s, channel, position)
	if err != nil {
		return err
	}
	device, err := blockdev.New(s.controller, drive, 0, 0)
	if err != nil {
		return err
	}

	offset := context.Int64("offset")
	length := context.Int64("length")
	if offset < 0 || offset > device.Size() || length < 0 {
		return atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("bad range: offset %d, length %d", offset, length))
	}
	if length == 0 || length > device.Size()-offset {
		length = device.Size() - offset
	}

	out, closeOutput, err := openOutput(context)
	if err != nil {
		return err
	}
	defer keepCloseError(&err, closeOutput)

	_, err = io.Copy(out, io.NewSectionReader(device, offset, length))
	return err
}

func writeSectors(context *cli.Context) error {
	channel, position, err := parseLocationArgs(context)
	if err != nil {
		return err
	}
	start, err := parseSectorArg(context, 2, "START", 0)
	if err != nil {
		return err
	}

	path := context.String("input")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read `%v`: %w", path, err)
	}

	s, err := openSession(context)
	if err != nil {
		return err
	}
	defer s.Close()

	drive, err := identifyOrFail(s, channel, position)
	if err != nil {
		return err
	}

	if err := s.controller.WriteSectors(&drive, start, data); err != nil {
		return err
	}
	if err := s.controller.Flush(&drive); err != nil {
		return err
	}

	fmt.Fprintf(
		context.App.Writer,
		"Wrote %d sectors at %d.\n",
		uint64(len(data))/uint64(drive.SectorSize),
		start)
	return nil
}
