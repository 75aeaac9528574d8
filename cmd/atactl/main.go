package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/retroflex/atapio"
	"github.com/retroflex/atapio/controller"
	"github.com/retroflex/atapio/portio"
	"github.com/urfave/cli/v2"
)

// openPort gives access to the I/O ports. Tests replace it with a simulator.
var openPort = func() (atapio.PortIO, io.Closer, error) {
	native, err := portio.OpenNative()
	if err != nil {
		return nil, nil, err
	}
	return native, native, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "atactl",
		Usage: "Inspect and access legacy ATA drives with polled PIO",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "poll-limit",
				Usage:   "status reads before a drive is declared unresponsive",
				Value:   controller.DefaultPollLimit,
				EnvVars: []string{"ATAPIO_POLL_LIMIT"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log driver diagnostics to stderr",
				EnvVars: []string{"ATAPIO_VERBOSE"},
			},
			&cli.BoolFlag{
				Name:    "trace",
				Usage:   "dump every port access to stderr when done",
				EnvVars: []string{"ATAPIO_TRACE"},
			},
			&cli.IntFlag{
				Name:  "trace-limit",
				Usage: "maximum number of port accesses to keep with --trace",
				Value: 10000,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "scan",
				Usage:  "Identify all four drive positions",
				Action: scanDrives,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "csv", Usage: "print a CSV table instead of text"},
				},
			},
			{
				Name:      "info",
				Usage:     "Describe one drive in detail",
				Action:    describeDrive,
				ArgsUsage: "CHANNEL POSITION",
			},
			{
				Name:      "read",
				Usage:     "Read sectors to a file or stdout",
				Action:    readSectors,
				ArgsUsage: "CHANNEL POSITION [START [COUNT]]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "write to `FILE` instead of stdout",
					},
				},
			},
			{
				Name:      "dump",
				Usage:     "Copy a byte range of a drive to a file or stdout",
				Action:    dumpDrive,
				ArgsUsage: "CHANNEL POSITION",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "write to `FILE` instead of stdout",
					},
					&cli.Int64Flag{
						Name:  "offset",
						Usage: "byte offset to start at",
					},
					&cli.Int64Flag{
						Name:  "length",
						Usage: "number of bytes to copy; 0 copies to the end of the drive",
					},
				},
			},
			{
				Name:      "write",
				Usage:     "Write a file to consecutive sectors and flush the drive cache",
				Action:    writeSectors,
				ArgsUsage: "CHANNEL POSITION [START]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "read data from `FILE`",
						Required: true,
					},
				},
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

// session is everything one command needs to talk to the drives.
type session struct {
	controller *controller.Controller
	trace      *portio.Trace
	closer     io.Closer
	errWriter  io.Writer
}

// openSession opens the port transport and builds a controller from the
// global flags. The calling goroutine stays locked to its OS thread until
// Close, since port permissions are granted per thread.
func openSession(context *cli.Context) (*session, error) {
	runtime.LockOSThread()

	port, closer, err := openPort()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}

	s := &session{closer: closer, errWriter: context.App.ErrWriter}
	if s.errWriter == nil {
		s.errWriter = os.Stderr
	}

	if context.Bool("trace") {
		s.trace = portio.NewTrace(port, context.Int("trace-limit"))
		port = s.trace
	}

	sink := atapio.NopSink
	if context.Bool("verbose") {
		sink = atapio.NewLogSink(log.New(s.errWriter, "atactl: ", 0))
	}

	s.controller = controller.New(port, controller.Options{
		PollLimit: context.Int("poll-limit"),
		Sink:      sink,
	})
	return s, nil
}

func (s *session) Close() error {
	defer runtime.UnlockOSThread()

	if s.trace != nil {
		for _, access := range s.trace.Accesses() {
			fmt.Fprintln(s.errWriter, access)
		}
		if dropped := s.trace.Dropped(); dropped > 0 {
			fmt.Fprintf(s.errWriter, "... %d more accesses not recorded\n", dropped)
		}
	}
	return s.closer.Close()
}
