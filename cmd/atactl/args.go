package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/retroflex/atapio"
	"github.com/urfave/cli/v2"
)

func parseChannel(s string) (atapio.Channel, error) {
	switch strings.ToLower(s) {
	case "primary", "0":
		return atapio.Primary, nil
	case "secondary", "1":
		return atapio.Secondary, nil
	}
	return 0, atapio.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("bad channel %q: expected primary or secondary", s))
}

func parsePosition(s string) (atapio.Position, error) {
	switch strings.ToLower(s) {
	case "master", "0":
		return atapio.Master, nil
	case "slave", "1":
		return atapio.Slave, nil
	}
	return 0, atapio.ErrInvalidArgument.WithMessage(
		fmt.Sprintf("bad position %q: expected master or slave", s))
}

// parseLocationArgs reads the CHANNEL and POSITION arguments common to every
// command that targets one drive.
func parseLocationArgs(context *cli.Context) (atapio.Channel, atapio.Position, error) {
	if context.NArg() < 2 {
		return 0, 0, atapio.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("usage: %s %s", context.Command.Name, context.Command.ArgsUsage))
	}

	channel, err := parseChannel(context.Args().Get(0))
	if err != nil {
		return 0, 0, err
	}
	position, err := parsePosition(context.Args().Get(1))
	if err != nil {
		return 0, 0, err
	}
	return channel, position, nil
}

// parseSectorArg parses positional argument `index` as a sector number or
// count, returning `fallback` if it's absent. Hex with a 0x prefix works too.
func parseSectorArg(context *cli.Context, index int, name string, fallback uint64) (uint64, error) {
	if context.NArg() <= index {
		return fallback, nil
	}

	raw := context.Args().Get(index)
	value, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, atapio.ErrInvalidArgument.WithMessage(fmt.Sprintf("bad %s %q", name, raw))
	}
	return value, nil
}
