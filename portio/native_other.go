//go:build !(linux && amd64)

package portio

import (
	"errors"

	"github.com/retroflex/atapio"
)

// Native is unavailable on this platform.
type Native struct {
	atapio.PortIO
}

// OpenNative always fails on platforms other than linux/amd64.
func OpenNative() (*Native, error) {
	return nil, errors.New("native port I/O requires linux/amd64")
}

func (n *Native) Close() error {
	return nil
}
