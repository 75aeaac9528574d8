// Package portio provides [atapio.PortIO] implementations: direct x86 port
// I/O for Linux, and a tracing wrapper for inspecting exactly which registers
// a command sequence touched.
package portio

import (
	"fmt"
	"sync"

	"github.com/retroflex/atapio"
)

// Op identifies the kind of port access.
type Op int

const (
	OpInb Op = iota
	OpOutb
	OpInw
	OpOutw
)

func (op Op) String() string {
	switch op {
	case OpInb:
		return "inb"
	case OpOutb:
		return "outb"
	case OpInw:
		return "inw"
	case OpOutw:
		return "outw"
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// IsWrite returns true for outb/outw.
func (op Op) IsWrite() bool {
	return op == OpOutb || op == OpOutw
}

// Access is one recorded port access. Block transfers are recorded one word
// at a time.
type Access struct {
	Op    Op
	Port  uint16
	Value uint16
}

func (a Access) String() string {
	if a.Op == OpInb || a.Op == OpOutb {
		return fmt.Sprintf("%s 0x%03X 0x%02X", a.Op, a.Port, a.Value)
	}
	return fmt.Sprintf("%s 0x%03X 0x%04X", a.Op, a.Port, a.Value)
}

// Trace wraps another PortIO and records every access made through it.
type Trace struct {
	inner    atapio.PortIO
	lock     sync.Mutex
	accesses []Access
	// limit caps the number of recorded accesses; zero means unlimited.
	limit   int
	dropped int
}

// NewTrace creates a Trace around `inner`. If `limit` is positive, only the
// first `limit` accesses are kept, and the rest are counted in Dropped().
func NewTrace(inner atapio.PortIO, limit int) *Trace {
	return &Trace{inner: inner, limit: limit}
}

func (t *Trace) record(op Op, port uint16, value uint16) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.limit > 0 && len(t.accesses) >= t.limit {
		t.dropped++
		return
	}
	t.accesses = append(t.accesses, Access{Op: op, Port: port, Value: value})
}

func (t *Trace) Inb(port uint16) uint8 {
	value := t.inner.Inb(port)
	t.record(OpInb, port, uint16(value))
	return value
}

func (t *Trace) Outb(port uint16, value uint8) {
	t.record(OpOutb, port, uint16(value))
	t.inner.Outb(port, value)
}

func (t *Trace) Inw(port uint16) uint16 {
	value := t.inner.Inw(port)
	t.record(OpInw, port, value)
	return value
}

func (t *Trace) Outw(port uint16, value uint16) {
	t.record(OpOutw, port, value)
	t.inner.Outw(port, value)
}

func (t *Trace) Insw(port uint16, buffer []uint16) {
	t.inner.Insw(port, buffer)
	for _, word := range buffer {
		t.record(OpInw, port, word)
	}
}

func (t *Trace) Outsw(port uint16, buffer []uint16) {
	for _, word := range buffer {
		t.record(OpOutw, port, word)
	}
	t.inner.Outsw(port, buffer)
}

// Accesses returns a copy of everything recorded so far.
func (t *Trace) Accesses() []Access {
	t.lock.Lock()
	defer t.lock.Unlock()

	result := make([]Access, len(t.accesses))
	copy(result, t.accesses)
	return result
}

// Writes returns only the recorded outb/outw accesses.
func (t *Trace) Writes() []Access {
	var writes []Access
	for _, access := range t.Accesses() {
		if access.Op.IsWrite() {
			writes = append(writes, access)
		}
	}
	return writes
}

// Count returns the number of recorded accesses of kind `op` to `port`.
func (t *Trace) Count(op Op, port uint16) int {
	n := 0
	for _, access := range t.Accesses() {
		if access.Op == op && access.Port == port {
			n++
		}
	}
	return n
}

// Dropped returns how many accesses were not recorded due to the limit.
func (t *Trace) Dropped() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.dropped
}

// Reset discards all recorded accesses.
func (t *Trace) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.accesses = nil
	t.dropped = 0
}
