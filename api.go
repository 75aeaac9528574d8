package atapio

// PortIO is the interface for byte/word access to the 16-bit x86 I/O address
// space. Implementations do not fail: a port read on real hardware always
// returns something, even if it's the floating-bus value 0xFF.
//
// The driver never assumes exclusive access on its own. Callers sharing a
// PortIO between goroutines must serialize whole command sequences, not just
// individual accesses (see the controller package).
type PortIO interface {
	// Inb reads one byte from `port`.
	Inb(port uint16) uint8
	// Outb writes one byte to `port`.
	Outb(port uint16, value uint8)
	// Inw reads one 16-bit word from `port`.
	Inw(port uint16) uint16
	// Outw writes one 16-bit word to `port`.
	Outw(port uint16, value uint16)
	// Insw fills `buffer` by reading len(buffer) words from `port`.
	Insw(port uint16, buffer []uint16)
	// Outsw writes every word in `buffer` to `port`, in order.
	Outsw(port uint16, buffer []uint16)
}

// DiagnosticSink receives human-readable status lines. It is purely
// observational; the driver's behavior never depends on it.
type DiagnosticSink interface {
	Logf(tick uint64, format string, args ...any)
}

// Clock supplies the monotonic tick value diagnostic lines are tagged with.
type Clock interface {
	Ticks() uint64
}
