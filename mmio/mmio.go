// Package mmio abstracts 32-bit register window access so the driver can
// run against a memory-mapped peripheral block, a serial debug probe, or
// an in-process model interchangeably.
package mmio

// OpenBus is the value an absent or faulted bus location reads as, the
// way a floating data bus reads all-ones on real hardware.
const OpenBus uint32 = 0xFFFFFFFF

// Window is a borrowed view of a peripheral register block. Offsets are
// in bytes from the block base and must be word aligned. Accesses have
// immediate side effects and cannot fail; implementations backed by a
// fallible transport latch their first error and read as OpenBus from
// then on.
//
// A Window is owned by exactly one driver instance at a time. None of
// the implementations in this module serialize concurrent access.
type Window interface {
	Load(off uint32) uint32
	Store(off uint32, v uint32)
}

// Mem is a Window backed by plain process memory. It implements no
// peripheral behavior: stores land in the backing words and loads return
// them unchanged. It is useful as scratch register space in tests and as
// a stand-in for an unresponsive peripheral, since acknowledgment bits
// never change on their own.
type Mem struct {
	words []uint32
}

// NewMem returns a zeroed Mem spanning size bytes, rounded up to a whole
// word.
func NewMem(size uint32) *Mem {
	return &Mem{words: make([]uint32, (size+3)/4)}
}

// Load returns the word at off, or OpenBus when off is outside the
// window.
func (m *Mem) Load(off uint32) uint32 {
	i := off / 4
	if int(i) >= len(m.words) {
		return OpenBus
	}
	return m.words[i]
}

// Store writes the word at off. Stores outside the window are dropped.
func (m *Mem) Store(off uint32, v uint32) {
	i := off / 4
	if int(i) >= len(m.words) {
		return
	}
	m.words[i] = v
}

// Size returns the window size in bytes.
func (m *Mem) Size() uint32 { return uint32(len(m.words)) * 4 }
