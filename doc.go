// Package flexcan drives an NXP FlexCAN controller through its
// memory-mapped register block: bit timing from a target bus rate, the
// mandatory mode transitions, and the shared mailbox bank behind a small
// frame-level transmit/receive API.
//
// The peripheral exposes sixteen mailboxes instead of a FIFO. The first
// eight are transmit slots fed by a priority-aware arbiter that can
// evict a weaker pending frame for a stronger one; the remaining eight
// are receive slots drained by polling completion flags. The peripheral
// arbitrates bus access on its own; the driver's job is keeping the
// 4-bit buffer state of every slot coherent while both sides touch it.
//
// Access to the register block goes through the mmio.Window interface.
// On hardware that is an mmio.Region over /dev/mem; tests run against
// the behavioral model in the sim package.
//
//	win, err := mmio.MapRegion("/dev/mem", can0Base, 0x1000)
//	...
//	ctl, err := flexcan.New(win, clock, flexcan.DefaultSettings())
//	...
//	evicted, err := ctl.Transmit(frame)
//
// The driver polls; it never blocks on interrupts, and every wait on a
// peripheral acknowledgement is bounded by Settings.PollTimeout.
package flexcan
