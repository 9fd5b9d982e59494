// Package sim models a FlexCAN instance well enough to exercise the
// driver without hardware. It implements mmio.Window and mirrors the
// peripheral-side behavior the driver depends on: mode acknowledgement
// bits, write-1-to-clear completion flags, the free-running timer, soft
// reset, and mailbox state transitions on transmit completion and frame
// delivery.
//
// The model is synchronous. Nothing happens between accesses; peripheral
// reactions run inside Store, and tests trigger asynchronous hardware
// behavior explicitly through CompleteTransmit, Deliver and BusyReads.
package sim

import (
	"github.com/kstaniek/go-flexcan/internal/regs"
	"github.com/kstaniek/go-flexcan/mmio"
)

// AbortPolicy decides the outcome when the driver requests an abort of a
// pending transmit mailbox.
type AbortPolicy uint8

const (
	// AbortWins parks the mailbox in the abort state with the frame
	// still readable, the way hardware behaves when the abort beats
	// bus arbitration.
	AbortWins AbortPolicy = iota
	// TransmitWins pretends the frame left the wire before the abort
	// could take hold; the mailbox goes inactive.
	TransmitWins
)

// Peripheral is one simulated FlexCAN register block.
type Peripheral struct {
	// AbortPolicy selects how abort requests resolve. Default AbortWins.
	AbortPolicy AbortPolicy

	// AutoComplete finishes a transmission the moment its mailbox is
	// armed: the mailbox returns to inactive, the completion flag
	// rises, and with loopback on and self reception allowed the frame
	// is delivered to the receive bank. Tests of pending-state
	// arbitration leave this off.
	AutoComplete bool

	words     []uint32
	busyReads map[int]int
	timer     uint32
	resets    int
	dropped   int
}

// New returns a Peripheral in its power-on state: module disabled,
// freeze requested, acceptance mask requiring an exact identifier match
// until the driver opens it.
func New() *Peripheral {
	p := &Peripheral{
		words:     make([]uint32, regs.BlockBytes/4),
		busyReads: make(map[int]int),
	}
	p.setWord(regs.OffMCR, p.mcrWithAcks(regs.MCRMDIS.Mask()|regs.MCRFRZ.Mask()|regs.MCRHALT.Mask()))
	p.setWord(regs.OffFDCtrl, regs.FDCtrlTDCEN.Mask())
	p.setWord(regs.OffRXMGMask, 0xFFFFFFFF)
	return p
}

// Load implements mmio.Window. Reading the timer advances it, the way a
// free-running counter appears to software.
func (p *Peripheral) Load(off uint32) uint32 {
	switch {
	case off == regs.OffTimer:
		p.timer++
		p.setWord(regs.OffTimer, p.timer)
		return p.timer
	case p.isCS(off):
		mb := p.mailboxOf(off)
		if n := p.busyReads[mb]; n > 0 {
			p.busyReads[mb] = n - 1
			return p.word(off) | regs.CSCode.Insert(0, regs.CodeRxBusyBit)
		}
	}
	return p.word(off)
}

// Store implements mmio.Window.
func (p *Peripheral) Store(off uint32, v uint32) {
	switch {
	case off == regs.OffMCR:
		p.storeMCR(v)
	case off == regs.OffIFlag1:
		// Write 1 to clear.
		p.setWord(off, p.word(off)&^v)
	case p.isCS(off):
		p.storeCS(off, v)
	default:
		p.setWord(off, v)
	}
}

func (p *Peripheral) storeMCR(v uint32) {
	if regs.MCRSOFTRST.Get(v) {
		p.softReset(regs.MCRMDIS.Get(v))
		return
	}
	p.setWord(regs.OffMCR, p.mcrWithAcks(v))
}

// mcrWithAcks recomputes the read-only acknowledgement bits from the
// requested mode bits.
func (p *Peripheral) mcrWithAcks(v uint32) uint32 {
	mdis := regs.MCRMDIS.Get(v)
	frozen := !mdis && regs.MCRFRZ.Get(v) && regs.MCRHALT.Get(v)
	v = regs.MCRSOFTRST.Clear(v)
	v = regs.MCRLPMACK.Insert(v, mdis)
	v = regs.MCRFRZACK.Insert(v, frozen)
	v = regs.MCRNOTRDY.Insert(v, mdis || frozen)
	return v
}

// softReset restores the reset defaults of the registers a soft reset
// touches. Mailbox RAM, CTRL1 and the acceptance mask survive.
func (p *Peripheral) softReset(mdis bool) {
	p.resets++
	p.timer = 0
	p.setWord(regs.OffTimer, 0)
	p.setWord(regs.OffIFlag1, 0)
	mcr := regs.MCRFRZ.Mask() | regs.MCRHALT.Mask()
	mcr = regs.MCRMDIS.Insert(mcr, mdis)
	p.setWord(regs.OffMCR, p.mcrWithAcks(mcr))
}

func (p *Peripheral) storeCS(off uint32, v uint32) {
	mb := p.mailboxOf(off)
	prev := regs.CSCode.Get(p.word(off))
	next := regs.CSCode.Get(v)
	p.setWord(off, v)

	if mb >= regs.TxMailboxes {
		return
	}
	switch {
	case next == regs.CodeTxAbort && prev == regs.CodeTxDataRemote:
		p.resolveAbort(mb)
	case next == regs.CodeTxDataRemote && p.AutoComplete:
		p.CompleteTransmit(mb)
	}
}

func (p *Peripheral) resolveAbort(mb int) {
	switch p.AbortPolicy {
	case TransmitWins:
		p.finishTransmit(mb)
	default:
		// Abort granted: code stays, frame stays, flag rises.
		p.raiseFlag(mb)
	}
}

// CompleteTransmit finishes the pending transmission in mailbox mb as
// the bus would: the frame is looped back to the receive bank when
// loopback is on and self reception is allowed, the mailbox goes
// inactive and its completion flag rises. It is a no-op unless the
// mailbox is armed.
func (p *Peripheral) CompleteTransmit(mb int) {
	cs := p.word(p.csOff(mb))
	if regs.CSCode.Get(cs) != regs.CodeTxDataRemote {
		return
	}
	p.finishTransmit(mb)
}

func (p *Peripheral) finishTransmit(mb int) {
	mcr := p.word(regs.OffMCR)
	ctrl1 := p.word(regs.OffCTRL1)
	if regs.CTRL1LPB.Get(ctrl1) && !regs.MCRSRXDIS.Get(mcr) {
		p.deliverWords(
			p.word(p.csOff(mb)),
			p.word(p.idOff(mb)),
			p.word(p.dataOff(mb, 0)),
			p.word(p.dataOff(mb, 1)),
		)
	}
	cs := p.word(p.csOff(mb))
	p.setWord(p.csOff(mb), regs.CSCode.Insert(cs, regs.CodeTxInactive))
	p.raiseFlag(mb)
}

// Deliver places a frame into the receive bank as if it arrived from the
// bus, honoring empty-first matching with overrun on a full bank. It
// reports the mailbox used; ok is false when every receive mailbox was
// inactive and the frame was dropped.
func (p *Peripheral) Deliver(extended bool, id uint32, remote bool, data []byte) (mb int, ok bool) {
	if len(data) > 8 {
		data = data[:8]
	}
	var cs uint32
	cs = regs.CSDLC.Insert(cs, uint32(len(data)))
	cs = regs.CSIDE.Insert(cs, extended)
	cs = regs.CSSRR.Insert(cs, extended)
	cs = regs.CSRTR.Insert(cs, remote)

	var idw uint32
	if extended {
		idw = regs.IDExt.Insert(0, id)
	} else {
		idw = regs.IDStd.Insert(0, id)
	}

	var d [2]uint32
	for i, b := range data {
		word, shift := regs.PayloadLane(i)
		d[word-2] |= uint32(b) << shift
	}
	return p.deliverWords(cs, idw, d[0], d[1])
}

// deliverWords performs receive matching with composed mailbox words.
// The code and timestamp fields of cs are overwritten.
func (p *Peripheral) deliverWords(cs, idw, d0, d1 uint32) (int, bool) {
	p.timer++
	cs = regs.CSTimestamp.Insert(cs, p.timer&regs.CSTimestamp.Max())

	target, code := -1, regs.CodeRxFull
	for mb := regs.TxMailboxes; mb < regs.Mailboxes; mb++ {
		if regs.CSCode.Get(p.word(p.csOff(mb))) == regs.CodeRxEmpty {
			target = mb
			break
		}
	}
	if target < 0 {
		for mb := regs.TxMailboxes; mb < regs.Mailboxes; mb++ {
			got := regs.CSCode.Get(p.word(p.csOff(mb)))
			if got == regs.CodeRxFull || got == regs.CodeRxOverrun {
				target, code = mb, regs.CodeRxOverrun
				break
			}
		}
	}
	if target < 0 {
		p.dropped++
		return -1, false
	}

	p.setWord(p.csOff(target), regs.CSCode.Insert(cs, code))
	p.setWord(p.idOff(target), idw)
	p.setWord(p.dataOff(target, 0), d0)
	p.setWord(p.dataOff(target, 1), d1)
	p.raiseFlag(target)
	return target, true
}

// BusyReads makes the next n reads of mailbox mb's control word report
// the busy bit, imitating the window where the peripheral is moving a
// frame into the slot.
func (p *Peripheral) BusyReads(mb, n int) { p.busyReads[mb] = n }

// Word returns the stored register word without access side effects.
func (p *Peripheral) Word(off uint32) uint32 { return p.word(off) }

// SetWord overwrites a register word without store side effects.
func (p *Peripheral) SetWord(off uint32, v uint32) { p.setWord(off, v) }

// Code returns the raw buffer state code of mailbox mb.
func (p *Peripheral) Code(mb int) uint32 {
	return regs.CSCode.Get(p.word(p.csOff(mb)))
}

// FlagSet reports whether mailbox mb's completion flag is raised.
func (p *Peripheral) FlagSet(mb int) bool {
	return p.word(regs.OffIFlag1)&regs.MailboxFlag(mb) != 0
}

// Resets returns the number of soft resets observed.
func (p *Peripheral) Resets() int { return p.resets }

// Dropped returns the number of delivered frames that found no usable
// receive mailbox.
func (p *Peripheral) Dropped() int { return p.dropped }

func (p *Peripheral) raiseFlag(mb int) {
	p.setWord(regs.OffIFlag1, p.word(regs.OffIFlag1)|regs.MailboxFlag(mb))
}

func (p *Peripheral) word(off uint32) uint32 {
	if off/4 >= uint32(len(p.words)) {
		return mmio.OpenBus
	}
	return p.words[off/4]
}

func (p *Peripheral) setWord(off uint32, v uint32) {
	if off/4 < uint32(len(p.words)) {
		p.words[off/4] = v
	}
}

func (p *Peripheral) csOff(mb int) uint32 {
	return regs.OffRAM + 4*uint32(mb*regs.MailboxWords)
}

func (p *Peripheral) idOff(mb int) uint32 { return p.csOff(mb) + 4 }

func (p *Peripheral) dataOff(mb, i int) uint32 { return p.csOff(mb) + 8 + 4*uint32(i) }

func (p *Peripheral) isCS(off uint32) bool {
	if off < regs.OffRAM || off >= regs.OffRAM+uint32(regs.Mailboxes*regs.MailboxWords)*4 {
		return false
	}
	return (off-regs.OffRAM)%(regs.MailboxWords*4) == 0
}

func (p *Peripheral) mailboxOf(off uint32) int {
	return int((off - regs.OffRAM) / (regs.MailboxWords * 4))
}
