// Package regs declares the FlexCAN register block layout: register
// offsets, named bit fields, mailbox geometry and the raw 4-bit buffer
// state codes. It is the single place the hardware data sheet is
// transcribed; everything else goes through these definitions.
package regs

import (
	"github.com/kstaniek/go-flexcan/internal/bits"
	"github.com/kstaniek/go-flexcan/mmio"
)

// Register byte offsets from the block base.
const (
	OffMCR      = 0x00 // module configuration
	OffCTRL1    = 0x04 // control 1: bit timing, clock source, loopback
	OffTimer    = 0x08 // free-running timer
	OffRXMGMask = 0x10 // global acceptance mask
	OffIFlag1   = 0x30 // completion flags, one bit per mailbox, W1C
	OffRAM      = 0x80 // mailbox memory, 4 words per mailbox
	OffFDCtrl   = 0xC00

	// BlockBytes is the span of the register block, one 4 KiB page.
	BlockBytes = 0x1000
)

// Mailbox geometry. The first TxMailboxes slots are transmit-role, the
// next RxMailboxes receive-role; roles are fixed by index, never stored.
const (
	TxMailboxes  = 8
	RxMailboxes  = 8
	Mailboxes    = TxMailboxes + RxMailboxes
	MailboxWords = 4
)

// MCR fields.
var (
	MCRMDIS    = bits.Flag(31)              // low-power (module disable) request
	MCRFRZ     = bits.Flag(30)              // freeze enable
	MCRRFEN    = bits.Flag(29)              // Rx FIFO enable
	MCRHALT    = bits.Flag(28)              // halt, enters freeze while FRZ set
	MCRNOTRDY  = bits.Flag(27)              // not ready (read only)
	MCRSOFTRST = bits.Flag(25)              // soft reset, self-clearing
	MCRFRZACK  = bits.Flag(24)              // freeze acknowledged (read only)
	MCRWRNEN   = bits.Flag(21)              // warning interrupt flags enable
	MCRLPMACK  = bits.Flag(20)              // low-power acknowledged (read only)
	MCRSRXDIS  = bits.Flag(17)              // self reception disable
	MCRIRMQ    = bits.Flag(16)              // individual mailbox masking
	MCRDMA     = bits.Flag(15)              // DMA enable (FIFO only)
	MCRAEN     = bits.Flag(12)              // abort enable
	MCRMAXMB   = bits.Field{Off: 0, Width: 7} // highest active mailbox number
)

// CTRL1 fields.
var (
	CTRL1PRESDIV = bits.Field{Off: 24, Width: 8} // prescaler division factor
	CTRL1RJW     = bits.Field{Off: 22, Width: 2} // resync jump width
	CTRL1PSEG1   = bits.Field{Off: 19, Width: 3} // phase segment 1
	CTRL1PSEG2   = bits.Field{Off: 16, Width: 3} // phase segment 2
	CTRL1CLKSRC  = bits.Flag(13)                 // 1: peripheral clock, 0: oscillator
	CTRL1LPB     = bits.Flag(12)                 // loop-back mode
	CTRL1PROPSEG = bits.Field{Off: 0, Width: 3}  // propagation segment
)

// FDCTRL fields.
var (
	FDCtrlTDCEN = bits.Flag(15) // transceiver delay compensation enable
)

// Mailbox control/status word (word 0) fields.
var (
	CSEDL       = bits.Flag(31) // extended data length (CAN FD), always 0 here
	CSBRS       = bits.Flag(30) // bit rate switch (CAN FD), always 0 here
	CSESI       = bits.Flag(29) // error state indicator
	CSCode      = bits.Field{Off: 24, Width: 4}
	CSSRR       = bits.Flag(22) // substitute remote request, must be 1
	CSIDE       = bits.Flag(21) // extended identifier
	CSRTR       = bits.Flag(20) // remote transmission request
	CSDLC       = bits.Field{Off: 16, Width: 4}
	CSTimestamp = bits.Field{Off: 0, Width: 16}
)

// Mailbox identifier word (word 1) fields.
var (
	IDPrio = bits.Field{Off: 29, Width: 3}  // local transmit priority hint
	IDExt  = bits.Field{Off: 0, Width: 29}  // 29-bit extended identifier
	IDStd  = bits.Field{Off: 18, Width: 11} // 11-bit base identifier
)

// Raw buffer state codes as they appear in CSCode. The busy bit overlays
// bit 0 of the receive codes while the peripheral is updating the slot.
const (
	CodeRxInactive uint32 = 0b0000
	CodeRxFull     uint32 = 0b0010
	CodeRxEmpty    uint32 = 0b0100
	CodeRxOverrun  uint32 = 0b0110
	CodeRxRanswer  uint32 = 0b1010
	CodeRxBusyBit  uint32 = 0b0001

	CodeTxInactive   uint32 = 0b1000
	CodeTxAbort      uint32 = 0b1001
	CodeTxDataRemote uint32 = 0b1100
	CodeTxTanswer    uint32 = 0b1110
)

// Reg is one register bound to its window offset.
type Reg struct {
	win mmio.Window
	off uint32
}

// Read returns the register value.
func (r Reg) Read() uint32 { return r.win.Load(r.off) }

// Write sets the register value.
func (r Reg) Write(v uint32) { r.win.Store(r.off, v) }

// Modify applies f to the current value and writes the result back.
func (r Reg) Modify(f func(uint32) uint32) { r.win.Store(r.off, f(r.win.Load(r.off))) }

// Block is the typed view of one FlexCAN instance over a Window.
type Block struct {
	MCR      Reg
	CTRL1    Reg
	Timer    Reg
	RXMGMask Reg
	IFlag1   Reg
	FDCtrl   Reg

	win mmio.Window
}

// NewBlock binds the register map to win. The window is borrowed for the
// lifetime of the Block.
func NewBlock(win mmio.Window) *Block {
	return &Block{
		MCR:      Reg{win, OffMCR},
		CTRL1:    Reg{win, OffCTRL1},
		Timer:    Reg{win, OffTimer},
		RXMGMask: Reg{win, OffRXMGMask},
		IFlag1:   Reg{win, OffIFlag1},
		FDCtrl:   Reg{win, OffFDCtrl},
		win:      win,
	}
}

// CS returns mailbox mb's control/status word register.
func (b *Block) CS(mb int) Reg { return b.ram(mb, 0) }

// ID returns mailbox mb's identifier word register.
func (b *Block) ID(mb int) Reg { return b.ram(mb, 1) }

// Data returns mailbox mb's i-th payload word register (i is 0 or 1;
// each word carries four payload bytes, most significant byte first).
func (b *Block) Data(mb, i int) Reg { return b.ram(mb, 2+i) }

func (b *Block) ram(mb, word int) Reg {
	return Reg{b.win, uint32(OffRAM + 4*(mb*MailboxWords+word))}
}

// MailboxFlag is the IFlag1 mask of mailbox mb.
func MailboxFlag(mb int) uint32 { return uint32(1) << mb }

// PayloadLane locates payload byte i inside a mailbox: the RAM word
// index within the mailbox and the left shift of the byte's lane.
// Payload bytes pack big endian, four per word.
func PayloadLane(i int) (word int, shift uint) {
	return 2 + i/4, uint(24 - 8*(i%4))
}
