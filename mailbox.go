package flexcan

import (
	"fmt"
	"time"

	"github.com/kstaniek/go-flexcan/internal/metrics"
	"github.com/kstaniek/go-flexcan/internal/regs"
)

// Mailbox bank geometry, fixed by the register layout. The first
// TxMailboxes indices are transmit slots, the rest receive slots; a
// mailbox's role follows from its index alone and is never stored.
const (
	TxMailboxes = regs.TxMailboxes
	RxMailboxes = regs.RxMailboxes
	Mailboxes   = regs.Mailboxes
)

// isTransmitMailbox reports the role of index mb.
func isTransmitMailbox(mb int) bool { return mb < TxMailboxes }

func checkIndex(mb int) error {
	if mb < 0 || mb >= Mailboxes {
		return fmt.Errorf("flexcan: mailbox index %d out of range", mb)
	}
	return nil
}

// MailboxHeader carries the per-slot control fields that travel beside a
// frame: the buffer state code, the capture timestamp, the local
// transmit priority hint and the error state of the sending node.
type MailboxHeader struct {
	Code                BufferState
	Timestamp           uint16
	Priority            uint8
	ErrorStateIndicator bool
}

func defaultTransmitHeader() MailboxHeader {
	return MailboxHeader{Code: BufferState{State: TxInactive}}
}

func defaultReceiveHeader() MailboxHeader {
	return MailboxHeader{Code: BufferState{State: RxEmpty}}
}

// mailboxStore performs raw slot IO against the register block. It owns
// the access ordering rules: the control word is always written last on
// the way in and acknowledged plus unlocked on the way out.
type mailboxStore struct {
	block   *regs.Block
	timeout time.Duration
}

// write installs header and frame into mailbox mb. The current code must
// be one that software owns: inactive in either role, or a resolved
// abort. Any other code means the peripheral owns the slot or it holds
// unread data, and the write is refused without touching the registers.
//
// The completion flag is cleared before the slot is rewritten so a stale
// flag from the previous occupant cannot be taken for a fresh one. The
// control word goes in last; that write is what hands the slot to the
// peripheral.
func (s *mailboxStore) write(mb int, h MailboxHeader, f Frame) error {
	if err := checkIndex(mb); err != nil {
		return err
	}
	cur, err := DecodeBufferState(regs.CSCode.Get(s.block.CS(mb).Read()))
	if err != nil {
		return fmt.Errorf("write mailbox %d: %w", mb, err)
	}
	switch cur.State {
	case TxDataRemote, TxTanswer, RxEmpty, RxFull, RxOverrun, RxRanswer:
		metrics.IncBusyWrite()
		return fmt.Errorf("write mailbox %d in state %v: %w", mb, cur.State, ErrMailboxBusy)
	}

	code, err := h.Code.Code()
	if err != nil {
		return fmt.Errorf("write mailbox %d: %w", mb, err)
	}

	s.block.IFlag1.Write(regs.MailboxFlag(mb))

	idw := regs.IDPrio.Insert(0, uint32(h.Priority))
	if f.ID.Extended() {
		idw = regs.IDExt.Insert(idw, f.ID.Raw())
	} else {
		idw = regs.IDStd.Insert(idw, f.ID.Raw())
	}
	s.block.ID(mb).Write(idw)

	if !f.Remote {
		for i, b := range f.Payload() {
			word, shift := regs.PayloadLane(i)
			reg := s.block.Data(mb, word-2)
			b := uint32(b)
			reg.Modify(func(v uint32) uint32 {
				return v&^(uint32(0xFF)<<shift) | b<<shift
			})
		}
	}

	var cs uint32
	cs = regs.CSESI.Insert(cs, h.ErrorStateIndicator)
	cs = regs.CSCode.Insert(cs, code)
	cs = regs.CSSRR.Set(cs)
	cs = regs.CSIDE.Insert(cs, f.ID.Extended())
	cs = regs.CSRTR.Insert(cs, f.Remote)
	cs = regs.CSDLC.Insert(cs, uint32(f.Len))
	cs = regs.CSTimestamp.Insert(cs, uint32(h.Timestamp))
	s.block.CS(mb).Write(cs)

	return nil
}

// read drains mailbox mb: waits out the busy window if the peripheral is
// mid-update, decodes header and frame, acknowledges the completion flag
// and reads the free-running timer, which releases the hardware mailbox
// lock the read acquired.
func (s *mailboxStore) read(mb int) (MailboxHeader, Frame, error) {
	if err := checkIndex(mb); err != nil {
		return MailboxHeader{}, Frame{}, err
	}

	var (
		cs   uint32
		bs   BufferState
		derr error
	)
	err := waitUntil(s.timeout, fmt.Sprintf("mailbox %d release", mb), func() bool {
		cs = s.block.CS(mb).Read()
		bs, derr = DecodeBufferState(regs.CSCode.Get(cs))
		if derr != nil {
			return true
		}
		return bs.State.Transmit() || !bs.Busy
	})
	if derr != nil {
		s.unlock()
		return MailboxHeader{}, Frame{}, fmt.Errorf("read mailbox %d: %w", mb, derr)
	}
	if err != nil {
		s.unlock()
		return MailboxHeader{}, Frame{}, err
	}

	idw := s.block.ID(mb).Read()
	var id ID
	if regs.CSIDE.Get(cs) {
		id = ID{value: regs.IDExt.Get(idw), extended: true}
	} else {
		id = ID{value: regs.IDStd.Get(idw)}
	}

	dlc := regs.CSDLC.Get(cs)
	if dlc > 8 {
		dlc = 8
	}
	f := Frame{ID: id, Remote: regs.CSRTR.Get(cs), Len: uint8(dlc)}
	if !f.Remote {
		for i := 0; i < int(dlc); i++ {
			word, shift := regs.PayloadLane(i)
			f.Data[i] = byte(s.block.Data(mb, word-2).Read() >> shift)
		}
	}

	h := MailboxHeader{
		Code:                bs,
		Timestamp:           uint16(regs.CSTimestamp.Get(cs)),
		Priority:            uint8(regs.IDPrio.Get(idw)),
		ErrorStateIndicator: regs.CSESI.Get(cs),
	}

	s.block.IFlag1.Write(regs.MailboxFlag(mb))
	s.unlock()
	return h, f, nil
}

// readCode returns the decoded buffer state of mailbox mb. The control
// word read locks the mailbox, so the timer is read afterwards either
// way.
func (s *mailboxStore) readCode(mb int) (BufferState, error) {
	if err := checkIndex(mb); err != nil {
		return BufferState{}, err
	}
	code := regs.CSCode.Get(s.block.CS(mb).Read())
	s.unlock()
	bs, err := DecodeBufferState(code)
	if err != nil {
		return BufferState{}, fmt.Errorf("mailbox %d: %w", mb, err)
	}
	return bs, nil
}

// inactivate forces mailbox mb to the inactive code of its current role.
// An undecodable control word is zeroed outright rather than guessed at;
// a zero word is the receive-inactive code.
func (s *mailboxStore) inactivate(mb int) {
	cur, err := DecodeBufferState(regs.CSCode.Get(s.block.CS(mb).Read()))
	switch {
	case err != nil:
		s.block.CS(mb).Write(0)
	case cur.State.Transmit():
		s.block.CS(mb).Write(regs.CSCode.Insert(0, regs.CodeTxInactive))
	default:
		s.block.CS(mb).Write(regs.CSCode.Insert(0, regs.CodeRxInactive))
	}
}

// abort asks the peripheral to give back the pending frame in transmit
// mailbox mb. Three outcomes: the abort won and the frame is returned;
// the frame won the race and went out on the wire, returning nil; the
// mailbox was not pending at all, also nil.
//
// The handshake follows the data sheet: clear the completion flag, write
// the abort code over the pending one, then wait for the flag to rise
// again, which signals that the peripheral settled the race one way or
// the other.
func (s *mailboxStore) abort(mb int) (*Frame, error) {
	if err := checkIndex(mb); err != nil {
		return nil, err
	}
	cur, err := s.readCode(mb)
	if err != nil {
		return nil, err
	}
	if cur.State != TxDataRemote {
		return nil, nil
	}

	s.block.IFlag1.Write(regs.MailboxFlag(mb))
	s.block.CS(mb).Modify(func(v uint32) uint32 {
		return regs.CSCode.Insert(v, regs.CodeTxAbort)
	})
	err = waitUntil(s.timeout, fmt.Sprintf("mailbox %d abort completion", mb), func() bool {
		return s.block.IFlag1.Read()&regs.MailboxFlag(mb) != 0
	})
	if err != nil {
		return nil, err
	}

	h, f, err := s.read(mb)
	if err != nil {
		return nil, err
	}
	switch h.Code.State {
	case TxAbort:
		return &f, nil
	case TxInactive:
		return nil, nil
	default:
		return nil, fmt.Errorf("abort of mailbox %d settled in state %v: %w", mb, h.Code.State, ErrUnexpectedCode)
	}
}

// unlock reads the free-running timer, the documented way to release any
// mailbox lock held by a prior control word read.
func (s *mailboxStore) unlock() { _ = s.block.Timer.Read() }
