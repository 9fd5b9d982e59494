package flexcan

import (
	"fmt"

	"github.com/kstaniek/go-flexcan/internal/metrics"
	"github.com/kstaniek/go-flexcan/internal/regs"
)

// State is the role-qualified buffer state of a mailbox.
type State uint8

const (
	// Transmit states.
	TxInactive State = iota
	TxAbort
	TxDataRemote
	TxTanswer
	// Receive states.
	RxInactive
	RxEmpty
	RxFull
	RxOverrun
	RxRanswer
)

func (s State) String() string {
	switch s {
	case TxInactive:
		return "tx-inactive"
	case TxAbort:
		return "tx-abort"
	case TxDataRemote:
		return "tx-data-remote"
	case TxTanswer:
		return "tx-tanswer"
	case RxInactive:
		return "rx-inactive"
	case RxEmpty:
		return "rx-empty"
	case RxFull:
		return "rx-full"
	case RxOverrun:
		return "rx-overrun"
	case RxRanswer:
		return "rx-ranswer"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Transmit reports whether s is a transmit-role state.
func (s State) Transmit() bool { return s <= TxTanswer }

// BufferState is the decoded CODE field of a mailbox control/status
// word. Busy means the peripheral is updating the slot and the CPU must
// not touch it; only receive states carry the busy bit on the wire.
type BufferState struct {
	State State
	Busy  bool
}

// Code returns the 4-bit control/status encoding of bs. Transmit states
// have no busy bit in the encoding, so a busy transmit state is
// unrepresentable and rejected.
func (bs BufferState) Code() (uint32, error) {
	if bs.State.Transmit() {
		if bs.Busy {
			return 0, fmt.Errorf("flexcan: %v cannot carry the busy bit", bs.State)
		}
		switch bs.State {
		case TxInactive:
			return regs.CodeTxInactive, nil
		case TxAbort:
			return regs.CodeTxAbort, nil
		case TxDataRemote:
			return regs.CodeTxDataRemote, nil
		default:
			return regs.CodeTxTanswer, nil
		}
	}

	var code uint32
	switch bs.State {
	case RxInactive:
		code = regs.CodeRxInactive
	case RxEmpty:
		code = regs.CodeRxEmpty
	case RxFull:
		code = regs.CodeRxFull
	case RxOverrun:
		code = regs.CodeRxOverrun
	case RxRanswer:
		code = regs.CodeRxRanswer
	default:
		return 0, fmt.Errorf("flexcan: unknown buffer state %v", bs.State)
	}
	if bs.Busy {
		code |= regs.CodeRxBusyBit
	}
	return code, nil
}

// DecodeBufferState maps a raw 4-bit CODE value back to its buffer
// state. The two reserved encodings return a CodeError; a controller
// reading one is off the data sheet and the caller must not guess.
func DecodeBufferState(code uint32) (BufferState, error) {
	switch code & 0xF {
	case regs.CodeTxInactive:
		return BufferState{State: TxInactive}, nil
	case regs.CodeTxAbort:
		return BufferState{State: TxAbort}, nil
	case regs.CodeTxDataRemote:
		return BufferState{State: TxDataRemote}, nil
	case regs.CodeTxTanswer:
		return BufferState{State: TxTanswer}, nil
	case regs.CodeRxInactive:
		return BufferState{State: RxInactive}, nil
	case regs.CodeRxInactive | regs.CodeRxBusyBit:
		return BufferState{State: RxInactive, Busy: true}, nil
	case regs.CodeRxEmpty:
		return BufferState{State: RxEmpty}, nil
	case regs.CodeRxEmpty | regs.CodeRxBusyBit:
		return BufferState{State: RxEmpty, Busy: true}, nil
	case regs.CodeRxFull:
		return BufferState{State: RxFull}, nil
	case regs.CodeRxFull | regs.CodeRxBusyBit:
		return BufferState{State: RxFull, Busy: true}, nil
	case regs.CodeRxOverrun:
		return BufferState{State: RxOverrun}, nil
	case regs.CodeRxOverrun | regs.CodeRxBusyBit:
		return BufferState{State: RxOverrun, Busy: true}, nil
	case regs.CodeRxRanswer:
		return BufferState{State: RxRanswer}, nil
	case regs.CodeRxRanswer | regs.CodeRxBusyBit:
		return BufferState{State: RxRanswer, Busy: true}, nil
	default:
		metrics.IncDecodeError()
		return BufferState{}, &CodeError{Code: code & 0xF}
	}
}
