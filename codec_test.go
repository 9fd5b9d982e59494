package flexcan

import (
	"errors"
	"testing"
)

func TestBufferStateCodeRoundTrip(t *testing.T) {
	// All fourteen representable states.
	states := []BufferState{
		{State: TxInactive}, {State: TxAbort}, {State: TxDataRemote}, {State: TxTanswer},
		{State: RxInactive}, {State: RxInactive, Busy: true},
		{State: RxEmpty}, {State: RxEmpty, Busy: true},
		{State: RxFull}, {State: RxFull, Busy: true},
		{State: RxOverrun}, {State: RxOverrun, Busy: true},
		{State: RxRanswer}, {State: RxRanswer, Busy: true},
	}
	seen := make(map[uint32]BufferState, len(states))
	for _, bs := range states {
		t.Run(bs.State.String(), func(t *testing.T) {
			code, err := bs.Code()
			if err != nil {
				t.Fatal(err)
			}
			if prev, dup := seen[code]; dup {
				t.Fatalf("code %#04b already encodes %v", code, prev)
			}
			seen[code] = bs
			back, err := DecodeBufferState(code)
			if err != nil {
				t.Fatal(err)
			}
			if back != bs {
				t.Fatalf("decode(%#04b) = %v, want %v", code, back, bs)
			}
		})
	}
}

func TestBufferStateCodes(t *testing.T) {
	tests := []struct {
		bs   BufferState
		code uint32
	}{
		{BufferState{State: TxInactive}, 0b1000},
		{BufferState{State: TxAbort}, 0b1001},
		{BufferState{State: TxDataRemote}, 0b1100},
		{BufferState{State: TxTanswer}, 0b1110},
		{BufferState{State: RxInactive}, 0b0000},
		{BufferState{State: RxEmpty}, 0b0100},
		{BufferState{State: RxFull}, 0b0010},
		{BufferState{State: RxOverrun}, 0b0110},
		{BufferState{State: RxRanswer}, 0b1010},
		{BufferState{State: RxEmpty, Busy: true}, 0b0101},
	}
	for _, tt := range tests {
		got, err := tt.bs.Code()
		if err != nil {
			t.Fatalf("%v: %v", tt.bs, err)
		}
		if got != tt.code {
			t.Errorf("%v = %#04b, want %#04b", tt.bs, got, tt.code)
		}
	}
}

func TestDecodeReservedCodes(t *testing.T) {
	for _, code := range []uint32{0b1101, 0b1111} {
		_, err := DecodeBufferState(code)
		var ce *CodeError
		if !errors.As(err, &ce) {
			t.Fatalf("decode(%#04b) err = %v, want CodeError", code, err)
		}
		if ce.Code != code {
			t.Fatalf("CodeError.Code = %#04b, want %#04b", ce.Code, code)
		}
		if !IsCodeError(err) {
			t.Fatal("IsCodeError false for CodeError")
		}
	}
}

func TestDecodeMasksHighBits(t *testing.T) {
	// Callers pass the extracted field; stray high bits must not change
	// the verdict.
	bs, err := DecodeBufferState(0xFFFFFFF0 | 0b0100)
	if err != nil {
		t.Fatal(err)
	}
	if bs.State != RxEmpty || bs.Busy {
		t.Fatalf("state = %v", bs)
	}
}

func TestEncodeBusyTransmitRejected(t *testing.T) {
	for _, s := range []State{TxInactive, TxAbort, TxDataRemote, TxTanswer} {
		if _, err := (BufferState{State: s, Busy: true}).Code(); err == nil {
			t.Fatalf("%v busy encoded without error", s)
		}
	}
}

func TestStateTransmit(t *testing.T) {
	for _, s := range []State{TxInactive, TxAbort, TxDataRemote, TxTanswer} {
		if !s.Transmit() {
			t.Errorf("%v not transmit", s)
		}
	}
	for _, s := range []State{RxInactive, RxEmpty, RxFull, RxOverrun, RxRanswer} {
		if s.Transmit() {
			t.Errorf("%v reported transmit", s)
		}
	}
}
