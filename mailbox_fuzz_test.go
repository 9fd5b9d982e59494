package flexcan

import (
	"testing"
	"time"

	"github.com/kstaniek/go-flexcan/internal/regs"
	"github.com/kstaniek/go-flexcan/sim"
)

// FuzzMailboxRoundTrip ensures any representable frame survives a raw
// mailbox write and read unchanged.
func FuzzMailboxRoundTrip(f *testing.F) {
	f.Add(uint32(0x123), false, false, []byte{1, 2, 3})
	f.Add(uint32(0x1FFFFFFF), true, false, []byte{})
	f.Add(uint32(0x7FF), false, true, []byte{0, 0, 0, 0})
	f.Add(uint32(0), true, false, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, idVal uint32, extended bool, remote bool, data []byte) {
		var id ID
		var err error
		if extended {
			id, err = ExtendedID(idVal & ExtendedIDMask)
		} else {
			id, err = BaseID(idVal & BaseIDMask)
		}
		if err != nil {
			t.Fatalf("masked id rejected: %v", err)
		}
		if len(data) > 8 {
			data = data[:8]
		}
		var frame Frame
		if remote {
			frame, err = NewRemoteFrame(id, len(data))
		} else {
			frame, err = NewFrame(id, data)
		}
		if err != nil {
			t.Fatalf("frame rejected: %v", err)
		}

		s := &mailboxStore{block: regs.NewBlock(sim.New()), timeout: 50 * time.Millisecond}
		if err := s.write(0, MailboxHeader{Code: BufferState{State: TxDataRemote}}, frame); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, got, err := s.read(0)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != frame {
			t.Fatalf("round trip %v, want %v", got, frame)
		}
	})
}

// FuzzDecodeBufferState ensures decode never panics and accepts exactly
// the fourteen documented encodings.
func FuzzDecodeBufferState(f *testing.F) {
	for code := uint32(0); code < 16; code++ {
		f.Add(code)
	}
	f.Fuzz(func(t *testing.T, code uint32) {
		bs, err := DecodeBufferState(code)
		if err != nil {
			if (code&0xF) != 0b1101 && (code&0xF) != 0b1111 {
				t.Fatalf("decode(%#04b) = %v, want success", code&0xF, err)
			}
			return
		}
		back, err := bs.Code()
		if err != nil {
			t.Fatalf("re-encode %v: %v", bs, err)
		}
		if back != code&0xF {
			t.Fatalf("re-encode %v = %#04b, want %#04b", bs, back, code&0xF)
		}
	})
}
