package flexcan

import (
	"testing"

	"github.com/kstaniek/go-flexcan/internal/logging"
	"github.com/kstaniek/go-flexcan/sim"
)

func BenchmarkTransmitReceiveLoopback(b *testing.B) {
	p := sim.New()
	p.AutoComplete = true
	s := DefaultSettings()
	s.Loopback = true
	s.Logger = logging.Nop()
	c, err := New(p, StaticClock{Core: 80_000_000, SOSCDIV2: 8_000_000}, s)
	if err != nil {
		b.Fatal(err)
	}
	id, _ := BaseID(0x123)
	f, _ := NewFrame(id, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := c.TransmitQuick(f); err != nil {
			b.Fatal(err)
		}
		if _, err := c.Receive(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMailboxWrite(b *testing.B) {
	p := sim.New()
	s := DefaultSettings()
	s.Logger = logging.Nop()
	c, err := New(p, StaticClock{Core: 80_000_000, SOSCDIV2: 8_000_000}, s)
	if err != nil {
		b.Fatal(err)
	}
	id, _ := BaseID(0x123)
	f, _ := NewFrame(id, []byte{1, 2, 3, 4})
	h := defaultTransmitHeader()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := c.store.write(0, h, f); err != nil {
			b.Fatal(err)
		}
		c.store.inactivate(0)
	}
}

func BenchmarkDecodeBufferState(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = DecodeBufferState(uint32(i) & 0xF)
	}
}

func BenchmarkComputeBitTiming(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = computeBitTiming(8_000_000, 250_000)
	}
}
