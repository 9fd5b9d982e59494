package probe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	flexcan "github.com/kstaniek/go-flexcan"
	"github.com/kstaniek/go-flexcan/mmio"
	"github.com/kstaniek/go-flexcan/sim"
)

const testBase = 0x40024000 // FlexCAN0 on the S32K1 parts

// monitor is the target-side stub: it parses request frames, executes
// them against a backing window and queues the reply bytes.
type monitor struct {
	base   uint32
	win    mmio.Window
	rx     bytes.Buffer
	tx     bytes.Buffer
	pre    []byte          // injected ahead of the next reply
	mangle bool            // corrupt the next reply checksum
	faults map[uint32]byte // absolute address -> status code
	reads  int
	writes int
}

func newMonitor(win mmio.Window) *monitor {
	return &monitor{base: testBase, win: win}
}

func (m *monitor) Write(p []byte) (int, error) {
	m.rx.Write(p)
	for m.step() {
	}
	return len(p), nil
}

func (m *monitor) step() bool {
	data := m.rx.Bytes()
	if len(data) < 3 {
		return false
	}
	if data[0] != reqPre0 || data[1] != reqPre1 {
		m.rx.Next(1)
		return true
	}
	ln := int(data[2])
	if len(data) < 3+ln {
		return false
	}
	payload := data[3 : 3+ln-1]
	sum := data[2] + reqPre0
	for _, b := range payload {
		sum += b
	}
	if sum != data[3+ln-1] {
		m.rx.Next(1)
		return true
	}

	op := payload[0]
	addr := binary.BigEndian.Uint32(payload[1:5])
	switch {
	case m.faults[addr] != 0:
		m.respond([]byte{m.faults[addr]})
	case op == opRead:
		m.reads++
		var v [5]byte
		binary.BigEndian.PutUint32(v[1:], m.win.Load(addr-m.base))
		m.respond(v[:])
	case op == opWrite:
		m.writes++
		m.win.Store(addr-m.base, binary.BigEndian.Uint32(payload[5:9]))
		m.respond([]byte{stOK})
	}
	m.rx.Next(3 + ln)
	return true
}

func (m *monitor) respond(payload []byte) {
	n := len(payload)
	f := make([]byte, n+4)
	f[0] = rspPre0
	f[1] = rspPre1
	f[2] = byte(n + 1)
	sum := f[2] + rspPre0
	for i, b := range payload {
		f[3+i] = b
		sum += b
	}
	f[3+n] = sum
	if m.mangle {
		f[n+3] ^= 0xFF
		m.mangle = false
	}
	if len(m.pre) > 0 {
		m.tx.Write(m.pre)
		m.pre = nil
	}
	m.tx.Write(f)
}

func (m *monitor) Read(p []byte) (int, error) {
	if m.tx.Len() == 0 {
		return 0, io.EOF
	}
	return m.tx.Read(p)
}

func (m *monitor) Close() error { return nil }

// deadPort accepts requests and never answers.
type deadPort struct{}

func (deadPort) Write(p []byte) (int, error) { return len(p), nil }
func (deadPort) Read(p []byte) (int, error)  { return 0, io.EOF }
func (deadPort) Close() error                { return nil }

func TestRequestFrameLayout(t *testing.T) {
	got := frame([]byte{0x01, 0x00, 0x00, 0x00, 0x10})
	want := []byte{0xA5, 0xC3, 0x06, 0x01, 0x00, 0x00, 0x00, 0x10, 0xBC}
	if !bytes.Equal(got, want) {
		t.Fatalf("frame = % x, want % x", got, want)
	}
}

func TestWindowRoundTrip(t *testing.T) {
	m := newMonitor(mmio.NewMem(0x1000))
	w := New(m, testBase)

	w.Store(0x10, 0xDEADBEEF)
	if v := w.Load(0x10); v != 0xDEADBEEF {
		t.Fatalf("Load = %#x, want 0xDEADBEEF", v)
	}
	if v := w.Load(0x14); v != 0 {
		t.Fatalf("untouched word = %#x, want 0", v)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
	if m.reads != 2 || m.writes != 1 {
		t.Fatalf("monitor saw %d reads, %d writes", m.reads, m.writes)
	}
}

func TestWindowResyncsOnGarbage(t *testing.T) {
	m := newMonitor(mmio.NewMem(0x1000))
	w := New(m, testBase)

	w.Store(0x20, 42)
	// Boot chatter before the reply, ending on a stray preamble byte.
	m.pre = []byte{0x00, 0xFF, 0x13, 0xA5}
	if v := w.Load(0x20); v != 42 {
		t.Fatalf("Load through garbage = %d, want 42", v)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
}

func TestWindowLatchesOnBadChecksum(t *testing.T) {
	m := newMonitor(mmio.NewMem(0x1000))
	w := New(m, testBase)

	m.mangle = true
	if v := w.Load(0x10); v != mmio.OpenBus {
		t.Fatalf("Load = %#x, want open bus", v)
	}
	if !errors.Is(w.Err(), ErrBadFrame) {
		t.Fatalf("Err = %v, want ErrBadFrame", w.Err())
	}

	// Latched: no further traffic reaches the monitor.
	reads, writes := m.reads, m.writes
	if v := w.Load(0x10); v != mmio.OpenBus {
		t.Fatalf("sticky Load = %#x, want open bus", v)
	}
	w.Store(0x10, 7)
	if m.reads != reads || m.writes != writes {
		t.Fatal("latched window still talks to the monitor")
	}
}

func TestWindowMonitorFault(t *testing.T) {
	m := newMonitor(mmio.NewMem(0x1000))
	m.faults = map[uint32]byte{testBase + 0x20: 0x03}
	w := New(m, testBase)

	if v := w.Load(0x20); v != mmio.OpenBus {
		t.Fatalf("Load = %#x, want open bus", v)
	}
	if !errors.Is(w.Err(), ErrFault) {
		t.Fatalf("Err = %v, want ErrFault", w.Err())
	}
}

func TestWindowDeadMonitor(t *testing.T) {
	w := New(deadPort{}, testBase)
	if v := w.Load(0); v != mmio.OpenBus {
		t.Fatalf("Load = %#x, want open bus", v)
	}
	if !errors.Is(w.Err(), io.EOF) {
		t.Fatalf("Err = %v, want EOF", w.Err())
	}
}

// TestDriverOverProbe runs the whole driver against a simulated
// controller reached only through the monitor protocol.
func TestDriverOverProbe(t *testing.T) {
	p := sim.New()
	p.AutoComplete = true
	w := New(newMonitor(p), testBase)

	s := flexcan.DefaultSettings()
	s.Loopback = true
	c, err := flexcan.New(w, flexcan.StaticClock{Core: 80_000_000, SOSCDIV2: 8_000_000}, s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := flexcan.BaseID(0x123)
	if err != nil {
		t.Fatal(err)
	}
	sent, err := flexcan.NewFrame(id, []byte{0xCA, 0xFE})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.TransmitQuick(sent); err != nil {
		t.Fatalf("TransmitQuick: %v", err)
	}
	got, err := c.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.ID != sent.ID || got.Len != sent.Len || got.Data != sent.Data {
		t.Fatalf("received %v, want %v", got, sent)
	}
	if err := w.Err(); err != nil {
		t.Fatalf("link error after round trip: %v", err)
	}
}
