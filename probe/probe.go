// Package probe drives a register window over a serial debug monitor,
// the little peek/poke stub most bringup firmware answers on a UART.
// It lets the driver run against a controller on a real board from the
// host side: open the port, point a Window at the peripheral base and
// hand it to the driver as if it were memory mapped.
//
// Register accesses cannot fail in the Window contract, so transport
// and protocol errors latch: the first one is kept, later loads read
// as open bus and later stores are dropped. Check Err after the driver
// reports poll timeouts to see what actually went wrong on the wire.
package probe

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/kstaniek/go-flexcan/internal/logging"
	"github.com/kstaniek/go-flexcan/internal/metrics"
	"github.com/kstaniek/go-flexcan/mmio"
)

// Monitor frames in both directions:
// [pre0, pre1, len+1, payload..., checksum]
// checksum = (len+1) + pre0 + sum(payload) (mod 256)
//
// Request payload:  op(1) + addr(4) + value(4, writes only)
// Response payload: status(1) + value(4, read responses only)
const (
	reqPre0 = 0xA5
	reqPre1 = 0xC3
	rspPre0 = 0xA5
	rspPre1 = 0xC4

	opRead  = 0x01
	opWrite = 0x02

	stOK = 0x00
)

var (
	// ErrBadFrame reports a response that failed framing or checksum
	// validation. The exchange is not retried; request/response streams
	// cannot be realigned reliably once a reply is mangled.
	ErrBadFrame = errors.New("probe: malformed monitor response")
	// ErrFault reports a non-zero monitor status, usually a bus fault at
	// the requested address.
	ErrFault = errors.New("probe: monitor fault")
)

// Port abstracts tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens the named serial port. readTimeout bounds how long a
// single register access may stall on a silent monitor; after it
// expires the pending exchange fails and the Window latches.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}

// Window tunnels register accesses to the monitor behind port. Offsets
// are relative to base, the peripheral block address on the target.
type Window struct {
	mu   sync.Mutex
	port Port
	br   *bufio.Reader
	base uint32
	err  error
}

var _ mmio.Window = (*Window)(nil)

// New returns a Window over port for the register block at base.
func New(port Port, base uint32) *Window {
	return &Window{port: port, br: bufio.NewReader(port), base: base}
}

// Load reads the word at off. A latched or fresh error reads as open
// bus.
func (w *Window) Load(off uint32) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return mmio.OpenBus
	}
	v, err := w.exchange(opRead, w.base+off, 0)
	if err != nil {
		w.latch("probe_read_failed", off, err)
		return mmio.OpenBus
	}
	return v
}

// Store writes the word at off. Stores after a latched error are
// dropped.
func (w *Window) Store(off uint32, v uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if _, err := w.exchange(opWrite, w.base+off, v); err != nil {
		w.latch("probe_write_failed", off, err)
	}
}

// Err returns the latched error, nil while the link is healthy.
func (w *Window) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying port.
func (w *Window) Close() error { return w.port.Close() }

func (w *Window) latch(event string, off uint32, err error) {
	w.err = err
	metrics.IncError(metrics.ErrProbe)
	logging.L().Error(event, "offset", fmt.Sprintf("%#x", off), "error", err)
}

func (w *Window) exchange(op byte, addr, val uint32) (uint32, error) {
	payload := make([]byte, 0, 9)
	payload = append(payload, op)
	payload = binary.BigEndian.AppendUint32(payload, addr)
	if op == opWrite {
		payload = binary.BigEndian.AppendUint32(payload, val)
	}
	if _, err := w.port.Write(frame(payload)); err != nil {
		return 0, fmt.Errorf("request: %w", err)
	}
	return w.response(op)
}

// frame builds a request frame around payload.
func frame(payload []byte) []byte {
	n := len(payload)
	f := make([]byte, n+4)
	f[0] = reqPre0
	f[1] = reqPre1
	f[2] = byte(n + 1)
	sum := f[2] + reqPre0
	for i, b := range payload {
		f[3+i] = b
		sum += b
	}
	f[3+n] = sum
	return f
}

// response reads one monitor reply. Leading garbage is skipped by
// scanning for the preamble; monitors tend to share the UART with boot
// chatter.
func (w *Window) response(op byte) (uint32, error) {
	for {
		b, err := w.br.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("response: %w", err)
		}
		if b != rspPre0 {
			continue
		}
		b, err = w.br.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("response: %w", err)
		}
		if b == rspPre1 {
			break
		}
		if b == rspPre0 {
			_ = w.br.UnreadByte()
		}
	}

	ln, err := w.br.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("response: %w", err)
	}
	// Payload is status alone or status plus a value word.
	if ln != 2 && ln != 6 {
		return 0, fmt.Errorf("length %d: %w", ln, ErrBadFrame)
	}
	buf := make([]byte, ln)
	if _, err := io.ReadFull(w.br, buf); err != nil {
		return 0, fmt.Errorf("response: %w", err)
	}

	sum := rspPre0 + ln
	for _, b := range buf[:ln-1] {
		sum += b
	}
	if sum != buf[ln-1] {
		return 0, fmt.Errorf("checksum %#02x want %#02x: %w", buf[ln-1], sum, ErrBadFrame)
	}

	if st := buf[0]; st != stOK {
		return 0, fmt.Errorf("status %#02x: %w", st, ErrFault)
	}
	if op == opRead {
		if ln != 6 {
			return 0, fmt.Errorf("read reply without value: %w", ErrBadFrame)
		}
		return binary.BigEndian.Uint32(buf[1:5]), nil
	}
	return 0, nil
}
