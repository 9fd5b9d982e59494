package flexcan

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-flexcan/internal/logging"
)

// DefaultPollTimeout bounds every register poll when Settings leaves
// PollTimeout zero. Peripheral acknowledgements arrive within a few
// clock cycles; ten milliseconds is generous even under a slow bus.
const DefaultPollTimeout = 10 * time.Millisecond

// ClockSource selects the clock fed to the CAN protocol engine.
type ClockSource uint8

const (
	// SOSCDIV2 clocks the engine from the divided system oscillator.
	// Its frequency must stay below the bus clock.
	SOSCDIV2 ClockSource = iota
	// SysClock clocks the engine from the peripheral clock.
	SysClock
)

func (c ClockSource) String() string {
	switch c {
	case SOSCDIV2:
		return "soscdiv2"
	case SysClock:
		return "sys"
	default:
		return fmt.Sprintf("clocksource(%d)", uint8(c))
	}
}

// Clock reports the frequencies the controller can run from. It stands
// in for the SoC clock tree so the driver never reaches into another
// peripheral's registers.
type Clock interface {
	// CoreFrequency returns the peripheral clock in Hz.
	CoreFrequency() uint32
	// SOSCDIV2Frequency returns the divided oscillator clock in Hz.
	// ok is false while the divider output is gated off.
	SOSCDIV2Frequency() (hz uint32, ok bool)
}

// StaticClock is a Clock with fixed frequencies. A zero SOSCDIV2 field
// reports the divider as disabled.
type StaticClock struct {
	Core     uint32
	SOSCDIV2 uint32
}

func (c StaticClock) CoreFrequency() uint32 { return c.Core }

func (c StaticClock) SOSCDIV2Frequency() (uint32, bool) {
	return c.SOSCDIV2, c.SOSCDIV2 != 0
}

// Settings configures a controller at construction time. The zero value
// is not valid; start from DefaultSettings.
type Settings struct {
	// BitRate is the target bus bit rate in Hz. The source clock must
	// be an integer multiple of it, at least 5x.
	BitRate uint32

	// ClockSource selects the protocol engine clock.
	ClockSource ClockSource

	// Loopback routes the transmitter output back to the receiver for
	// self test. The Rx pin is ignored and the Tx pin stays recessive.
	Loopback bool

	// SelfReception lets the controller store frames it transmitted
	// itself. Required for loopback tests to observe anything.
	SelfReception bool

	// WarningInterrupts enables the error counter warning flags.
	WarningInterrupts bool

	// RxFIFO enables the hardware FIFO engine over mailboxes 0..5.
	// The driver programs the bit but offers no FIFO read path yet.
	RxFIFO bool

	// IndividualMasking switches acceptance filtering to per-mailbox
	// masks instead of the global mask.
	IndividualMasking bool

	// PollTimeout bounds every busy-wait on a peripheral
	// acknowledgement. Zero means DefaultPollTimeout.
	PollTimeout time.Duration

	// Logger receives driver events. Nil means the package logger.
	Logger *slog.Logger
}

// DefaultSettings returns the conventional 1 Mbit/s configuration off
// the divided oscillator with self reception on.
func DefaultSettings() Settings {
	return Settings{
		BitRate:       1_000_000,
		ClockSource:   SOSCDIV2,
		SelfReception: true,
	}
}

// Validate checks value ranges. It does not touch hardware; clock rate
// compatibility is established during construction once the source
// frequency is known.
func (s *Settings) Validate() error {
	if s == nil {
		return fmt.Errorf("nil settings: %w", ErrSettings)
	}
	if s.BitRate == 0 {
		return fmt.Errorf("bit rate must be > 0: %w", ErrSettings)
	}
	if s.ClockSource != SOSCDIV2 && s.ClockSource != SysClock {
		return fmt.Errorf("unknown clock source %d: %w", s.ClockSource, ErrSettings)
	}
	if s.PollTimeout < 0 {
		return fmt.Errorf("poll timeout must be >= 0: %w", ErrSettings)
	}
	return nil
}

// pollTimeout returns the effective poll bound.
func (s *Settings) pollTimeout() time.Duration {
	if s.PollTimeout > 0 {
		return s.PollTimeout
	}
	return DefaultPollTimeout
}

// logger returns the effective logger.
func (s *Settings) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.L()
}
