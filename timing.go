package flexcan

import (
	"fmt"

	"github.com/kstaniek/go-flexcan/internal/regs"
)

// bitTiming holds the CTRL1 segment encoding for one nominal bit rate.
// All values are register encodings, one less than the quanta they span.
type bitTiming struct {
	presdiv uint32
	rjw     uint32
	pseg1   uint32
	pseg2   uint32
	propseg uint32
}

// resolveSourceClock maps the configured clock source to its frequency.
func resolveSourceClock(clk Clock, src ClockSource) (uint32, error) {
	switch src {
	case SysClock:
		return clk.CoreFrequency(), nil
	case SOSCDIV2:
		hz, ok := clk.SOSCDIV2Frequency()
		if !ok {
			return 0, ErrClockSourceDisabled
		}
		return hz, nil
	default:
		return 0, fmt.Errorf("clock source %d: %w", src, ErrSettings)
	}
}

// computeBitTiming derives CAN standard compliant segment values for
// bitRate from a sourceHz engine clock. The prescaler targets 25 time
// quanta per bit and the segment split follows the data sheet table of
// compliant settings, which covers 8 to 25 quanta.
func computeBitTiming(sourceHz, bitRate uint32) (bitTiming, error) {
	if sourceHz%bitRate != 0 || sourceHz < bitRate*5 {
		return bitTiming{}, fmt.Errorf("source %d Hz for bit rate %d Hz: %w", sourceHz, bitRate, ErrSettings)
	}

	presdiv := (sourceHz / bitRate) / 25
	if presdiv > regs.CTRL1PRESDIV.Max() {
		return bitTiming{}, fmt.Errorf("prescaler %d exceeds %d: %w", presdiv, regs.CTRL1PRESDIV.Max(), ErrBitTimingRange)
	}
	tqs := (sourceHz / (presdiv + 1)) / bitRate

	var pseg2, rjw uint32
	switch {
	case tqs >= 8 && tqs < 10:
		pseg2, rjw = 1, 1
	case tqs >= 10 && tqs < 15:
		pseg2, rjw = 3, 2
	case tqs >= 15 && tqs < 20:
		pseg2, rjw = 6, 2
	case tqs >= 20 && tqs < 26:
		pseg2, rjw = 7, 3
	default:
		return bitTiming{}, fmt.Errorf("%d quanta per bit, need 8..25: %w", tqs, ErrBitTimingRange)
	}

	pseg1 := ((tqs - (pseg2 + 1)) / 2) - 1
	propseg := tqs - (pseg2 + 1) - (pseg1 + 1) - 2

	bt := bitTiming{presdiv: presdiv, rjw: rjw, pseg1: pseg1, pseg2: pseg2, propseg: propseg}
	if got := bt.quanta(); got != tqs {
		return bitTiming{}, fmt.Errorf("segment split yields %d quanta, want %d: %w", got, tqs, ErrBitTimingRange)
	}
	if propseg > regs.CTRL1PROPSEG.Max() {
		return bitTiming{}, fmt.Errorf("propagation segment %d exceeds %d: %w", propseg, regs.CTRL1PROPSEG.Max(), ErrBitTimingRange)
	}
	return bt, nil
}

// quanta returns the number of time quanta a bit spans: sync segment
// plus the three programmed segments.
func (bt bitTiming) quanta() uint32 {
	return 1 + (bt.propseg + 1) + (bt.pseg1 + 1) + (bt.pseg2 + 1)
}

// insert returns ctrl1 with the timing fields replaced.
func (bt bitTiming) insert(ctrl1 uint32) uint32 {
	v := regs.CTRL1PRESDIV.Insert(ctrl1, bt.presdiv)
	v = regs.CTRL1RJW.Insert(v, bt.rjw)
	v = regs.CTRL1PSEG1.Insert(v, bt.pseg1)
	v = regs.CTRL1PSEG2.Insert(v, bt.pseg2)
	v = regs.CTRL1PROPSEG.Insert(v, bt.propseg)
	return v
}

func (bt bitTiming) String() string {
	return fmt.Sprintf("presdiv=%d propseg=%d pseg1=%d pseg2=%d rjw=%d quanta=%d",
		bt.presdiv, bt.propseg, bt.pseg1, bt.pseg2, bt.rjw, bt.quanta())
}
