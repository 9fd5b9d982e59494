package flexcan

import (
	"errors"
	"testing"
)

func TestComputeBitTiming(t *testing.T) {
	tests := []struct {
		name     string
		sourceHz uint32
		bitRate  uint32
		want     bitTiming
	}{
		{
			// 8 quanta, smallest compliant bit
			name: "8MHz to 1Mbit", sourceHz: 8_000_000, bitRate: 1_000_000,
			want: bitTiming{presdiv: 0, rjw: 1, pseg1: 2, pseg2: 1, propseg: 1},
		},
		{
			name: "8MHz to 250kbit", sourceHz: 8_000_000, bitRate: 250_000,
			want: bitTiming{presdiv: 1, rjw: 2, pseg1: 3, pseg2: 6, propseg: 3},
		},
		{
			name: "8MHz to 125kbit", sourceHz: 8_000_000, bitRate: 125_000,
			want: bitTiming{presdiv: 2, rjw: 3, pseg1: 5, pseg2: 7, propseg: 5},
		},
		{
			name: "80MHz to 500kbit", sourceHz: 80_000_000, bitRate: 500_000,
			want: bitTiming{presdiv: 6, rjw: 3, pseg1: 6, pseg2: 7, propseg: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := computeBitTiming(tt.sourceHz, tt.bitRate)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("timing = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeBitTimingQuantaInvariant(t *testing.T) {
	// Every accepted configuration must account for each quantum of the
	// bit exactly once across sync, propagation and the phase segments.
	for _, sourceHz := range []uint32{8_000_000, 16_000_000, 40_000_000, 80_000_000} {
		for _, bitRate := range []uint32{125_000, 250_000, 500_000, 1_000_000} {
			bt, err := computeBitTiming(sourceHz, bitRate)
			if err != nil {
				continue
			}
			perQuantum := sourceHz / (bt.presdiv + 1)
			if perQuantum/bitRate != bt.quanta() {
				t.Errorf("source %d rate %d: segments span %d quanta, prescaler yields %d",
					sourceHz, bitRate, bt.quanta(), perQuantum/bitRate)
			}
			if bt.quanta() < 8 || bt.quanta() > 25 {
				t.Errorf("source %d rate %d: %d quanta outside table", sourceHz, bitRate, bt.quanta())
			}
		}
	}
}

func TestComputeBitTimingErrors(t *testing.T) {
	tests := []struct {
		name     string
		sourceHz uint32
		bitRate  uint32
		want     error
	}{
		{"not divisible", 8_000_000, 3_000_000, ErrSettings},
		{"source below 5x", 4_000_000, 1_000_000, ErrSettings},
		{"too few quanta", 80_000_000, 16_000_000, ErrBitTimingRange},
		{"prescaler overflow", 80_000_000, 10_000, ErrBitTimingRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := computeBitTiming(tt.sourceHz, tt.bitRate); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolveSourceClock(t *testing.T) {
	clk := StaticClock{Core: 80_000_000, SOSCDIV2: 8_000_000}

	hz, err := resolveSourceClock(clk, SysClock)
	if err != nil || hz != 80_000_000 {
		t.Fatalf("sys = %d, %v", hz, err)
	}
	hz, err = resolveSourceClock(clk, SOSCDIV2)
	if err != nil || hz != 8_000_000 {
		t.Fatalf("soscdiv2 = %d, %v", hz, err)
	}

	if _, err := resolveSourceClock(StaticClock{Core: 80_000_000}, SOSCDIV2); !errors.Is(err, ErrClockSourceDisabled) {
		t.Fatalf("gated divider err = %v, want ErrClockSourceDisabled", err)
	}
	if _, err := resolveSourceClock(clk, ClockSource(9)); !errors.Is(err, ErrSettings) {
		t.Fatalf("unknown source err = %v, want ErrSettings", err)
	}
}

func TestBitTimingInsert(t *testing.T) {
	bt := bitTiming{presdiv: 6, rjw: 3, pseg1: 6, pseg2: 7, propseg: 5}
	ctrl1 := bt.insert(1 << 12) // keep an unrelated flag
	if ctrl1&(1<<12) == 0 {
		t.Fatal("unrelated CTRL1 bit lost")
	}
	got, _ := computeBitTiming(80_000_000, 500_000)
	if back := (bitTiming{
		presdiv: ctrl1 >> 24 & 0xFF,
		rjw:     ctrl1 >> 22 & 0x3,
		pseg1:   ctrl1 >> 19 & 0x7,
		pseg2:   ctrl1 >> 16 & 0x7,
		propseg: ctrl1 & 0x7,
	}); back != got {
		t.Fatalf("insert round trip = %+v, want %+v", back, got)
	}
}
