package flexcan

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultSettingsValid(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings: %v", err)
	}
	if s.BitRate != 1_000_000 {
		t.Fatalf("default bit rate = %d", s.BitRate)
	}
	if s.ClockSource != SOSCDIV2 {
		t.Fatalf("default clock source = %v", s.ClockSource)
	}
	if !s.SelfReception {
		t.Fatal("default self reception off")
	}
}

func TestSettingsValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Settings)
	}{
		{"zeroBitRate", func(s *Settings) { s.BitRate = 0 }},
		{"badClockSource", func(s *Settings) { s.ClockSource = 7 }},
		{"negativePollTimeout", func(s *Settings) { s.PollTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mod(&s)
			if err := s.Validate(); !errors.Is(err, ErrSettings) {
				t.Fatalf("err = %v, want ErrSettings", err)
			}
		})
	}
}

func TestSettingsValidateNil(t *testing.T) {
	var s *Settings
	if err := s.Validate(); !errors.Is(err, ErrSettings) {
		t.Fatalf("err = %v, want ErrSettings", err)
	}
}

func TestPollTimeoutDefault(t *testing.T) {
	s := DefaultSettings()
	if got := s.pollTimeout(); got != DefaultPollTimeout {
		t.Fatalf("pollTimeout() = %v, want %v", got, DefaultPollTimeout)
	}
	s.PollTimeout = 3 * time.Millisecond
	if got := s.pollTimeout(); got != 3*time.Millisecond {
		t.Fatalf("pollTimeout() = %v", got)
	}
}

func TestStaticClock(t *testing.T) {
	c := StaticClock{Core: 80_000_000, SOSCDIV2: 8_000_000}
	if c.CoreFrequency() != 80_000_000 {
		t.Fatal("core frequency")
	}
	hz, ok := c.SOSCDIV2Frequency()
	if !ok || hz != 8_000_000 {
		t.Fatalf("soscdiv2 = %d, %v", hz, ok)
	}

	gated := StaticClock{Core: 80_000_000}
	if _, ok := gated.SOSCDIV2Frequency(); ok {
		t.Fatal("gated divider reported ok")
	}
}
