package flexcan

import (
	"errors"
	"testing"
)

func TestBaseIDRange(t *testing.T) {
	if _, err := BaseID(0x7FF); err != nil {
		t.Fatalf("BaseID(0x7FF): %v", err)
	}
	if _, err := BaseID(0x800); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("BaseID(0x800) err = %v, want ErrInvalidID", err)
	}
}

func TestExtendedIDRange(t *testing.T) {
	if _, err := ExtendedID(0x1FFFFFFF); err != nil {
		t.Fatalf("ExtendedID(max): %v", err)
	}
	if _, err := ExtendedID(0x20000000); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("ExtendedID(2^29) err = %v, want ErrInvalidID", err)
	}
}

func TestArbitrationOrder(t *testing.T) {
	base := func(v uint32) ID { id, _ := BaseID(v); return id }
	ext := func(v uint32) ID { id, _ := ExtendedID(v); return id }

	tests := []struct {
		name string
		a, b ID
		aWin bool
	}{
		{"lower base wins", base(0x100), base(0x500), true},
		{"higher base loses", base(0x500), base(0x100), false},
		{"equal is not a win", base(0x100), base(0x100), false},
		{"lower extended wins", ext(0x100), ext(0x500), true},
		{"lower extended beats higher base", ext(0x100), base(0x500), true},
		{"equal across formats is not a win", base(0x100), ext(0x100), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.wins(tt.b); got != tt.aWin {
				t.Fatalf("%v wins %v = %v, want %v", tt.a, tt.b, got, tt.aWin)
			}
		})
	}
}

func TestNewFrame(t *testing.T) {
	id, _ := BaseID(0x123)
	f, err := NewFrame(id, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if f.Len != 3 || f.Remote {
		t.Fatalf("frame = %+v", f)
	}
	if got := f.Payload(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("payload = %v", got)
	}

	if _, err := NewFrame(id, make([]byte, 9)); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("9-byte payload err = %v, want ErrInvalidLength", err)
	}
}

func TestNewRemoteFrame(t *testing.T) {
	id, _ := BaseID(0x123)
	f, err := NewRemoteFrame(id, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Remote || f.Len != 4 {
		t.Fatalf("frame = %+v", f)
	}
	if got := f.Payload(); got != nil {
		t.Fatalf("remote payload = %v, want nil", got)
	}

	if _, err := NewRemoteFrame(id, 9); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("remote length 9 err = %v, want ErrInvalidLength", err)
	}
}

func TestFrameString(t *testing.T) {
	id, _ := BaseID(0x123)
	f, _ := NewFrame(id, []byte{0xDE, 0xAD})
	if got := f.String(); got != "123#DEAD" {
		t.Fatalf("String() = %q", got)
	}
	r, _ := NewRemoteFrame(id, 2)
	if got := r.String(); got != "123#R2" {
		t.Fatalf("String() = %q", got)
	}
	eid, _ := ExtendedID(0xABCDE)
	ef, _ := NewFrame(eid, nil)
	if got := ef.String(); got != "000ABCDEx#" {
		t.Fatalf("String() = %q", got)
	}
}
