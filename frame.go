package flexcan

import "fmt"

// Mask of valid identifier bits per format.
const (
	BaseIDMask     = 0x7FF      // 11-bit base format
	ExtendedIDMask = 0x1FFFFFFF // 29-bit extended format
)

// ID is a CAN identifier in base (11-bit) or extended (29-bit) format.
// The zero value is base identifier 0, the highest-priority identifier
// on the bus.
type ID struct {
	value    uint32
	extended bool
}

// BaseID returns an 11-bit identifier.
func BaseID(v uint32) (ID, error) {
	if v > BaseIDMask {
		return ID{}, fmt.Errorf("base id %#x: %w", v, ErrInvalidID)
	}
	return ID{value: v}, nil
}

// ExtendedID returns a 29-bit identifier.
func ExtendedID(v uint32) (ID, error) {
	if v > ExtendedIDMask {
		return ID{}, fmt.Errorf("extended id %#x: %w", v, ErrInvalidID)
	}
	return ID{value: v, extended: true}, nil
}

// Raw returns the identifier value without format flags.
func (id ID) Raw() uint32 { return id.value }

// Extended reports whether the identifier uses the 29-bit format.
func (id ID) Extended() bool { return id.extended }

func (id ID) String() string {
	if id.extended {
		return fmt.Sprintf("%08Xx", id.value)
	}
	return fmt.Sprintf("%03X", id.value)
}

// wins reports whether id would win arbitration against other. Lower
// numeric value wins regardless of format; equal values never win, so
// eviction stays strict.
func (id ID) wins(other ID) bool { return id.value < other.value }

// Frame is one classic CAN frame. Only the first Len bytes of Data are
// meaningful; a remote frame carries a length but no payload.
type Frame struct {
	ID     ID
	Remote bool
	Len    uint8
	Data   [8]byte
}

// NewFrame returns a data frame carrying data.
func NewFrame(id ID, data []byte) (Frame, error) {
	if len(data) > 8 {
		return Frame{}, fmt.Errorf("payload %d bytes: %w", len(data), ErrInvalidLength)
	}
	f := Frame{ID: id, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f, nil
}

// NewRemoteFrame returns a remote request for length bytes.
func NewRemoteFrame(id ID, length int) (Frame, error) {
	if length < 0 || length > 8 {
		return Frame{}, fmt.Errorf("remote length %d: %w", length, ErrInvalidLength)
	}
	return Frame{ID: id, Remote: true, Len: uint8(length)}, nil
}

// Payload returns the valid slice of the data array. It is empty for
// remote frames.
func (f Frame) Payload() []byte {
	if f.Remote {
		return nil
	}
	n := f.Len
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

func (f Frame) String() string {
	if f.Remote {
		return fmt.Sprintf("%s#R%d", f.ID, f.Len)
	}
	return fmt.Sprintf("%s#%X", f.ID, f.Payload())
}
