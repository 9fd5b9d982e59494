package flexcan

import (
	"errors"
	"fmt"
)

// ErrBufferExhausted means no mailbox can serve the call right now: on
// transmit every slot holds a frame that wins arbitration against the
// new one, on receive no slot has a pending frame. The receive case is
// transient; poll again.
var ErrBufferExhausted = errors.New("flexcan: mailbox buffers exhausted")

// ErrMailboxBusy is returned when a mailbox is owned by the peripheral
// and cannot accept a write.
var ErrMailboxBusy = errors.New("flexcan: mailbox busy")

// ErrUnexpectedCode is returned when a mailbox reports a buffer state the
// running operation has no transition for, meaning the peripheral and the
// driver disagree about who owns the slot.
var ErrUnexpectedCode = errors.New("flexcan: unexpected buffer state")

// ErrSettings is returned by New for a Settings combination the
// controller cannot honor.
var ErrSettings = errors.New("flexcan: invalid settings")

// ErrBitTimingRange is returned when no register encoding exists for the
// requested clock and bit rate pair.
var ErrBitTimingRange = errors.New("flexcan: bit timing out of range")

// ErrClockSourceDisabled is returned when the selected clock source
// reports a frequency of zero.
var ErrClockSourceDisabled = errors.New("flexcan: clock source disabled")

// ErrPollTimeout is returned when the peripheral does not acknowledge a
// state change within Settings.PollTimeout.
var ErrPollTimeout = errors.New("flexcan: poll timeout")

// ErrFDNotImplemented is returned by NewFD.
var ErrFDNotImplemented = errors.New("flexcan: CAN FD not implemented")

// ErrInvalidID is returned for identifiers wider than the frame format
// allows.
var ErrInvalidID = errors.New("flexcan: identifier out of range")

// ErrInvalidLength is returned for payload lengths outside 0..8.
var ErrInvalidLength = errors.New("flexcan: invalid payload length")

// CodeError reports a mailbox control/status word whose buffer state
// code matches no entry in the data sheet tables. The raw 4-bit code is
// preserved for diagnostics.
type CodeError struct {
	Code uint32
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("flexcan: unknown buffer state code %#04b", e.Code)
}

// IsCodeError reports whether err wraps a CodeError.
func IsCodeError(err error) bool {
	var ce *CodeError
	return errors.As(err, &ce)
}
