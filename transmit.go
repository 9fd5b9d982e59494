package flexcan

import (
	"errors"
	"fmt"

	"github.com/kstaniek/go-flexcan/internal/metrics"
)

// TransmitQuick installs f in the first inactive transmit mailbox. One
// forward pass, no preemption: a burst of low-priority traffic can
// starve a later high-priority frame, so latency-sensitive callers want
// Transmit instead. If a candidate is snatched by a concurrent
// completion mid-write the pass simply moves on.
func (c *Controller) TransmitQuick(f Frame) error {
	h := defaultTransmitHeader()
	h.Code = BufferState{State: TxDataRemote}

	for mb := 0; mb < TxMailboxes; mb++ {
		bs, err := c.store.readCode(mb)
		if err != nil {
			metrics.IncError(metrics.ErrTransmit)
			return err
		}
		if bs.State != TxInactive {
			continue
		}
		if err := c.store.write(mb, h, f); err != nil {
			if errors.Is(err, ErrMailboxBusy) {
				continue
			}
			metrics.IncError(metrics.ErrTransmit)
			return err
		}
		metrics.IncTxFrame()
		c.log.Debug("flexcan_tx", "mailbox", mb, "id", f.ID.String(), "len", f.Len)
		return nil
	}
	return ErrBufferExhausted
}

// Transmit installs f in a transmit mailbox, evicting a lower-priority
// pending frame if the bank is full. The eviction candidate is the
// mailbox whose held frame has the weakest arbitration position, the
// numerically largest identifier. If f would not beat that frame on the
// bus either, evicting it buys nothing and the call fails with
// ErrBufferExhausted.
//
// A non-nil returned frame is the evicted one, handed back for the
// caller to retry or drop. The eviction can also race a completing
// transmission; if the pending frame made it onto the wire first the
// slot is simply reused and no frame is returned.
func (c *Controller) Transmit(f Frame) (*Frame, error) {
	h := defaultTransmitHeader()
	h.Code = BufferState{State: TxDataRemote}

	worst := -1
	var worstID ID
	for mb := 0; mb < TxMailboxes; mb++ {
		held, heldFrame, err := c.store.read(mb)
		if err != nil {
			metrics.IncError(metrics.ErrTransmit)
			return nil, err
		}
		switch held.Code.State {
		case TxInactive:
			if err := c.store.write(mb, h, f); err != nil {
				metrics.IncError(metrics.ErrTransmit)
				return nil, err
			}
			metrics.IncTxFrame()
			c.log.Debug("flexcan_tx", "mailbox", mb, "id", f.ID.String(), "len", f.Len)
			return nil, nil
		case TxDataRemote:
			if worst < 0 || worstID.wins(heldFrame.ID) {
				worst, worstID = mb, heldFrame.ID
			}
		default:
			metrics.IncError(metrics.ErrTransmit)
			return nil, fmt.Errorf("transmit mailbox %d in state %v: %w", mb, held.Code.State, ErrUnexpectedCode)
		}
	}

	if worst < 0 || !f.ID.wins(worstID) {
		return nil, ErrBufferExhausted
	}

	evicted, err := c.store.abort(worst)
	if err != nil {
		metrics.IncError(metrics.ErrAbort)
		return nil, err
	}
	if err := c.store.write(worst, h, f); err != nil {
		metrics.IncError(metrics.ErrTransmit)
		return nil, err
	}
	metrics.IncTxFrame()
	if evicted != nil {
		metrics.IncTxEviction()
		c.log.Debug("flexcan_tx_evict", "mailbox", worst, "evicted", evicted.ID.String(), "id", f.ID.String())
	} else {
		c.log.Debug("flexcan_tx", "mailbox", worst, "id", f.ID.String(), "len", f.Len)
	}
	return evicted, nil
}
