package flexcan

import (
	"github.com/kstaniek/go-flexcan/internal/metrics"
	"github.com/kstaniek/go-flexcan/internal/regs"
)

// Receive returns the first pending frame found scanning the receive
// mailboxes in ascending index order. Reading a mailbox acknowledges its
// completion flag; flags of later mailboxes stay up for the next call.
// With nothing pending the call fails with ErrBufferExhausted, which
// here means "poll again later", not a terminal condition.
func (c *Controller) Receive() (Frame, error) {
	for mb := TxMailboxes; mb < Mailboxes; mb++ {
		if !c.store.flagSet(mb) {
			continue
		}
		h, f, err := c.store.read(mb)
		if err != nil {
			metrics.IncError(metrics.ErrReceive)
			return Frame{}, err
		}
		if h.Code.State == RxOverrun {
			metrics.IncRxOverrun()
			c.log.Warn("flexcan_rx_overrun", "mailbox", mb, "id", f.ID.String())
		}
		metrics.IncRxFrame()
		c.log.Debug("flexcan_rx", "mailbox", mb, "id", f.ID.String(), "len", f.Len)
		return f, nil
	}
	return Frame{}, ErrBufferExhausted
}

func (s *mailboxStore) flagSet(mb int) bool {
	return s.block.IFlag1.Read()&regs.MailboxFlag(mb) != 0
}
