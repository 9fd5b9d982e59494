package flexcan

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-flexcan/internal/metrics"
	"github.com/kstaniek/go-flexcan/internal/regs"
	"github.com/kstaniek/go-flexcan/mmio"
)

// Controller is one configured FlexCAN instance. It owns the register
// window for its lifetime and provides the frame-level API on top of the
// raw mailbox bank.
//
// The controller contains no locking. The peripheral mutates mailbox
// state on its own and the driver tolerates that, but calls into one
// Controller from multiple goroutines or interrupt contexts need
// external serialization.
type Controller struct {
	block *regs.Block
	store *mailboxStore
	seq   *modeSequencer
	log   *slog.Logger
}

// New brings the peripheral behind win from an unknown state to a
// running bus-attached controller: soft reset, clock selection, bit
// timing, mailbox table initialization, then freeze release. The
// returned controller is ready for Transmit and Receive.
//
// Construction fails fast: any settings, timing or acknowledgement
// problem surfaces before the peripheral leaves freeze mode.
func New(win mmio.Window, clk Clock, settings Settings) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	sourceHz, err := resolveSourceClock(clk, settings.ClockSource)
	if err != nil {
		return nil, err
	}
	bt, err := computeBitTiming(sourceHz, settings.BitRate)
	if err != nil {
		return nil, err
	}

	log := settings.logger()
	block := regs.NewBlock(win)
	c := &Controller{
		block: block,
		store: &mailboxStore{block: block, timeout: settings.pollTimeout()},
		seq:   &modeSequencer{block: block, timeout: settings.pollTimeout(), log: log},
		log:   log,
	}
	if err := c.configure(settings, bt); err != nil {
		metrics.IncError(metrics.ErrInit)
		return nil, err
	}

	log.Info("flexcan_up",
		"bit_rate", settings.BitRate,
		"source_hz", sourceHz,
		"clock", settings.ClockSource.String(),
		"timing", bt.String(),
		"loopback", settings.Loopback,
		"self_reception", settings.SelfReception,
	)
	return c, nil
}

// NewFD is a placeholder for CAN FD operation. The mailbox layout
// already reserves the EDL and BRS control bits, but the FD timing and
// the larger payload geometry are not implemented.
func NewFD(win mmio.Window, clk Clock, settings Settings) (*Controller, error) {
	return nil, ErrFDNotImplemented
}

func (c *Controller) configure(s Settings, bt bitTiming) error {
	if err := c.seq.reset(); err != nil {
		return err
	}

	// The engine clock may only change while the module is disabled,
	// which is how reset leaves it.
	c.block.CTRL1.Modify(func(v uint32) uint32 {
		return regs.CTRL1CLKSRC.Insert(v, s.ClockSource == SysClock)
	})

	if err := c.seq.enable(); err != nil {
		return err
	}
	if err := c.seq.enterFreeze(); err != nil {
		return err
	}

	c.block.MCR.Modify(func(v uint32) uint32 {
		v = regs.MCRRFEN.Insert(v, s.RxFIFO)
		v = regs.MCRSRXDIS.Insert(v, !s.SelfReception)
		v = regs.MCRIRMQ.Insert(v, s.IndividualMasking)
		v = regs.MCRWRNEN.Insert(v, s.WarningInterrupts)
		v = regs.MCRAEN.Set(v)
		v = regs.MCRDMA.Clear(v)
		v = regs.MCRMAXMB.Insert(v, Mailboxes-1)
		return v
	})

	c.block.CTRL1.Modify(func(v uint32) uint32 {
		v = bt.insert(v)
		v = regs.CTRL1LPB.Insert(v, s.Loopback)
		return v
	})

	// Loopback feeds the transmitter straight back; transceiver delay
	// compensation would measure a loop that is not there.
	if s.Loopback {
		c.block.FDCtrl.Modify(func(v uint32) uint32 {
			return regs.FDCtrlTDCEN.Clear(v)
		})
	}

	// Accept everything until a filter API exists.
	c.block.RXMGMask.Write(0)

	// Seed the mailbox table: transmit slots idle, receive slots armed.
	// The placeholder frame is extended identifier zero with no payload.
	filter := Frame{ID: ID{extended: true}}
	for mb := 0; mb < TxMailboxes; mb++ {
		c.store.inactivate(mb)
		if err := c.store.write(mb, defaultTransmitHeader(), filter); err != nil {
			return fmt.Errorf("seed transmit mailbox %d: %w", mb, err)
		}
	}
	for mb := TxMailboxes; mb < Mailboxes; mb++ {
		c.store.inactivate(mb)
		if err := c.store.write(mb, defaultReceiveHeader(), filter); err != nil {
			return fmt.Errorf("seed receive mailbox %d: %w", mb, err)
		}
	}

	// Drop any completion flags left over from before the reset.
	c.block.IFlag1.Write(0xFFFFFFFF)

	return c.seq.leaveFreeze()
}

// MailboxState reports the decoded buffer state of mailbox mb, for
// diagnostics and tests. Reading a control word briefly locks the slot;
// the lock is released before returning.
func (c *Controller) MailboxState(mb int) (BufferState, error) {
	return c.store.readCode(mb)
}

// Close parks the controller in low-power mode. Pending transmissions
// drain first; the peripheral acknowledges only after bus activity has
// finished.
func (c *Controller) Close() error {
	if err := c.seq.disable(); err != nil {
		metrics.IncError(metrics.ErrMode)
		return err
	}
	c.log.Info("flexcan_down")
	return nil
}
