package flexcan

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/kstaniek/go-flexcan/internal/metrics"
	"github.com/kstaniek/go-flexcan/internal/regs"
)

// Injection seams for deterministic timeout tests.
var (
	nowFn   = time.Now
	sleepFn = runtime.Gosched
)

// waitUntil polls cond until it holds or timeout elapses. what names the
// acknowledgement being waited for and ends up in the error chain.
func waitUntil(timeout time.Duration, what string, cond func() bool) error {
	deadline := nowFn().Add(timeout)
	for {
		if cond() {
			return nil
		}
		if nowFn().After(deadline) {
			metrics.IncPollTimeout()
			return fmt.Errorf("%s: %w", what, ErrPollTimeout)
		}
		sleepFn()
	}
}

// modeSequencer drives the controller through its mode transitions.
// Every transition is a mode-bit write followed by a bounded poll of the
// matching acknowledgement bit.
type modeSequencer struct {
	block   *regs.Block
	timeout time.Duration
	log     *slog.Logger
}

// enable clears the low-power request and waits for the module to wake.
func (m *modeSequencer) enable() error {
	m.block.MCR.Modify(func(v uint32) uint32 { return regs.MCRMDIS.Clear(v) })
	err := waitUntil(m.timeout, "enable acknowledgement", func() bool {
		return !regs.MCRLPMACK.Get(m.block.MCR.Read())
	})
	if err != nil {
		return err
	}
	m.log.Debug("flexcan_enabled")
	return nil
}

// disable requests low-power mode and waits until all bus activity has
// drained and the module acknowledges.
func (m *modeSequencer) disable() error {
	m.block.MCR.Modify(func(v uint32) uint32 { return regs.MCRMDIS.Set(v) })
	err := waitUntil(m.timeout, "disable acknowledgement", func() bool {
		return regs.MCRLPMACK.Get(m.block.MCR.Read())
	})
	if err != nil {
		return err
	}
	m.log.Debug("flexcan_disabled")
	return nil
}

// reset soft-resets the controller state machines. The engine must be
// clocked for the reset to propagate, so the sequence runs on the
// peripheral clock and leaves the module disabled again afterwards.
func (m *modeSequencer) reset() error {
	if err := m.disable(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	m.block.CTRL1.Modify(func(v uint32) uint32 { return regs.CTRL1CLKSRC.Set(v) })
	if err := m.enable(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	m.block.MCR.Modify(func(v uint32) uint32 { return regs.MCRSOFTRST.Set(v) })
	err := waitUntil(m.timeout, "soft reset completion", func() bool {
		return !regs.MCRSOFTRST.Get(m.block.MCR.Read())
	})
	if err != nil {
		return err
	}
	m.log.Debug("flexcan_reset")
	return m.disable()
}

// enterFreeze halts bus activity so configuration registers and the
// mailbox table can be touched safely.
func (m *modeSequencer) enterFreeze() error {
	m.block.MCR.Modify(func(v uint32) uint32 {
		return regs.MCRHALT.Set(regs.MCRFRZ.Set(v))
	})
	err := waitUntil(m.timeout, "freeze acknowledgement", func() bool {
		return regs.MCRFRZACK.Get(m.block.MCR.Read())
	})
	if err != nil {
		return err
	}
	m.log.Debug("flexcan_freeze_entered")
	return nil
}

// leaveFreeze resumes bus activity.
func (m *modeSequencer) leaveFreeze() error {
	m.block.MCR.Modify(func(v uint32) uint32 {
		return regs.MCRFRZ.Clear(regs.MCRHALT.Clear(v))
	})
	err := waitUntil(m.timeout, "freeze release", func() bool {
		return !regs.MCRFRZACK.Get(m.block.MCR.Read())
	})
	if err != nil {
		return err
	}
	m.log.Debug("flexcan_freeze_left")
	return nil
}
