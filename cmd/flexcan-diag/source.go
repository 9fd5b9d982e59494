package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	flexcan "github.com/kstaniek/go-flexcan"
	"github.com/kstaniek/go-flexcan/internal/regs"
	"github.com/kstaniek/go-flexcan/mmio"
	"github.com/kstaniek/go-flexcan/probe"
	"github.com/kstaniek/go-flexcan/sim"
)

// sleepFn allows tests to intercept backoff and idle sleeps.
var sleepFn = time.Sleep

// openProbePort is a hook for tests (overridden in unit tests).
var openProbePort = probe.Open

// sourceUp reflects whether a controller is currently configured and
// polling. It feeds the /ready endpoint.
var sourceUp atomic.Bool

// link couples a register window with its health check and teardown.
type link struct {
	win     mmio.Window
	healthy func() error
	close   func() error
}

func openLink(cfg *appConfig) (link, error) {
	switch cfg.source {
	case "probe":
		port, err := openProbePort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
		if err != nil {
			return link{}, fmt.Errorf("open serial: %w", err)
		}
		w := probe.New(port, uint32(cfg.regBase))
		return link{win: w, healthy: w.Err, close: w.Close}, nil
	case "devmem":
		r, err := mmio.MapRegion(cfg.devmemPath, int64(cfg.regBase), regs.BlockBytes)
		if err != nil {
			return link{}, fmt.Errorf("map %s: %w", cfg.devmemPath, err)
		}
		return link{win: r, healthy: func() error { return nil }, close: r.Close}, nil
	case "sim":
		// Dry-run mode: an in-process controller model with loopback
		// completion, for exercising the tool without hardware.
		p := sim.New()
		p.AutoComplete = true
		return link{win: p, healthy: func() error { return nil }, close: func() error { return nil }}, nil
	default:
		return link{}, fmt.Errorf("unknown source %q (use probe|devmem|sim)", cfg.source)
	}
}

func (c *appConfig) clock() flexcan.Clock {
	return flexcan.StaticClock{Core: uint32(c.coreClock), SOSCDIV2: uint32(c.soscdiv2Clock)}
}

func (c *appConfig) settings() flexcan.Settings {
	s := flexcan.DefaultSettings()
	s.BitRate = uint32(c.bitRate)
	if c.clockSource == "sys" {
		s.ClockSource = flexcan.SysClock
	}
	s.Loopback = c.loopback
	s.SelfReception = c.selfRx
	s.PollTimeout = c.pollTimeout
	return s
}

// runSource owns the controller lifecycle: open the link, configure the
// controller, poll until the link dies or ctx ends, then reopen with
// exponential backoff. A session that got at least one successful
// exchange resets the backoff.
func runSource(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("source_end")
		defer sourceUp.Store(false)
		backoff := rxBackoffMin
		for ctx.Err() == nil {
			healthy, err := session(ctx, cfg, l)
			if err != nil {
				l.Warn("source_error", "error", err, "backoff", backoff)
			}
			if ctx.Err() != nil {
				return
			}
			if healthy {
				backoff = rxBackoffMin
				continue
			}
			sleepFn(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
		}
	}()
}

// session runs one open/configure/poll cycle. It reports whether the
// controller answered at least once, which gates the backoff reset.
func session(ctx context.Context, cfg *appConfig, l *slog.Logger) (bool, error) {
	lk, err := openLink(cfg)
	if err != nil {
		return false, err
	}
	c, err := flexcan.New(lk.win, cfg.clock(), cfg.settings())
	if err != nil {
		_ = lk.close()
		return false, fmt.Errorf("controller init: %w", err)
	}
	l.Info("controller_up", "source", cfg.source, "bitrate", cfg.bitRate, "loopback", cfg.loopback)
	sourceUp.Store(true)
	defer sourceUp.Store(false)

	healthy := poll(ctx, cfg, l, c, lk)
	// Park the controller only over a live link; a latched window drops
	// stores and the disable handshake would just burn the poll bound.
	if lk.healthy() == nil {
		_ = c.Close()
	}
	_ = lk.close()
	return healthy, nil
}

// poll drains receive mailboxes and feeds the generator until ctx ends
// or the link goes down.
func poll(ctx context.Context, cfg *appConfig, l *slog.Logger, c *flexcan.Controller, lk link) bool {
	healthy := false
	var lastGen time.Time
	var genSeq uint32
	for {
		if ctx.Err() != nil {
			return healthy
		}
		f, err := c.Receive()
		switch {
		case err == nil:
			healthy = true
			l.Info("can_rx",
				"id", f.ID.String(),
				"len", f.Len,
				"data", fmt.Sprintf("% X", f.Payload()),
				"remote", f.Remote,
			)
			continue // drain the bank before sleeping
		case errors.Is(err, flexcan.ErrBufferExhausted):
			healthy = true // an empty scan is still a live link
		default:
			if lerr := lk.healthy(); lerr != nil {
				l.Error("link_down", "error", lerr)
				return healthy
			}
			l.Warn("can_rx_error", "error", err)
		}

		if cfg.genInterval > 0 && time.Since(lastGen) >= cfg.genInterval {
			lastGen = time.Now()
			genSeq++
			transmitGen(l, c, cfg, genSeq)
		}
		sleepFn(cfg.pollInterval)
	}
}

// transmitGen sends one generator frame carrying a big-endian sequence
// number, the poor man's cangen for checking a bus end to end.
func transmitGen(l *slog.Logger, c *flexcan.Controller, cfg *appConfig, seq uint32) {
	id, err := genFrameID(uint32(cfg.genID))
	if err != nil {
		l.Warn("gen_id_error", "error", err)
		return
	}
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], seq)
	f, err := flexcan.NewFrame(id, payload[:])
	if err != nil {
		l.Warn("gen_frame_error", "error", err)
		return
	}
	switch err := c.TransmitQuick(f); {
	case err == nil:
	case errors.Is(err, flexcan.ErrBufferExhausted):
		l.Debug("gen_tx_full", "seq", seq)
	default:
		l.Warn("gen_tx_error", "error", err, "seq", seq)
	}
}

func genFrameID(v uint32) (flexcan.ID, error) {
	if v <= flexcan.BaseIDMask {
		return flexcan.BaseID(v)
	}
	return flexcan.ExtendedID(v)
}
