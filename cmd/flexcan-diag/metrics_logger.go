package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-flexcan/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"tx_frames", snap.TxFrames,
					"rx_frames", snap.RxFrames,
					"tx_evictions", snap.TxEvictions,
					"rx_overruns", snap.RxOverruns,
					"busy_writes", snap.BusyWrites,
					"decode_errors", snap.DecodeErrors,
					"poll_timeouts", snap.PollTimeouts,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
