package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

// startMDNS advertises the metrics endpoint via mDNS so lab hosts can
// find bringup boxes without fixed addressing. It returns a cleanup
// function and is safe to call even if disabled (no-op).
const mdnsServiceType = "_flexcan-diag._tcp"

func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("flexcan-diag-%s", host)
	}
	meta := []string{
		"source=" + cfg.source,
		"bitrate=" + strconv.FormatUint(uint64(cfg.bitRate), 10),
		"version=" + version,
		"commit=" + commit,
	}
	// Hardcoded service type; domain local.
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
