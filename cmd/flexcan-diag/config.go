package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	source          string // probe|devmem|sim
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	devmemPath      string
	regBase         uint64
	bitRate         uint
	clockSource     string // soscdiv2|sys
	coreClock       uint
	soscdiv2Clock   uint
	loopback        bool
	selfRx          bool
	pollTimeout     time.Duration
	pollInterval    time.Duration
	genInterval     time.Duration
	genID           uint64
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	source := flag.String("source", "probe", "Controller source: probe|devmem|sim")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device of the debug monitor")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout per register exchange")
	devmemPath := flag.String("devmem-path", "/dev/mem", "Device node mapped for --source=devmem (use a /dev/uioN node with --reg-base=0 for UIO)")
	regBase := flag.Uint64("reg-base", defaultRegBase, "Register block base address on the target (accepts 0x prefix)")
	bitRate := flag.Uint("bitrate", 500_000, "CAN bus bit rate in Hz")
	clockSource := flag.String("clock-source", "soscdiv2", "Protocol engine clock: soscdiv2|sys")
	coreClock := flag.Uint("core-clock", 80_000_000, "Peripheral clock frequency in Hz")
	soscdiv2Clock := flag.Uint("soscdiv2-clock", 8_000_000, "Divided oscillator frequency in Hz (0 = gated off)")
	loopback := flag.Bool("loopback", false, "Route TX back to RX for self test")
	selfRx := flag.Bool("self-rx", true, "Receive frames this node transmitted")
	pollTimeout := flag.Duration("poll-timeout", 0, "Register acknowledgment poll bound (0 = driver default)")
	pollInterval := flag.Duration("poll-interval", time.Millisecond, "Idle sleep between receive scans")
	genInterval := flag.Duration("gen-interval", 0, "If >0, transmit a generator frame this often")
	genID := flag.Uint64("gen-id", 0x100, "Generator frame identifier (extended when wider than 11 bits)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Advertise the metrics endpoint via mDNS")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default flexcan-diag-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.source = *source
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.devmemPath = *devmemPath
	cfg.regBase = *regBase
	cfg.bitRate = *bitRate
	cfg.clockSource = *clockSource
	cfg.coreClock = *coreClock
	cfg.soscdiv2Clock = *soscdiv2Clock
	cfg.loopback = *loopback
	cfg.selfRx = *selfRx
	cfg.pollTimeout = *pollTimeout
	cfg.pollInterval = *pollInterval
	cfg.genInterval = *genInterval
	cfg.genID = *genID
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners, only checks values and
// ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.source {
	case "probe", "devmem", "sim":
	default:
		return fmt.Errorf("invalid source: %s", c.source)
	}
	if c.source == "devmem" && c.devmemPath == "" {
		return fmt.Errorf("devmem-path must not be empty")
	}
	switch c.clockSource {
	case "soscdiv2", "sys":
	default:
		return fmt.Errorf("invalid clock-source: %s", c.clockSource)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.regBase > 0xFFFFFFFF {
		return fmt.Errorf("reg-base %#x does not fit a 32-bit bus", c.regBase)
	}
	if c.regBase%4 != 0 {
		return fmt.Errorf("reg-base %#x is not word aligned", c.regBase)
	}
	if c.bitRate == 0 {
		return fmt.Errorf("bitrate must be > 0")
	}
	if c.pollTimeout < 0 {
		return fmt.Errorf("poll-timeout must be >= 0")
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if c.genInterval < 0 {
		return fmt.Errorf("gen-interval must be >= 0")
	}
	if c.genID > 0x1FFFFFFF {
		return fmt.Errorf("gen-id %#x does not fit an extended identifier", c.genID)
	}
	if c.mdnsEnable {
		if c.metricsAddr == "" {
			return fmt.Errorf("mdns-enable requires metrics-addr")
		}
		if portOf(c.metricsAddr) == 0 {
			return fmt.Errorf("mdns-enable requires a fixed metrics port (got %q)", c.metricsAddr)
		}
	}
	return nil
}

// portOf extracts the numeric port from a listen address like ":9100" or
// "0.0.0.0:9100". Unparseable addresses yield 0.
func portOf(addr string) int {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(addr[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// applyEnvOverrides maps FLEXCAN_DIAG_* environment variables to config
// fields unless a corresponding flag was explicitly set. Empty values are
// ignored. Durations accept Go time.ParseDuration format; integers accept
// a 0x prefix.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	str := func(flagName, env string, dst *string) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			*dst = v
		}
	}
	dur := func(flagName, env string, dst *time.Duration, min time.Duration) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= min {
				*dst = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}
	boolean := func(flagName, env string, dst *bool) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			}
		}
	}
	unsigned := func(flagName, env string, dst *uint64, bits int) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			if n, err := strconv.ParseUint(v, 0, bits); err == nil {
				*dst = n
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", env, err)
			}
		}
	}

	str("source", "FLEXCAN_DIAG_SOURCE", &c.source)
	str("serial", "FLEXCAN_DIAG_SERIAL", &c.serialDev)
	if _, ok := set["baud"]; !ok {
		if v, ok := get("FLEXCAN_DIAG_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLEXCAN_DIAG_BAUD: %w", err)
			}
		}
	}
	dur("serial-read-timeout", "FLEXCAN_DIAG_SERIAL_READ_TIMEOUT", &c.serialReadTO, time.Nanosecond)
	str("devmem-path", "FLEXCAN_DIAG_DEVMEM_PATH", &c.devmemPath)
	unsigned("reg-base", "FLEXCAN_DIAG_REG_BASE", &c.regBase, 64)
	if _, ok := set["bitrate"]; !ok {
		if v, ok := get("FLEXCAN_DIAG_BITRATE"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 0, 32); err == nil && n > 0 {
				c.bitRate = uint(n)
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid FLEXCAN_DIAG_BITRATE: %w", err)
			}
		}
	}
	str("clock-source", "FLEXCAN_DIAG_CLOCK_SOURCE", &c.clockSource)
	if _, ok := set["core-clock"]; !ok {
		if v, ok := get("FLEXCAN_DIAG_CORE_CLOCK"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 0, 32); err == nil {
				c.coreClock = uint(n)
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid FLEXCAN_DIAG_CORE_CLOCK: %w", err)
			}
		}
	}
	if _, ok := set["soscdiv2-clock"]; !ok {
		if v, ok := get("FLEXCAN_DIAG_SOSCDIV2_CLOCK"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 0, 32); err == nil {
				c.soscdiv2Clock = uint(n)
			} else if firstErr == nil {
				firstErr = fmt.Errorf("invalid FLEXCAN_DIAG_SOSCDIV2_CLOCK: %w", err)
			}
		}
	}
	boolean("loopback", "FLEXCAN_DIAG_LOOPBACK", &c.loopback)
	boolean("self-rx", "FLEXCAN_DIAG_SELF_RX", &c.selfRx)
	dur("poll-timeout", "FLEXCAN_DIAG_POLL_TIMEOUT", &c.pollTimeout, 0)
	dur("poll-interval", "FLEXCAN_DIAG_POLL_INTERVAL", &c.pollInterval, time.Nanosecond)
	dur("gen-interval", "FLEXCAN_DIAG_GEN_INTERVAL", &c.genInterval, 0)
	unsigned("gen-id", "FLEXCAN_DIAG_GEN_ID", &c.genID, 64)
	str("log-format", "FLEXCAN_DIAG_LOG_FORMAT", &c.logFormat)
	str("log-level", "FLEXCAN_DIAG_LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("FLEXCAN_DIAG_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	dur("log-metrics-interval", "FLEXCAN_DIAG_LOG_METRICS_INTERVAL", &c.logMetricsEvery, 0)
	boolean("mdns-enable", "FLEXCAN_DIAG_MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "FLEXCAN_DIAG_MDNS_NAME", &c.mdnsName)
	return firstErr
}
