package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-flexcan/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	TxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexcan_tx_frames_total",
		Help: "Total CAN frames accepted into transmit mailboxes.",
	})
	RxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexcan_rx_frames_total",
		Help: "Total CAN frames drained from receive mailboxes.",
	})
	TxEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexcan_tx_evictions_total",
		Help: "Total pending frames displaced by a higher-priority transmit.",
	})
	RxOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexcan_rx_overruns_total",
		Help: "Total frames read from mailboxes in the overrun state, each implying at least one lost frame.",
	})
	BusyWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexcan_busy_writes_total",
		Help: "Total mailbox writes refused because the slot was owned by the peripheral.",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexcan_decode_errors_total",
		Help: "Total control/status words with a buffer state code outside the data sheet tables.",
	})
	PollTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flexcan_poll_timeouts_total",
		Help: "Total register polls that gave up before the peripheral acknowledged.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flexcan_errors_total",
		Help: "Error counters by driver operation.",
	}, []string{"op"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrInit     = "init"
	ErrTransmit = "transmit"
	ErrReceive  = "receive"
	ErrAbort    = "abort"
	ErrMode     = "mode"
	ErrProbe    = "probe"
)

// Handler returns the Prometheus scrape handler for embedders that run
// their own HTTP server.
func Handler() http.Handler { return promhttp.Handler() }

// StartHTTP serves /metrics and /ready on addr in a background goroutine
// and returns the server for shutdown.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localTxFrames     uint64
	localRxFrames     uint64
	localTxEvictions  uint64
	localRxOverruns   uint64
	localBusyWrites   uint64
	localDecodeErrors uint64
	localPollTimeouts uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	TxFrames     uint64
	RxFrames     uint64
	TxEvictions  uint64
	RxOverruns   uint64
	BusyWrites   uint64
	DecodeErrors uint64
	PollTimeouts uint64
	Errors       uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		TxFrames:     atomic.LoadUint64(&localTxFrames),
		RxFrames:     atomic.LoadUint64(&localRxFrames),
		TxEvictions:  atomic.LoadUint64(&localTxEvictions),
		RxOverruns:   atomic.LoadUint64(&localRxOverruns),
		BusyWrites:   atomic.LoadUint64(&localBusyWrites),
		DecodeErrors: atomic.LoadUint64(&localDecodeErrors),
		PollTimeouts: atomic.LoadUint64(&localPollTimeouts),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncTxFrame() {
	TxFrames.Inc()
	atomic.AddUint64(&localTxFrames, 1)
}

func IncRxFrame() {
	RxFrames.Inc()
	atomic.AddUint64(&localRxFrames, 1)
}

func IncTxEviction() {
	TxEvictions.Inc()
	atomic.AddUint64(&localTxEvictions, 1)
}

func IncRxOverrun() {
	RxOverruns.Inc()
	atomic.AddUint64(&localRxOverruns, 1)
}

func IncBusyWrite() {
	BusyWrites.Inc()
	atomic.AddUint64(&localBusyWrites, 1)
}

func IncDecodeError() {
	DecodeErrors.Inc()
	atomic.AddUint64(&localDecodeErrors, 1)
}

func IncPollTimeout() {
	PollTimeouts.Inc()
	atomic.AddUint64(&localPollTimeouts, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitLabels pre-registers the error label series so the first failure
// does not pay registration latency.
func InitLabels() {
	for _, lbl := range []string{ErrInit, ErrTransmit, ErrReceive, ErrAbort, ErrMode, ErrProbe} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	InitLabels()
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
