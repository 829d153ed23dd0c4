package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "useq"

var sessionStates = []string{"disconnected", "connecting", "connected"}

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	decodedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "frames_total",
			Help:      "Frames decoded from the device stream.",
		},
		[]string{"type"},
	)
	discardedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "discarded_bytes_total",
			Help:      "Bytes skipped while resynchronizing on the frame marker.",
		},
	)
	abandonedText = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "abandoned_text_total",
			Help:      "Text frames dropped for exceeding the length limit.",
		},
	)
	samples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "samples_total",
			Help:      "Stream samples by channel and outcome.",
		},
		[]string{"channel", "accepted"},
	)
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "1 for the current connection state, 0 otherwise.",
		},
		[]string{"state"},
	)
	connects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connects_total",
			Help:      "Transport open attempts.",
		},
		[]string{"success"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "sent_total",
			Help:      "Commands sent to the device.",
		},
		[]string{"capture", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			decodedFrames, discardedBytes, abandonedText,
			samples, sessionState, connects, commands,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordDecode adds decoder counter deltas.
func RecordDecode(text, stream, discard, abandoned uint64) {
	RegisterMetrics()
	if text > 0 {
		decodedFrames.WithLabelValues("text").Add(float64(text))
	}
	if stream > 0 {
		decodedFrames.WithLabelValues("stream").Add(float64(stream))
	}
	if discard > 0 {
		discardedBytes.Add(float64(discard))
	}
	if abandoned > 0 {
		abandonedText.Add(float64(abandoned))
	}
}

func RecordSample(channel int, accepted bool) {
	RegisterMetrics()
	label := strconv.Itoa(channel)
	if !accepted {
		// out-of-range ids are unbounded; fold them into one series
		label = "invalid"
	}
	samples.WithLabelValues(label, strconv.FormatBool(accepted)).Inc()
}

func SetSessionState(state string) {
	RegisterMetrics()
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

func RecordConnect(success bool) {
	RegisterMetrics()
	connects.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func RecordCommand(capture bool, err error) {
	RegisterMetrics()
	commands.WithLabelValues(strconv.FormatBool(capture), strconv.FormatBool(err == nil)).Inc()
}
