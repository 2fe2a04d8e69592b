package server

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/mKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics holds the metrics of one server. Every server owns its own
// set so that several servers can live in one process.
type serverMetrics struct {
	set *metrics.Set

	requests  map[common.MessageType]*metrics.Counter
	errors    map[common.MessageType]*metrics.Counter
	durations map[common.MessageType]*metrics.Histogram
	unknown   *metrics.Counter

	connections *metrics.Counter
	rangePairs  *metrics.Histogram
}

func newServerMetrics() *serverMetrics {
	set := metrics.NewSet()
	m := &serverMetrics{
		set:         set,
		requests:    make(map[common.MessageType]*metrics.Counter),
		errors:      make(map[common.MessageType]*metrics.Counter),
		durations:   make(map[common.MessageType]*metrics.Histogram),
		unknown:     set.NewCounter(`mkv_requests_total{command="unknown"}`),
		connections: set.NewCounter("mkv_connections_total"),
		rangePairs:  set.NewHistogram("mkv_range_pairs"),
	}

	// create every series up front, the maps are read-only afterwards
	for _, t := range common.AllMessageTypes {
		if !t.IsCommand() {
			continue
		}
		m.requests[t] = set.NewCounter(fmt.Sprintf(`mkv_requests_total{command=%q}`, t))
		m.errors[t] = set.NewCounter(fmt.Sprintf(`mkv_request_errors_total{command=%q}`, t))
		m.durations[t] = set.NewHistogram(fmt.Sprintf(`mkv_request_duration_seconds{command=%q}`, t))
	}
	return m
}

// observe records one handled request
func (m *serverMetrics) observe(req, resp common.MessageType, start time.Time) {
	requests, ok := m.requests[req]
	if !ok {
		m.unknown.Inc()
		return
	}
	requests.Inc()
	m.durations[req].UpdateDuration(start)
	if resp == common.MsgTError {
		m.errors[req].Inc()
	}
}

// gauge registers a metric read from f whenever the metrics are written
func (m *serverMetrics) gauge(name string, f func() float64) {
	m.set.NewGauge(name, f)
}

// write writes all metrics of the server plus the process metrics in Prometheus text format
func (m *serverMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}
