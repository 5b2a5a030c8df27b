package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	TicksDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_dropped_total", Help: "Ticks evicted by the buffer overflow policy"},
		[]string{"symbol"},
	)
	MalformedMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "malformed_messages_total", Help: "Feed messages rejected during decoding"},
		[]string{"provider"},
	)
	DrainBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "drain_batches_total", Help: "Buffer drain cycles executed"},
	)
	StoredTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stored_ticks_total", Help: "Ticks appended to the tick store"},
	)
	AlertsTriggeredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_triggered_total", Help: "Alert conditions that fired"},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TicksDroppedTotal,
		MalformedMessagesTotal,
		DrainBatchesTotal,
		StoredTicksTotal,
		AlertsTriggeredTotal,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
