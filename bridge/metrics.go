package bridge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type routerMetrics struct {
	dispatched    prometheus.Counter
	applied       prometheus.Counter
	replaysNoop   prometheus.Counter
	authRejected  prometheus.Counter
	decodeFailed  prometheus.Counter
	transportErrs prometheus.Counter
}

var (
	routerMetricsOnce sync.Once
	routerRegistry    *routerMetrics
)

func defaultRouterMetrics() *routerMetrics {
	routerMetricsOnce.Do(func() {
		routerRegistry = &routerMetrics{
			dispatched: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crossvault",
				Subsystem: "bridge",
				Name:      "outbound_dispatched_total",
				Help:      "Total delta messages handed to a transport adapter.",
			}),
			applied: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crossvault",
				Subsystem: "bridge",
				Name:      "inbound_applied_total",
				Help:      "Total inbound delta messages applied to the aggregate view.",
			}),
			replaysNoop: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crossvault",
				Subsystem: "bridge",
				Name:      "inbound_replays_total",
				Help:      "Total inbound messages dropped as already-applied duplicates.",
			}),
			authRejected: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crossvault",
				Subsystem: "bridge",
				Name:      "inbound_auth_rejected_total",
				Help:      "Total inbound messages rejected by origin authentication.",
			}),
			decodeFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crossvault",
				Subsystem: "bridge",
				Name:      "inbound_decode_failed_total",
				Help:      "Total inbound payloads the registered adapter could not decode.",
			}),
			transportErrs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "crossvault",
				Subsystem: "bridge",
				Name:      "outbound_transport_errors_total",
				Help:      "Total outbound dispatches that failed at the transport layer.",
			}),
		}
		prometheus.MustRegister(
			routerRegistry.dispatched,
			routerRegistry.applied,
			routerRegistry.replaysNoop,
			routerRegistry.authRejected,
			routerRegistry.decodeFailed,
			routerRegistry.transportErrs,
		)
	})
	return routerRegistry
}
