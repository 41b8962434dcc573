package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_poll_cycles_total",
			Help: "Balance poll cycles by result",
		},
		[]string{"result"}, // ok|fetch_failed
	)

	BalanceChanges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_balance_changes_total",
			Help: "Customer balance changes observed by the poller or applied manually",
		},
	)

	WalletReconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_wallet_reconciles_total",
			Help: "Wallet object reconciliations by result",
		},
		[]string{"result"}, // updated|created|failed
	)

	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_ws_broadcasts_total",
			Help: "points_update deliveries by outcome",
		},
		[]string{"outcome"}, // delivered|no_connection|dropped
	)

	LiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loyalty_ws_connections",
			Help: "Open WebSocket connections",
		},
	)

	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_registrations_total",
			Help: "Registration attempts by result",
		},
		[]string{"result"}, // ok|invalid|backend_failed|wallet_failed
	)

	AllocatorFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_counter_fallbacks_total",
			Help: "Customer codes issued from the ULID fallback",
		},
	)

	RelayedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_points_events_total",
			Help: "Kafka points events by stage",
		},
		[]string{"stage"}, // published|publish_failed|relayed|bad_payload
	)

	BalanceLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_balance_lookups_total",
			Help: "Single-customer balance lookups by source",
		},
		[]string{"source"}, // cached|backend
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops so both
// serve and worker paths can call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			PollCycles,
			BalanceChanges,
			WalletReconciles,
			Broadcasts,
			LiveConnections,
			Registrations,
			AllocatorFallbacks,
			RelayedEvents,
			BalanceLookups,
		)
	})
}
