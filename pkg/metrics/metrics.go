package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	SailorsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "captain_sailors_total",
			Help: "Number of sailors by derived status",
		},
		[]string{"status"},
	)

	ChoresTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "captain_chores_total",
			Help: "Number of chores in the live document by status",
		},
		[]string{"status"},
	)

	UsersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "captain_users_total",
			Help: "Number of user quota records",
		},
	)

	ArchivedChoresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "captain_archived_chores_total",
			Help: "Chores moved from the live document to the archive",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captain_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "captain_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "captain_heartbeats_total",
			Help: "Heartbeat reports accepted from sailors",
		},
	)

	// Scheduler metrics
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "captain_tick_duration_seconds",
			Help:    "Control loop tick duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChoresSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "captain_chores_submitted_total",
			Help: "Chores accepted into the queue",
		},
	)

	ChoresAssigned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "captain_chores_assigned_total",
			Help: "Chores handed to a sailor by the matcher",
		},
	)

	ChoresFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "captain_chores_failed_total",
			Help: "Chores that ended FAILED",
		},
	)

	ChoresCanceled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "captain_chores_canceled_total",
			Help: "Chores that ended CANCELED",
		},
	)

	SailorRPCFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "captain_sailor_rpc_failures_total",
			Help: "Outbound sailor RPC failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SailorsTotal)
	prometheus.MustRegister(ChoresTotal)
	prometheus.MustRegister(UsersTotal)
	prometheus.MustRegister(ArchivedChoresTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(ChoresSubmitted)
	prometheus.MustRegister(ChoresAssigned)
	prometheus.MustRegister(ChoresFailed)
	prometheus.MustRegister(ChoresCanceled)
	prometheus.MustRegister(SailorRPCFailures)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
