/*
Package metrics exposes the captain's Prometheus metrics and its
component health registry.

# Metrics

All metrics are registered on the default registry at package load and
served by Handler() on /metrics:

	captain_sailors_total{status}            sailors by derived status
	captain_chores_total{status}             live chores by status
	captain_users_total                      user quota records
	captain_archived_chores_total            chores moved to the archive
	captain_api_requests_total{method,status}
	captain_api_request_duration_seconds{method}
	captain_heartbeats_total                 accepted heartbeat reports
	captain_tick_duration_seconds            control loop tick duration
	captain_chores_assigned_total
	captain_chores_failed_total
	captain_chores_canceled_total
	captain_sailor_rpc_failures_total{op}    failed assign/cancel calls

The fleet gauges are sampled by the Collector, which walks the
registries on a 15 second cadence. Counters are incremented inline by
the API and the control loop.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickDuration)

# Health

Components report in through SetComponent; /health turns unhealthy when
any component does, /ready waits for the critical ones (store, loop,
api) to come up:

	metrics.SetComponent("loop", true, "ticking")
*/
package metrics
