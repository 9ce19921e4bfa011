/*
Package api implements the Captain HTTP API server.

The api package is the single external surface of a running captain. Every
actor in the system talks to it over plain HTTP with JSON bodies: sailors
register and heartbeat through it, users submit and cancel chores, admin
tooling manages the user registry, and dashboards follow the event stream.

# Architecture

	┌──────────── CLIENTS ────────────┐
	│                                  │
	│  CLI        Sailors   Dashboards │
	│   │            │          │      │
	└───┼────────────┼──────────┼──────┘
	    │ HTTP/JSON  │          │ websocket
	    │            │          │
	┌───▼────────────▼──────────▼──────┐
	│       HTTP API (pkg/api)         │
	│  - routing (gorilla/mux)         │
	│  - request metrics middleware    │
	│  - error to status mapping       │
	│  - websocket event streaming     │
	└───────────────┬──────────────────┘
	                │
	        ┌───────▼────────┐
	        │ captain.Captain │
	        └────────────────┘

# Endpoints

Sailor-facing:

	POST /prereg     register or update a sailor before its first heartbeat
	POST /heartbeat  periodic sailor report, replies with assign/cancel work

User and admin:

	POST /chore      submit a chore
	POST /cancel     cancel a chore by id
	GET  /chores     list live chores (optional ?owner= filter)
	GET  /crew       list sailors with derived statuses
	GET  /users      list user records
	POST /user-set   create or update a user record
	POST /login      exchange a uid for a session token
	GET  /me/chores  list the caller's chores (bearer token)
	POST /me/cancel  cancel one of the caller's chores (bearer token)

Operational:

	GET /events   websocket stream of state-change events
	GET /health   liveness probe
	GET /ready    readiness probe (all critical components up)
	GET /metrics  Prometheus exposition

The /api/... aliases mirror the collection routes for tooling that
prefers prefixed paths, and add GET /api/chores/{id} and
DELETE /api/crew/{name}.

# Error mapping

Handlers translate the sentinel errors of the inner packages to HTTP
statuses: validation failures are 400, missing or bad tokens 401, quota
rejections 403, unknown chores, sailors or users 404, and invalid chore
state transitions 409. Anything else is a 500 and logged.

All list endpoints return an empty JSON array rather than null when
there is nothing to report.
*/
package api
