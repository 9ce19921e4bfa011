/*
Package types defines the core data structures shared across the captain.

This package contains the domain model of the scheduler: sailors (worker
hosts), chores (user-submitted shell tasks), users (quota records), and the
wire shapes exchanged with sailors over heartbeats. All other packages build
on these types for state management, persistence, and API communication.

# Core Types

Crew:
  - Sailor: a worker host with capacity, usage, and heartbeat age
  - SailorStatus: READY, WORKING, FULL, DOWN (derived, never persisted)
  - GPUCount: tolerant decoding of counts sent as integers or index lists

Chores:
  - Chore: one submission with its resource request and lifecycle fields
  - ChoreConfig: service tag, explicit sailor, cpus/gpus, output, workdir
  - ChoreStatus: PENDING, ASSIGNED, RUNNING, COMPLETED, FAILED, CANCELED
  - Reason* constants: the exact strings recorded on non-success states

Users:
  - User: per-owner chores_limit and time_limit

Wire:
  - HeartbeatReport / HeartbeatReply: the sailor liveness exchange
  - AssignRequest / CancelRequest: captain-to-sailor instructions
  - Event / EventType: lifecycle notifications for the broker

All persisted types carry snake_case JSON tags matching the on-disk
documents (crew.json, chores.json, users.json), so a record round-trips
byte-compatibly between memory, disk, and the HTTP API.
*/
package types
