/*
Package crew tracks the fleet of sailors.

The registry is the in-memory view over crew.json: preregistration,
heartbeat application, usage bookkeeping, and admin removal, each
persisted through the document lock. DeriveStatus and Fit are pure
functions so matching policy stays testable without a registry:

	status := crew.DeriveStatus(s, now, deadline)   // READY WORKING FULL DOWN
	ok := crew.Fit(s, &chore.Configuration, now, deadline)

A sailor is DOWN once its last heartbeat is older than the deadline;
liveness is entirely heartbeat-driven, the captain never probes.
*/
package crew
