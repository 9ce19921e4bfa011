/*
Package sailor is the captain's outbound half of the sailor daemon
contract.

The contract is two JSON POSTs on the sailor's port: /chore starts a
shell task, /cancel stops one. The third leg, the heartbeat, runs the
other way (sailor to captain) and is handled by the API package.

Errors carry the distinction the scheduler cares about: a transport
failure (connection refused, timeout) means the sailor may never have
seen the request, while a StatusError with a body means the sailor saw
it and refused.
*/
package sailor
