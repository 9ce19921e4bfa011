/*
Package captain is the assignment and lifecycle engine: the singleton
controller that owns the crew, chores, and users documents, matches
queued chores onto sailors, and polices liveness and time limits.

# Lifecycle

	cfg := config.Default()
	cpt, err := captain.New(&cfg)
	if err != nil {
		...
	}
	cpt.Start()
	defer cpt.Stop()

New loads the three documents from the data directory, opens the bbolt
archive beside them, and restores the chore id allocator past the
highest id ever issued. Start launches the control loop; Stop drains it
and closes the archive.

# The tick

Every TickInterval the loop runs one pass:

 1. liveness: sailors past the heartbeat deadline are DOWN, their
    active chores fail with reason "sailor lost"
 2. sailor max_time: chores over their host's per-chore budget are
    canceled with reason "exceeded time limit"
 3. user time_limit: owners over their cumulative budget lose their
    newest chores, reason "exceeded user time limit"
 4. match: PENDING chores in id order meet sailors in name order;
    the first fit wins and resources are deducted from working copies
    so one tick can pack many chores without oversubscribing
 5. reap: terminal chores older than ArchiveAfter move to the archive

Every registry mutation persists its document as it commits, one write
per batch, so there is no separate flush to lose.

# Assignment delivery

With assign_via_heartbeat unset the match pass posts each chore to its
sailor before committing: a transport error keeps the chore PENDING for
the next tick, a refusal with a body fails it with the body as reason.
With the flag set, delivery rides the heartbeat reply instead and
commits immediately, which keeps the captain fully passive toward
NATed sailors.

Cancels are always best-effort and repeat on every heartbeat that still
reports the chore.
*/
package captain
