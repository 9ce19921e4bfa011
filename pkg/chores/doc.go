/*
Package chores tracks every chore the captain has accepted, from
submission to the archive cutoff.

A chore moves through at most four states:

	PENDING -> ASSIGNED -> RUNNING -> COMPLETED | FAILED | CANCELED

with shortcuts from PENDING and ASSIGNED straight to a terminal state
(cancellation, unreachable sailors, reported errors). Terminal chores
never change again; attempts to do so return ErrInvalidTransition.

Ids are strictly increasing int64s starting at IDFloor and are never
reused, even after chores are moved to the archive. EnsureFloor lets the
caller raise the allocator above the highest archived id on startup.

The batch operations (AssignBatch, CancelBatch, FailAllOn, Remove)
exist for the control loop: each commits a whole sweep with a single
document write.
*/
package chores
