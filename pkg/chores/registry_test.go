package chores

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarterdeck/captain/pkg/store"
	"github.com/quarterdeck/captain/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	r := NewRegistry(st.Chores())
	r.Load()
	return r
}

func TestSubmitAllocatesIncreasingIDs(t *testing.T) {
	r := newTestRegistry(t)

	first, err := r.Submit("alice", "echo one", types.ChoreConfig{CPUs: 1}, 100)
	require.NoError(t, err)
	second, err := r.Submit("alice", "echo two", types.ChoreConfig{}, 101)
	require.NoError(t, err)

	assert.Equal(t, int64(IDFloor), first.ID)
	assert.Equal(t, int64(IDFloor+1), second.ID)
	assert.Equal(t, types.ChoreStatusPending, first.Status)
	assert.Equal(t, types.ReasonNoAvailableSailor, first.Reason)
	assert.Equal(t, int64(100), first.SubmitTime)
}

func TestSubmitValidation(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Submit("", "echo", types.ChoreConfig{}, 1)
	assert.Error(t, err)
	_, err = r.Submit("alice", "", types.ChoreConfig{}, 1)
	assert.Error(t, err)
	_, err = r.Submit("alice", "echo", types.ChoreConfig{CPUs: -1}, 1)
	assert.Error(t, err)
}

func TestIDsSurviveRemoval(t *testing.T) {
	r := newTestRegistry(t)

	first, err := r.Submit("alice", "echo", types.ChoreConfig{}, 1)
	require.NoError(t, err)
	_, err = r.MarkCanceled(first.ID, types.ReasonCanceledByUser, 2)
	require.NoError(t, err)
	require.NoError(t, r.Remove([]int64{first.ID}))

	next, err := r.Submit("alice", "echo", types.ChoreConfig{}, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, next.ID, "removed ids must not be reused")
}

func TestEnsureFloor(t *testing.T) {
	r := newTestRegistry(t)
	r.EnsureFloor(IDFloor + 41)

	chore, err := r.Submit("alice", "echo", types.ChoreConfig{}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(IDFloor+42), chore.ID)
}

func TestLifecycleTransitions(t *testing.T) {
	r := newTestRegistry(t)
	chore, err := r.Submit("alice", "sleep 5", types.ChoreConfig{CPUs: 2}, 10)
	require.NoError(t, err)

	assigned, err := r.MarkAssigned(chore.ID, "bob", 11)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusAssigned, assigned.Status)
	assert.Equal(t, "bob", assigned.Sailor)
	assert.Equal(t, int64(11), assigned.AssignTime)
	assert.Empty(t, assigned.Reason, "assignment clears the pending reason")

	running, err := r.MarkRunning(chore.ID, 4242, "started", 12)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusRunning, running.Status)
	assert.Equal(t, 4242, running.PID)
	assert.Equal(t, int64(12), running.StartTime)
	assert.Equal(t, "started", running.Infos)

	// Repeated running reports are idempotent and keep the start time.
	again, err := r.MarkRunning(chore.ID, 4242, "", 13)
	require.NoError(t, err)
	assert.Equal(t, int64(12), again.StartTime)
	assert.Equal(t, "started", again.Infos)

	done, err := r.MarkCompleted(chore.ID, "exit 0", 14)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusCompleted, done.Status)
	assert.Equal(t, int64(14), done.EndTime)
}

func TestInvalidTransitions(t *testing.T) {
	r := newTestRegistry(t)
	chore, err := r.Submit("alice", "echo", types.ChoreConfig{}, 1)
	require.NoError(t, err)

	// PENDING chores cannot run or complete.
	_, err = r.MarkRunning(chore.ID, 1, "", 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = r.MarkCompleted(chore.ID, "", 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = r.MarkCanceled(chore.ID, types.ReasonCanceledByUser, 3)
	require.NoError(t, err)

	// Terminal chores reject every further transition.
	_, err = r.MarkAssigned(chore.ID, "bob", 4)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = r.MarkCanceled(chore.ID, types.ReasonCanceledByUser, 4)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = r.MarkFailed(chore.ID, "boom", "", 4)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = r.Get(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedTransitionLeavesChoreUntouched(t *testing.T) {
	r := newTestRegistry(t)
	chore, err := r.Submit("alice", "echo", types.ChoreConfig{}, 1)
	require.NoError(t, err)
	_, err = r.MarkRunning(chore.ID, 1, "", 2)
	require.Error(t, err)

	got, err := r.Get(chore.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusPending, got.Status)
	assert.Zero(t, got.PID)
}

func TestPendingFIFO(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Submit("alice", "a", types.ChoreConfig{}, 1)
	b, _ := r.Submit("bob", "b", types.ChoreConfig{}, 2)
	c, _ := r.Submit("alice", "c", types.ChoreConfig{}, 3)
	_, err := r.MarkAssigned(b.ID, "sailor", 4)
	require.NoError(t, err)

	queue := r.PendingFIFO()
	require.Len(t, queue, 2)
	assert.Equal(t, a.ID, queue[0].ID)
	assert.Equal(t, c.ID, queue[1].ID)
}

func TestAssignBatchSkipsStaleEntries(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Submit("alice", "a", types.ChoreConfig{}, 1)
	b, _ := r.Submit("alice", "b", types.ChoreConfig{}, 2)
	_, err := r.MarkCanceled(b.ID, types.ReasonCanceledByUser, 3)
	require.NoError(t, err)

	assigned, err := r.AssignBatch(map[int64]string{a.ID: "bob", b.ID: "bob"}, 4)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, a.ID, assigned[0].ID)
	assert.Equal(t, "bob", assigned[0].Sailor)

	got, err := r.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusCanceled, got.Status)
}

func TestCancelBatch(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Submit("alice", "a", types.ChoreConfig{}, 1)
	b, _ := r.Submit("alice", "b", types.ChoreConfig{}, 2)
	_, err := r.MarkCompleted(a.ID, "", 3)
	require.Error(t, err, "pending chores cannot complete")

	canceled, err := r.CancelBatch([]int64{a.ID, b.ID, 999}, types.ReasonUserTimeLimit, 4)
	require.NoError(t, err)
	require.Len(t, canceled, 2)
	for _, c := range canceled {
		assert.Equal(t, types.ChoreStatusCanceled, c.Status)
		assert.Equal(t, types.ReasonUserTimeLimit, c.Reason)
		assert.Equal(t, int64(4), c.EndTime)
	}
}

func TestFailAllOn(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Submit("alice", "a", types.ChoreConfig{CPUs: 1}, 1)
	b, _ := r.Submit("alice", "b", types.ChoreConfig{CPUs: 1}, 2)
	c, _ := r.Submit("alice", "c", types.ChoreConfig{CPUs: 1}, 3)
	_, err := r.MarkAssigned(a.ID, "bob", 4)
	require.NoError(t, err)
	_, err = r.MarkAssigned(b.ID, "eve", 4)
	require.NoError(t, err)
	_, err = r.MarkAssigned(c.ID, "bob", 4)
	require.NoError(t, err)
	_, err = r.MarkRunning(c.ID, 77, "", 5)
	require.NoError(t, err)

	failed, err := r.FailAllOn("bob", types.ReasonSailorLost, 6)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, a.ID, failed[0].ID)
	assert.Equal(t, c.ID, failed[1].ID)
	for _, f := range failed {
		assert.Equal(t, types.ChoreStatusFailed, f.Status)
		assert.Equal(t, types.ReasonSailorLost, f.Reason)
	}

	still, err := r.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusAssigned, still.Status)
}

func TestUsageFor(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Submit("alice", "a", types.ChoreConfig{CPUs: 2, GPUs: 1}, 1)
	b, _ := r.Submit("alice", "b", types.ChoreConfig{CPUs: 3}, 2)
	c, _ := r.Submit("alice", "c", types.ChoreConfig{CPUs: 8}, 3)
	_, err := r.MarkAssigned(a.ID, "bob", 4)
	require.NoError(t, err)
	_, err = r.MarkAssigned(b.ID, "bob", 4)
	require.NoError(t, err)
	_, err = r.MarkRunning(b.ID, 12, "", 5)
	require.NoError(t, err)
	_ = c // still pending, must not count

	cpus, gpus := r.UsageFor("bob")
	assert.Equal(t, 5, cpus)
	assert.Equal(t, 1, gpus)

	_, err = r.MarkCompleted(b.ID, "", 6)
	require.NoError(t, err)
	cpus, gpus = r.UsageFor("bob")
	assert.Equal(t, 2, cpus)
	assert.Equal(t, 1, gpus)
}

func TestTerminalBeforeAndRemove(t *testing.T) {
	r := newTestRegistry(t)
	old, _ := r.Submit("alice", "a", types.ChoreConfig{}, 1)
	fresh, _ := r.Submit("alice", "b", types.ChoreConfig{}, 2)
	live, _ := r.Submit("alice", "c", types.ChoreConfig{}, 3)
	_, err := r.MarkCanceled(old.ID, types.ReasonCanceledByUser, 100)
	require.NoError(t, err)
	_, err = r.MarkCanceled(fresh.ID, types.ReasonCanceledByUser, 900)
	require.NoError(t, err)

	candidates := r.TerminalBefore(500)
	require.Len(t, candidates, 1)
	assert.Equal(t, old.ID, candidates[0].ID)

	require.NoError(t, r.Remove([]int64{old.ID}))
	_, err = r.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(live.ID)
	assert.NoError(t, err)
	assert.Len(t, r.List(), 2)
}

func TestOwnerQueries(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.Submit("alice", "a", types.ChoreConfig{}, 1)
	_, _ = r.Submit("bob", "b", types.ChoreConfig{}, 2)
	c, _ := r.Submit("alice", "c", types.ChoreConfig{}, 3)
	_, err := r.MarkCanceled(c.ID, types.ReasonCanceledByUser, 4)
	require.NoError(t, err)

	owned := r.ListOwned("alice")
	require.Len(t, owned, 2)
	active := r.ActiveOwned("alice")
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)
}

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(dir)
	require.NoError(t, err)

	r := NewRegistry(st.Chores())
	r.Load()
	chore, err := r.Submit("alice", "echo hello", types.ChoreConfig{CPUs: 1}, 50)
	require.NoError(t, err)
	_, err = r.MarkAssigned(chore.ID, "bob", 51)
	require.NoError(t, err)

	st2, err := store.Open(dir)
	require.NoError(t, err)
	r2 := NewRegistry(st2.Chores())
	r2.Load()

	got, err := r2.Get(chore.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChoreStatusAssigned, got.Status)
	assert.Equal(t, "bob", got.Sailor)

	next, err := r2.Submit("alice", "echo again", types.ChoreConfig{}, 60)
	require.NoError(t, err)
	assert.Equal(t, chore.ID+1, next.ID, "allocator resumes past persisted ids")
}
