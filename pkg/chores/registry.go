package chores

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/store"
	"github.com/quarterdeck/captain/pkg/types"
)

var (
	// ErrNotFound is returned for unknown chore ids.
	ErrNotFound = errors.New("chore not found")

	// ErrInvalidTransition is returned when an operation is not legal for
	// the chore's current status, e.g. canceling a terminal chore.
	ErrInvalidTransition = errors.New("invalid chore state transition")
)

// IDFloor is the lowest chore id ever allocated, giving nine-digit ids.
const IDFloor = 100000000

// Registry is the in-memory view over the chores document.
type Registry struct {
	doc    *store.Document
	logger zerolog.Logger
	chores map[int64]*types.Chore
	lastID int64
}

// NewRegistry creates an empty registry over the given document. Call
// Load to populate it from disk.
func NewRegistry(doc *store.Document) *Registry {
	return &Registry{
		doc:    doc,
		logger: log.WithComponent("chores"),
		chores: make(map[int64]*types.Chore),
	}
}

// Load re-derives the in-memory view from the chores document.
func (r *Registry) Load() {
	_ = r.doc.WithLock(func() error {
		raw := make(map[string]*types.Chore)
		r.doc.Load(&raw)
		fresh := make(map[int64]*types.Chore, len(raw))
		var last int64
		for key, chore := range raw {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil || chore == nil {
				r.logger.Warn().Str("key", key).Msg("dropping undecodable chore entry")
				continue
			}
			chore.ID = id
			fresh[id] = chore
			if id > last {
				last = id
			}
		}
		r.chores = fresh
		if last > r.lastID {
			r.lastID = last
		}
		r.logger.Info().Int("chores", len(fresh)).Msg("chores loaded")
		return nil
	})
}

// EnsureFloor raises the id allocator so ids already handed out (for
// example to chores now living only in the archive) are never reused.
func (r *Registry) EnsureFloor(id int64) {
	_ = r.doc.WithLock(func() error {
		if id > r.lastID {
			r.lastID = id
		}
		return nil
	})
}

// Submit creates a new PENDING chore and returns a copy of it. Ids are
// strictly increasing, starting at IDFloor.
func (r *Registry) Submit(owner, script string, cfg types.ChoreConfig, now int64) (types.Chore, error) {
	var out types.Chore
	if owner == "" || script == "" {
		return out, fmt.Errorf("submit needs owner and script")
	}
	if cfg.CPUs < 0 || cfg.GPUs < 0 {
		return out, fmt.Errorf("negative resource request")
	}
	err := r.doc.WithLock(func() error {
		id := r.lastID + 1
		if id < IDFloor {
			id = IDFloor
		}
		chore := &types.Chore{
			ID:            id,
			Owner:         owner,
			Script:        script,
			Configuration: cfg,
			Status:        types.ChoreStatusPending,
			Reason:        types.ReasonNoAvailableSailor,
			SubmitTime:    now,
		}
		r.chores[id] = chore
		r.lastID = id
		out = *chore
		return r.persist()
	})
	return out, err
}

// Get returns a copy of one chore.
func (r *Registry) Get(id int64) (types.Chore, error) {
	var out types.Chore
	err := r.doc.WithLock(func() error {
		chore, ok := r.chores[id]
		if !ok {
			return fmt.Errorf("chore %d: %w", id, ErrNotFound)
		}
		out = *chore
		return nil
	})
	return out, err
}

// List returns copies of all chores in ascending id order.
func (r *Registry) List() []types.Chore {
	return r.collect(func(*types.Chore) bool { return true })
}

// ListOwned returns copies of one owner's chores in ascending id order.
func (r *Registry) ListOwned(owner string) []types.Chore {
	return r.collect(func(c *types.Chore) bool { return c.Owner == owner })
}

// PendingFIFO returns the PENDING queue in submission order.
func (r *Registry) PendingFIFO() []types.Chore {
	return r.collect(func(c *types.Chore) bool { return c.Status == types.ChoreStatusPending })
}

// Active returns all chores still occupying the scheduler.
func (r *Registry) Active() []types.Chore {
	return r.collect(func(c *types.Chore) bool { return c.Active() })
}

// ActiveOwned returns one owner's active chores.
func (r *Registry) ActiveOwned(owner string) []types.Chore {
	return r.collect(func(c *types.Chore) bool { return c.Active() && c.Owner == owner })
}

// ActiveOn returns the active chores held by one sailor.
func (r *Registry) ActiveOn(sailor string) []types.Chore {
	return r.collect(func(c *types.Chore) bool { return c.Active() && c.Sailor == sailor })
}

// UsageFor sums the resource requests of the assigned and running chores
// on one sailor. This is the captain-side truth for usage counters.
func (r *Registry) UsageFor(sailor string) (cpus, gpus int) {
	_ = r.doc.WithLock(func() error {
		for _, c := range r.chores {
			if c.Sailor != sailor {
				continue
			}
			if c.Status == types.ChoreStatusAssigned || c.Status == types.ChoreStatusRunning {
				cpus += c.Configuration.CPUs
				gpus += c.Configuration.GPUs
			}
		}
		return nil
	})
	return cpus, gpus
}

// MarkAssigned moves a PENDING chore to ASSIGNED on the given sailor.
func (r *Registry) MarkAssigned(id int64, sailor string, now int64) (types.Chore, error) {
	return r.mutate(id, func(c *types.Chore) error {
		if c.Status != types.ChoreStatusPending {
			return fmt.Errorf("assign %d in %s: %w", id, c.Status, ErrInvalidTransition)
		}
		c.Status = types.ChoreStatusAssigned
		c.Sailor = sailor
		c.AssignTime = now
		c.Reason = ""
		return nil
	})
}

// AssignBatch commits several PENDING→ASSIGNED transitions in one write.
// Chores no longer PENDING are skipped; the successfully assigned copies
// are returned.
func (r *Registry) AssignBatch(assignments map[int64]string, now int64) ([]types.Chore, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	var out []types.Chore
	err := r.doc.WithLock(func() error {
		for id, sailor := range assignments {
			c, ok := r.chores[id]
			if !ok || c.Status != types.ChoreStatusPending {
				r.logger.Debug().Int64("chore_id", id).Msg("skipping stale assignment")
				continue
			}
			c.Status = types.ChoreStatusAssigned
			c.Sailor = sailor
			c.AssignTime = now
			c.Reason = ""
			out = append(out, *c)
		}
		if len(out) == 0 {
			return nil
		}
		return r.persist()
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// MarkRunning records the pid reported for an ASSIGNED chore. Repeated
// running reports are idempotent.
func (r *Registry) MarkRunning(id int64, pid int, infos string, now int64) (types.Chore, error) {
	return r.mutate(id, func(c *types.Chore) error {
		switch c.Status {
		case types.ChoreStatusAssigned:
			c.Status = types.ChoreStatusRunning
			c.PID = pid
			c.StartTime = now
		case types.ChoreStatusRunning:
			if pid != 0 {
				c.PID = pid
			}
		default:
			return fmt.Errorf("run %d in %s: %w", id, c.Status, ErrInvalidTransition)
		}
		if infos != "" {
			c.Infos = infos
		}
		return nil
	})
}

// MarkCompleted finishes a chore with exit status zero.
func (r *Registry) MarkCompleted(id int64, infos string, now int64) (types.Chore, error) {
	return r.mutate(id, func(c *types.Chore) error {
		if c.Status != types.ChoreStatusAssigned && c.Status != types.ChoreStatusRunning {
			return fmt.Errorf("complete %d in %s: %w", id, c.Status, ErrInvalidTransition)
		}
		c.Status = types.ChoreStatusCompleted
		c.EndTime = now
		if infos != "" {
			c.Infos = infos
		}
		return nil
	})
}

// MarkFailed finishes an active chore as FAILED with the given reason.
func (r *Registry) MarkFailed(id int64, reason, infos string, now int64) (types.Chore, error) {
	return r.mutate(id, func(c *types.Chore) error {
		if !c.Active() {
			return fmt.Errorf("fail %d in %s: %w", id, c.Status, ErrInvalidTransition)
		}
		c.Status = types.ChoreStatusFailed
		c.EndTime = now
		c.Reason = reason
		if infos != "" {
			c.Infos = infos
		}
		return nil
	})
}

// MarkCanceled cancels an active chore with the given reason.
func (r *Registry) MarkCanceled(id int64, reason string, now int64) (types.Chore, error) {
	return r.mutate(id, func(c *types.Chore) error {
		if !c.Active() {
			return fmt.Errorf("cancel %d in %s: %w", id, c.Status, ErrInvalidTransition)
		}
		c.Status = types.ChoreStatusCanceled
		c.EndTime = now
		c.Reason = reason
		return nil
	})
}

// CancelBatch cancels several chores in one write, skipping any that are
// no longer active. The canceled copies are returned.
func (r *Registry) CancelBatch(ids []int64, reason string, now int64) ([]types.Chore, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []types.Chore
	err := r.doc.WithLock(func() error {
		for _, id := range ids {
			c, ok := r.chores[id]
			if !ok || !c.Active() {
				continue
			}
			c.Status = types.ChoreStatusCanceled
			c.EndTime = now
			c.Reason = reason
			out = append(out, *c)
		}
		if len(out) == 0 {
			return nil
		}
		return r.persist()
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// FailAllOn fails every active chore held by one sailor, in one write.
// Used when a sailor goes DOWN.
func (r *Registry) FailAllOn(sailor, reason string, now int64) ([]types.Chore, error) {
	var out []types.Chore
	err := r.doc.WithLock(func() error {
		for _, c := range r.chores {
			if c.Sailor != sailor || !c.Active() {
				continue
			}
			c.Status = types.ChoreStatusFailed
			c.EndTime = now
			c.Reason = reason
			out = append(out, *c)
		}
		if len(out) == 0 {
			return nil
		}
		return r.persist()
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// TerminalBefore returns copies of terminal chores whose end_time is
// older than the cutoff, the candidates for archival.
func (r *Registry) TerminalBefore(cutoff int64) []types.Chore {
	return r.collect(func(c *types.Chore) bool {
		return c.Status.Terminal() && c.EndTime != 0 && c.EndTime < cutoff
	})
}

// Remove drops the given chores from the live document, after they have
// been archived. The id allocator keeps counting past removed ids.
func (r *Registry) Remove(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.doc.WithLock(func() error {
		removed := false
		for _, id := range ids {
			if _, ok := r.chores[id]; ok {
				delete(r.chores, id)
				removed = true
			}
		}
		if !removed {
			return nil
		}
		return r.persist()
	})
}

// mutate runs fn on one chore under the document lock and persists.
func (r *Registry) mutate(id int64, fn func(*types.Chore) error) (types.Chore, error) {
	var out types.Chore
	err := r.doc.WithLock(func() error {
		chore, ok := r.chores[id]
		if !ok {
			return fmt.Errorf("chore %d: %w", id, ErrNotFound)
		}
		if err := fn(chore); err != nil {
			return err
		}
		out = *chore
		return r.persist()
	})
	return out, err
}

// collect returns sorted copies of the chores matching the filter.
func (r *Registry) collect(keep func(*types.Chore) bool) []types.Chore {
	var out []types.Chore
	_ = r.doc.WithLock(func() error {
		for _, c := range r.chores {
			if keep(c) {
				out = append(out, *c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// persist saves the map keyed by decimal id; on failure the view is
// re-derived from disk so the failed mutation does not linger.
func (r *Registry) persist() error {
	raw := make(map[string]*types.Chore, len(r.chores))
	for _, c := range r.chores {
		raw[c.Key()] = c
	}
	if err := r.doc.Save(raw); err != nil {
		fresh := make(map[string]*types.Chore)
		r.doc.Load(&fresh)
		rebuilt := make(map[int64]*types.Chore, len(fresh))
		for key, chore := range fresh {
			id, perr := strconv.ParseInt(key, 10, 64)
			if perr != nil || chore == nil {
				continue
			}
			chore.ID = id
			rebuilt[id] = chore
		}
		r.chores = rebuilt
		return err
	}
	return nil
}
