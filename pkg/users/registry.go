package users

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quarterdeck/captain/pkg/duration"
	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/store"
	"github.com/quarterdeck/captain/pkg/types"
)

var (
	// ErrQuotaExceeded is returned by CheckSubmit when a user is at their
	// chores_limit. The API surfaces it as 403.
	ErrQuotaExceeded = errors.New("user chore quota exceeded")

	// ErrUnknownUser is returned for uids with no record where one is
	// required, such as login. Surfaced as 404.
	ErrUnknownUser = errors.New("unknown user")
)

// Registry is the in-memory view over the users document. Users without
// a record have no limits; the zero values of a record mean the same.
type Registry struct {
	doc    *store.Document
	logger zerolog.Logger
	users  map[string]*types.User
}

// NewRegistry creates an empty registry over the given document.
func NewRegistry(doc *store.Document) *Registry {
	return &Registry{
		doc:    doc,
		logger: log.WithComponent("users"),
		users:  make(map[string]*types.User),
	}
}

// Load re-derives the in-memory view from the users document.
func (r *Registry) Load() {
	_ = r.doc.WithLock(func() error {
		raw := make(map[string]*types.User)
		r.doc.Load(&raw)
		fresh := make(map[string]*types.User, len(raw))
		for uid, u := range raw {
			if u == nil {
				continue
			}
			u.UID = uid
			fresh[uid] = u
		}
		r.users = fresh
		r.logger.Info().Int("users", len(fresh)).Msg("users loaded")
		return nil
	})
}

// Set validates and stores a full user record, replacing any existing
// one. Callers merging partial updates fetch the record first.
func (r *Registry) Set(u types.User) (types.User, error) {
	if u.UID == "" {
		return types.User{}, fmt.Errorf("user uid is required")
	}
	if u.ChoresLimit < 0 {
		return types.User{}, fmt.Errorf("chores_limit must not be negative")
	}
	if u.TimeLimit != "" {
		if _, err := duration.Parse(u.TimeLimit); err != nil {
			return types.User{}, fmt.Errorf("time_limit: %w", err)
		}
	}
	err := r.doc.WithLock(func() error {
		stored := u
		r.users[u.UID] = &stored
		return r.persist()
	})
	return u, err
}

// Get returns one user record and whether it exists. Absent records mean
// unlimited quotas.
func (r *Registry) Get(uid string) (types.User, bool) {
	var out types.User
	found := false
	_ = r.doc.WithLock(func() error {
		if u, ok := r.users[uid]; ok {
			out = *u
			found = true
		}
		return nil
	})
	return out, found
}

// List returns all user records sorted by uid.
func (r *Registry) List() []types.User {
	var out []types.User
	_ = r.doc.WithLock(func() error {
		for _, u := range r.users {
			out = append(out, *u)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// CheckSubmit decides whether a user may submit one more chore given
// their current number of active chores.
func (r *Registry) CheckSubmit(uid string, activeChores int) error {
	u, ok := r.Get(uid)
	if !ok || u.ChoresLimit <= 0 {
		return nil
	}
	if activeChores+1 > u.ChoresLimit {
		return fmt.Errorf("user %s has %d active chores of %d allowed: %w",
			uid, activeChores, u.ChoresLimit, ErrQuotaExceeded)
	}
	return nil
}

// TimeLimitSeconds returns the user's cumulative time limit in seconds,
// or duration.Unlimited when absent. A limit that no longer parses is
// treated as unlimited rather than blocking the sweep.
func (r *Registry) TimeLimitSeconds(uid string) int64 {
	u, ok := r.Get(uid)
	if !ok || u.TimeLimit == "" {
		return duration.Unlimited
	}
	secs, err := duration.Parse(u.TimeLimit)
	if err != nil {
		r.logger.Warn().Str("uid", uid).Str("time_limit", u.TimeLimit).
			Msg("stored time_limit does not parse, treating as unlimited")
		return duration.Unlimited
	}
	return secs
}

// ExcessByTime selects the chores to cancel for a user whose active
// chores have accumulated more than limitSeconds of runtime. Each chore
// accrues now minus its start time, or its submit time while still
// queued. The newest-submitted chores are shed first until the total is
// back at or under the limit; the survivors are the oldest.
func ExcessByTime(limitSeconds int64, active []types.Chore, now int64) []int64 {
	if limitSeconds <= 0 || len(active) == 0 {
		return nil
	}
	sorted := make([]types.Chore, len(active))
	copy(sorted, active)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SubmitTime != sorted[j].SubmitTime {
			return sorted[i].SubmitTime < sorted[j].SubmitTime
		}
		return sorted[i].ID < sorted[j].ID
	})
	var total int64
	elapsed := make([]int64, len(sorted))
	for i, c := range sorted {
		since := c.StartTime
		if since == 0 {
			since = c.SubmitTime
		}
		d := now - since
		if d < 0 {
			d = 0
		}
		elapsed[i] = d
		total += d
	}
	var cancel []int64
	for i := len(sorted) - 1; i >= 0 && total > limitSeconds; i-- {
		cancel = append(cancel, sorted[i].ID)
		total -= elapsed[i]
	}
	return cancel
}

// persist saves the map keyed by uid; on failure the view is re-derived
// from disk so the failed mutation does not linger.
func (r *Registry) persist() error {
	raw := make(map[string]*types.User, len(r.users))
	for uid, u := range r.users {
		raw[uid] = u
	}
	if err := r.doc.Save(raw); err != nil {
		fresh := make(map[string]*types.User)
		r.doc.Load(&fresh)
		rebuilt := make(map[string]*types.User, len(fresh))
		for uid, u := range fresh {
			if u == nil {
				continue
			}
			u.UID = uid
			rebuilt[uid] = u
		}
		r.users = rebuilt
		return err
	}
	return nil
}
