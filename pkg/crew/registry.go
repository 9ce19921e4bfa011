package crew

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quarterdeck/captain/pkg/duration"
	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/store"
	"github.com/quarterdeck/captain/pkg/types"
)

// ErrUnknownSailor is returned for operations on a name that was never
// preregistered.
var ErrUnknownSailor = errors.New("unknown sailor")

// DefaultPort is assumed when neither preregistration nor a heartbeat has
// reported the sailor's serving port.
const DefaultPort = 8001

// UsageDelta adjusts a sailor's allocation counters.
type UsageDelta struct {
	CPUs int
	GPUs int
}

// Registry is the in-memory view over the crew document.
type Registry struct {
	doc      *store.Document
	deadline time.Duration
	logger   zerolog.Logger
	sailors  map[string]*types.Sailor
}

// NewRegistry creates an empty registry over the given document. Call
// Load to populate it from disk.
func NewRegistry(doc *store.Document, deadline time.Duration) *Registry {
	return &Registry{
		doc:      doc,
		deadline: deadline,
		logger:   log.WithComponent("crew"),
		sailors:  make(map[string]*types.Sailor),
	}
}

// Load re-derives the in-memory view from the crew document.
func (r *Registry) Load() {
	_ = r.doc.WithLock(func() error {
		fresh := make(map[string]*types.Sailor)
		r.doc.Load(&fresh)
		if fresh == nil {
			fresh = make(map[string]*types.Sailor)
		}
		r.sailors = fresh
		r.logger.Info().Int("sailors", len(fresh)).Msg("crew loaded")
		return nil
	})
}

// Preregister creates or replaces a sailor's static fields. Capacity,
// usage, and heartbeat age reported earlier survive the replacement;
// capacity stays zero until the sailor itself reports it.
func (r *Registry) Preregister(name, ip string, port int, services []string, maxTime string) (types.Sailor, error) {
	var out types.Sailor
	if name == "" || ip == "" {
		return out, fmt.Errorf("preregister needs name and ip")
	}
	if _, err := duration.Parse(maxTime); err != nil {
		return out, fmt.Errorf("invalid max_time: %w", err)
	}
	if services == nil {
		services = []string{}
	}
	err := r.doc.WithLock(func() error {
		s := &types.Sailor{
			Name:     name,
			IP:       ip,
			Port:     port,
			Services: services,
			MaxTime:  maxTime,
		}
		if prev, ok := r.sailors[name]; ok {
			s.CPUs = prev.CPUs
			s.GPUs = prev.GPUs
			s.RAM = prev.RAM
			s.UsedCPUs = prev.UsedCPUs
			s.UsedGPUs = prev.UsedGPUs
			s.LastSeen = prev.LastSeen
			if s.Port == 0 {
				s.Port = prev.Port
			}
		}
		if s.Port == 0 {
			s.Port = DefaultPort
		}
		r.sailors[name] = s
		out = r.snapshot(s, time.Now().Unix())
		return r.persist()
	})
	return out, err
}

// UpdateFromReport applies a heartbeat: capacity fields, last_seen, and
// the allocation counters recomputed by the caller from the chore table.
func (r *Registry) UpdateFromReport(report *types.HeartbeatReport, usedCPUs, usedGPUs int, now int64) (types.Sailor, error) {
	var out types.Sailor
	err := r.doc.WithLock(func() error {
		s, ok := r.sailors[report.Name]
		if !ok {
			return fmt.Errorf("heartbeat from %q: %w", report.Name, ErrUnknownSailor)
		}
		s.CPUs = report.CPUs
		s.GPUs = report.GPUs
		s.RAM = report.RAM
		if report.Port > 0 {
			s.Port = report.Port
		}
		s.UsedCPUs = usedCPUs
		s.UsedGPUs = usedGPUs
		s.LastSeen = now
		out = r.snapshot(s, now)
		return r.persist()
	})
	return out, err
}

// AddUsage applies allocation deltas for several sailors in one write.
// Counters are clamped to [0, capacity]. Unknown names are skipped; the
// sailor may have been removed between planning and commit.
func (r *Registry) AddUsage(deltas map[string]UsageDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	return r.doc.WithLock(func() error {
		for name, d := range deltas {
			s, ok := r.sailors[name]
			if !ok {
				continue
			}
			s.UsedCPUs = clamp(s.UsedCPUs+d.CPUs, s.CPUs)
			s.UsedGPUs = clamp(s.UsedGPUs+d.GPUs, s.GPUs.Int())
		}
		return r.persist()
	})
}

// Remove deletes a sailor. Admin action only; active chores on the
// sailor are the caller's concern.
func (r *Registry) Remove(name string) error {
	return r.doc.WithLock(func() error {
		if _, ok := r.sailors[name]; !ok {
			return fmt.Errorf("remove %q: %w", name, ErrUnknownSailor)
		}
		delete(r.sailors, name)
		return r.persist()
	})
}

// Get returns a copy of one sailor with its derived status filled in.
func (r *Registry) Get(name string, now int64) (types.Sailor, error) {
	var out types.Sailor
	err := r.doc.WithLock(func() error {
		s, ok := r.sailors[name]
		if !ok {
			return fmt.Errorf("sailor %q: %w", name, ErrUnknownSailor)
		}
		out = r.snapshot(s, now)
		return nil
	})
	return out, err
}

// List returns copies of all sailors, ascending by name, with derived
// status filled in. The matcher iterates this order.
func (r *Registry) List(now int64) []types.Sailor {
	var out []types.Sailor
	_ = r.doc.WithLock(func() error {
		for _, s := range r.sailors {
			out = append(out, r.snapshot(s, now))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Deadline returns the configured heartbeat deadline.
func (r *Registry) Deadline() time.Duration { return r.deadline }

// snapshot copies a sailor for use outside the lock.
func (r *Registry) snapshot(s *types.Sailor, now int64) types.Sailor {
	out := *s
	out.Services = append([]string(nil), s.Services...)
	out.Status = DeriveStatus(s, now, r.deadline)
	return out
}

// persist saves the map; on failure the view is re-derived from disk so
// the failed mutation does not linger in memory.
func (r *Registry) persist() error {
	if err := r.doc.Save(r.sailors); err != nil {
		fresh := make(map[string]*types.Sailor)
		r.doc.Load(&fresh)
		if fresh == nil {
			fresh = make(map[string]*types.Sailor)
		}
		r.sailors = fresh
		return err
	}
	return nil
}

// DeriveStatus computes a sailor's availability from heartbeat age and
// usage. It is never persisted.
func DeriveStatus(s *types.Sailor, now int64, deadline time.Duration) types.SailorStatus {
	if now-s.LastSeen > int64(deadline/time.Second) {
		return types.SailorStatusDown
	}
	if s.UsedCPUs >= s.CPUs && s.UsedGPUs >= s.GPUs.Int() {
		return types.SailorStatusFull
	}
	if s.UsedCPUs > 0 || s.UsedGPUs > 0 {
		return types.SailorStatusWorking
	}
	return types.SailorStatusReady
}

// Fit reports whether the sailor can take the given request right now:
// alive, providing the requested service, matching an explicit sailor
// name, and with enough unallocated cpus and gpus.
func Fit(s *types.Sailor, cfg *types.ChoreConfig, now int64, deadline time.Duration) bool {
	if DeriveStatus(s, now, deadline) == types.SailorStatusDown {
		return false
	}
	if cfg.Sailor != "" && cfg.Sailor != s.Name {
		return false
	}
	if !s.HasService(cfg.Service) {
		return false
	}
	return s.CPUs-s.UsedCPUs >= cfg.CPUs && s.GPUs.Int()-s.UsedGPUs >= cfg.GPUs
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if max >= 0 && v > max {
		return max
	}
	return v
}
