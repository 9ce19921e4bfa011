package captain

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarterdeck/captain/pkg/crew"
	"github.com/quarterdeck/captain/pkg/duration"
	"github.com/quarterdeck/captain/pkg/metrics"
	"github.com/quarterdeck/captain/pkg/sailor"
	"github.com/quarterdeck/captain/pkg/types"
	"github.com/quarterdeck/captain/pkg/users"
)

// maxRPCWorkers bounds concurrent outbound sailor calls per sweep.
const maxRPCWorkers = 8

func (c *Captain) run() {
	defer close(c.doneCh)
	ticker := time.NewTicker(c.cfg.TickInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick(context.Background(), time.Now().Unix())
		case <-c.stopCh:
			return
		}
	}
}

// tick runs one scheduling pass: liveness, the two time-limit sweeps,
// the match pass, and the archive reap. Registry operations persist as
// they commit, so a crash between phases loses nothing but the tick.
func (c *Captain) tick(ctx context.Context, now int64) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickDuration)

	c.sweepLiveness(now)
	c.sweepSailorTime(ctx, now)
	c.sweepUserTime(ctx, now)
	c.matchPass(ctx, now)
	c.reapArchive(now)
	c.tokens.CleanupExpired()
}

// sweepLiveness fails the chores of sailors that stopped heartbeating.
func (c *Captain) sweepLiveness(now int64) {
	fleet := c.crew.List(now)
	current := make(map[string]bool, len(fleet))

	for _, s := range fleet {
		current[s.Name] = true
		prev, seen := c.lastStatus[s.Name]
		c.lastStatus[s.Name] = s.Status
		if s.Status != types.SailorStatusDown {
			continue
		}
		if !seen || prev != types.SailorStatusDown {
			c.broker.PublishSailor(types.EventSailorDown, s.Name, "missed heartbeat deadline")
			c.logger.Warn().Str("sailor", s.Name).Int64("last_seen", s.LastSeen).Msg("sailor lost")
		}

		failed, err := c.chores.FailAllOn(s.Name, types.ReasonSailorLost, now)
		if err != nil {
			c.logger.Error().Err(err).Str("sailor", s.Name).Msg("failed to fail chores of lost sailor")
			continue
		}
		if len(failed) == 0 {
			continue
		}
		c.releaseUsage(failed)
		for _, chore := range failed {
			metrics.ChoresFailed.Inc()
			c.broker.PublishChore(types.EventChoreFailed, chore, types.ReasonSailorLost)
			c.logger.Info().Int64("chore_id", chore.ID).Str("sailor", s.Name).Msg("chore failed, sailor lost")
		}
	}

	for name := range c.lastStatus {
		if !current[name] {
			delete(c.lastStatus, name)
		}
	}
}

// sweepSailorTime cancels chores that outlived their sailor's max_time.
func (c *Captain) sweepSailorTime(ctx context.Context, now int64) {
	limits := make(map[string]int64)
	var expired []int64

	for _, chore := range c.chores.Active() {
		if chore.Sailor == "" {
			continue
		}
		limit, cached := limits[chore.Sailor]
		if !cached {
			limit = duration.Unlimited
			if s, err := c.crew.Get(chore.Sailor, now); err == nil {
				if secs, perr := duration.Parse(s.MaxTime); perr == nil {
					limit = secs
				}
			}
			limits[chore.Sailor] = limit
		}
		if limit <= 0 {
			continue
		}
		since := chore.StartTime
		if since == 0 {
			since = chore.AssignTime
		}
		if since != 0 && now-since > limit {
			expired = append(expired, chore.ID)
		}
	}

	c.cancelBatch(ctx, expired, types.ReasonTimeLimit, now)
}

// sweepUserTime sheds the newest chores of users over their cumulative
// time_limit.
func (c *Captain) sweepUserTime(ctx context.Context, now int64) {
	byOwner := make(map[string][]types.Chore)
	for _, chore := range c.chores.Active() {
		byOwner[chore.Owner] = append(byOwner[chore.Owner], chore)
	}

	var doomed []int64
	for owner, active := range byOwner {
		limit := c.users.TimeLimitSeconds(owner)
		if limit <= 0 {
			continue
		}
		doomed = append(doomed, users.ExcessByTime(limit, active, now)...)
	}

	c.cancelBatch(ctx, doomed, types.ReasonUserTimeLimit, now)
}

// matchPass walks the PENDING queue in id order and hands each chore to
// the first sailor that fits, iterating sailors by ascending name. The
// plan is computed against working copies of the usage counters, then
// delivered, then committed in one write per document.
func (c *Captain) matchPass(ctx context.Context, now int64) {
	pending := c.chores.PendingFIFO()
	if len(pending) == 0 {
		return
	}
	fleet := c.crew.List(now)
	if len(fleet) == 0 {
		return
	}
	deadline := c.crew.Deadline()

	planned := make(map[int64]string)
	perSailor := make(map[string][]types.Chore)
	for _, chore := range pending {
		cfg := chore.Configuration
		for i := range fleet {
			s := &fleet[i]
			if !crew.Fit(s, &cfg, now, deadline) {
				continue
			}
			s.UsedCPUs += cfg.CPUs
			s.UsedGPUs += cfg.GPUs
			planned[chore.ID] = s.Name
			perSailor[s.Name] = append(perSailor[s.Name], chore)
			break
		}
	}
	if len(planned) == 0 {
		return
	}

	accepted := planned
	refused := make(map[int64]string)
	if !c.cfg.AssignViaHeartbeat {
		accepted, refused = c.deliverAssignments(ctx, perSailor)
	}

	assigned, err := c.chores.AssignBatch(accepted, now)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to commit assignments")
		return
	}
	deltas := make(map[string]crew.UsageDelta)
	for _, chore := range assigned {
		d := deltas[chore.Sailor]
		d.CPUs += chore.Configuration.CPUs
		d.GPUs += chore.Configuration.GPUs
		deltas[chore.Sailor] = d
	}
	if err := c.crew.AddUsage(deltas); err != nil {
		c.logger.Error().Err(err).Msg("failed to record sailor usage")
	}
	for _, chore := range assigned {
		metrics.ChoresAssigned.Inc()
		c.broker.PublishChore(types.EventChoreAssigned, chore, "assigned to "+chore.Sailor)
		c.logger.Info().Int64("chore_id", chore.ID).Str("sailor", chore.Sailor).Msg("chore assigned")
	}

	for id, reason := range refused {
		chore, err := c.chores.MarkFailed(id, reason, "", now)
		if err != nil {
			continue
		}
		metrics.ChoresFailed.Inc()
		c.broker.PublishChore(types.EventChoreFailed, chore, reason)
		c.logger.Info().Int64("chore_id", id).Str("reason", reason).Msg("chore refused by sailor")
	}
}

// deliverAssignments posts the planned chores to their sailors,
// concurrent across sailors and in id order within one. A transport
// failure drops the sailor's remaining batch for this tick; a refusal
// with a body fails just that chore.
func (c *Captain) deliverAssignments(ctx context.Context, perSailor map[string][]types.Chore) (map[int64]string, map[int64]string) {
	accepted := make(map[int64]string)
	refused := make(map[int64]string)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(maxRPCWorkers)
	for name, batch := range perSailor {
		endpoint, err := c.endpointOf(name)
		if err != nil {
			continue
		}
		g.Go(func() error {
			for _, chore := range batch {
				err := c.client.Assign(ctx, endpoint, chore)
				if err == nil {
					mu.Lock()
					accepted[chore.ID] = name
					mu.Unlock()
					continue
				}
				if se, ok := sailor.AsStatus(err); ok && se.Body != "" {
					mu.Lock()
					refused[chore.ID] = se.Body
					mu.Unlock()
					continue
				}
				metrics.SailorRPCFailures.WithLabelValues("assign").Inc()
				c.logger.Warn().Err(err).Str("sailor", name).Int64("chore_id", chore.ID).
					Msg("assign not delivered, chore stays pending")
				break
			}
			return nil
		})
	}
	_ = g.Wait()
	return accepted, refused
}

// cancelBatch cancels the given chores, releases their usage, and
// delivers the cancels sailor by sailor.
func (c *Captain) cancelBatch(ctx context.Context, ids []int64, reason string, now int64) {
	if len(ids) == 0 {
		return
	}
	canceled, err := c.chores.CancelBatch(ids, reason, now)
	if err != nil {
		c.logger.Error().Err(err).Str("reason", reason).Msg("failed to cancel chores")
		return
	}
	if len(canceled) == 0 {
		return
	}
	c.releaseUsage(canceled)

	perSailor := make(map[string][]int64)
	for _, chore := range canceled {
		metrics.ChoresCanceled.Inc()
		c.broker.PublishChore(types.EventChoreCanceled, chore, reason)
		c.logger.Info().Int64("chore_id", chore.ID).Str("reason", reason).Msg("chore canceled")
		if chore.Sailor != "" {
			perSailor[chore.Sailor] = append(perSailor[chore.Sailor], chore.ID)
		}
	}

	var g errgroup.Group
	g.SetLimit(maxRPCWorkers)
	for name, choreIDs := range perSailor {
		endpoint, err := c.endpointOf(name)
		if err != nil {
			continue
		}
		g.Go(func() error {
			for _, id := range choreIDs {
				if err := c.client.Cancel(ctx, endpoint, id, reason); err != nil {
					metrics.SailorRPCFailures.WithLabelValues("cancel").Inc()
					c.logger.Warn().Err(err).Str("sailor", name).Int64("chore_id", id).
						Msg("cancel delivery failed, will retry via heartbeat")
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// reapArchive moves long-terminal chores into the archive.
func (c *Captain) reapArchive(now int64) {
	cutoff := now - int64(c.cfg.ArchiveAfter.Std().Seconds())
	candidates := c.chores.TerminalBefore(cutoff)
	if len(candidates) == 0 {
		return
	}

	ptrs := make([]*types.Chore, len(candidates))
	ids := make([]int64, len(candidates))
	for i := range candidates {
		ptrs[i] = &candidates[i]
		ids[i] = candidates[i].ID
	}
	if err := c.archive.Put(ptrs...); err != nil {
		c.logger.Error().Err(err).Msg("failed to archive chores, keeping them live")
		return
	}
	if err := c.chores.Remove(ids); err != nil {
		c.logger.Error().Err(err).Msg("failed to remove archived chores")
		return
	}
	metrics.ArchivedChoresTotal.Add(float64(len(ids)))
	c.logger.Debug().Int("chores", len(ids)).Msg("chores archived")
}
