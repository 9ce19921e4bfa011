package captain

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quarterdeck/captain/pkg/archive"
	"github.com/quarterdeck/captain/pkg/chores"
	"github.com/quarterdeck/captain/pkg/config"
	"github.com/quarterdeck/captain/pkg/crew"
	"github.com/quarterdeck/captain/pkg/events"
	"github.com/quarterdeck/captain/pkg/log"
	"github.com/quarterdeck/captain/pkg/metrics"
	"github.com/quarterdeck/captain/pkg/sailor"
	"github.com/quarterdeck/captain/pkg/store"
	"github.com/quarterdeck/captain/pkg/types"
	"github.com/quarterdeck/captain/pkg/users"
)

var (
	// ErrValidation marks malformed requests. The API surfaces it as 400.
	ErrValidation = errors.New("invalid request")

	// ErrUnauthorized marks missing or bad credentials. Surfaced as 401.
	ErrUnauthorized = errors.New("unauthorized")
)

// SubmitRequest is a chore submission.
type SubmitRequest struct {
	Owner         string            `json:"owner"`
	Script        string            `json:"script"`
	Configuration types.ChoreConfig `json:"configuration"`
}

// UserUpdate is a partial user record; nil fields keep their stored
// values.
type UserUpdate struct {
	UID         string  `json:"uid"`
	Name        *string `json:"name,omitempty"`
	ChoresLimit *int    `json:"chores_limit,omitempty"`
	TimeLimit   *string `json:"time_limit,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// Captain owns the registries and runs the scheduling loop. All API
// handlers call into it; it is safe for concurrent use.
type Captain struct {
	cfg       *config.Config
	store     *store.Store
	crew      *crew.Registry
	chores    *chores.Registry
	users     *users.Registry
	archive   *archive.Archive
	broker    *events.Broker
	client    *sailor.Client
	tokens    *TokenManager
	collector *metrics.Collector
	logger    zerolog.Logger

	// submitMu serializes quota check and insert so a user can never
	// slip past chores_limit with concurrent submissions.
	submitMu sync.Mutex

	// rpcWG tracks best-effort cancel deliveries still in flight.
	rpcWG sync.WaitGroup

	stopCh chan struct{}
	doneCh chan struct{}

	// lastStatus remembers each sailor's derived status between ticks
	// so the loop can spot fresh DOWN transitions.
	lastStatus map[string]types.SailorStatus
}

// New builds a captain from its configuration: documents loaded,
// archive opened, allocator floor restored. Call Start to begin
// scheduling.
func New(cfg *config.Config) (*Captain, error) {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	arch, err := archive.Open(filepath.Join(st.Dir(), "archive.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	crewReg := crew.NewRegistry(st.Crew(), cfg.HeartbeatDeadline.Std())
	crewReg.Load()
	choreReg := chores.NewRegistry(st.Chores())
	choreReg.Load()
	userReg := users.NewRegistry(st.Users())
	userReg.Load()

	maxArchived, err := arch.MaxID()
	if err != nil {
		arch.Close()
		return nil, fmt.Errorf("failed to restore id floor: %w", err)
	}
	choreReg.EnsureFloor(maxArchived)

	broker := events.NewBroker()
	broker.Start()

	c := &Captain{
		cfg:        cfg,
		store:      st,
		crew:       crewReg,
		chores:     choreReg,
		users:      userReg,
		archive:    arch,
		broker:     broker,
		client:     sailor.NewClient(cfg.RPCTimeout.Std()),
		tokens:     NewTokenManager(),
		collector:  metrics.NewCollector(crewReg, choreReg, userReg),
		logger:     log.WithComponent("captain"),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		lastStatus: make(map[string]types.SailorStatus),
	}
	metrics.SetComponent("store", true, "documents loaded")
	return c, nil
}

// Start launches the control loop.
func (c *Captain) Start() {
	c.logger.Info().
		Str("tick_interval", c.cfg.TickInterval.Std().String()).
		Str("heartbeat_deadline", c.cfg.HeartbeatDeadline.Std().String()).
		Bool("assign_via_heartbeat", c.cfg.AssignViaHeartbeat).
		Msg("starting control loop")
	metrics.SetComponent("loop", true, "running")
	c.collector.Start()
	go c.run()
}

// Stop halts the control loop, waits for in-flight cancel deliveries,
// and closes the archive.
func (c *Captain) Stop() {
	close(c.stopCh)
	<-c.doneCh
	c.collector.Stop()
	c.rpcWG.Wait()
	c.broker.Stop()
	if err := c.archive.Close(); err != nil {
		c.logger.Error().Err(err).Msg("failed to close archive")
	}
	c.logger.Info().Msg("captain stopped")
}

// Events exposes the broker for the websocket handler.
func (c *Captain) Events() *events.Broker { return c.broker }

// Store exposes the document store, for the discovery file.
func (c *Captain) Store() *store.Store { return c.store }

// SubmitChore validates a submission against the owner's quota and
// queues it PENDING. The matcher picks it up on the next tick.
func (c *Captain) SubmitChore(req SubmitRequest) (types.Chore, error) {
	var out types.Chore
	if req.Owner == "" {
		return out, fmt.Errorf("owner is required: %w", ErrValidation)
	}
	if req.Script == "" {
		return out, fmt.Errorf("script is required: %w", ErrValidation)
	}
	if req.Configuration.CPUs < 0 || req.Configuration.GPUs < 0 {
		return out, fmt.Errorf("negative resource request: %w", ErrValidation)
	}
	if req.Configuration.Sailor != "" {
		if _, err := c.crew.Get(req.Configuration.Sailor, time.Now().Unix()); err != nil {
			return out, fmt.Errorf("requested sailor %q is not preregistered: %w", req.Configuration.Sailor, ErrValidation)
		}
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	active := len(c.chores.ActiveOwned(req.Owner))
	if err := c.users.CheckSubmit(req.Owner, active); err != nil {
		return out, err
	}

	out, err := c.chores.Submit(req.Owner, req.Script, req.Configuration, time.Now().Unix())
	if err != nil {
		return out, err
	}
	c.logger.Info().Int64("chore_id", out.ID).Str("owner", out.Owner).Msg("chore submitted")
	c.broker.PublishChore(types.EventChoreSubmitted, out, "queued")
	metrics.ChoresSubmitted.Inc()
	return out, nil
}

// CancelChore transitions a chore to CANCELED locally and delivers the
// cancel to its sailor in the background. The reason defaults to
// "canceled by user".
func (c *Captain) CancelChore(id int64, reason string) (types.Chore, error) {
	if reason == "" {
		reason = types.ReasonCanceledByUser
	}
	now := time.Now().Unix()
	chore, err := c.chores.MarkCanceled(id, reason, now)
	if err != nil {
		return chore, err
	}
	metrics.ChoresCanceled.Inc()
	c.broker.PublishChore(types.EventChoreCanceled, chore, reason)
	c.logger.Info().Int64("chore_id", id).Str("reason", reason).Msg("chore canceled")

	if chore.Sailor != "" {
		c.releaseUsage([]types.Chore{chore})
		c.deliverCancel(chore.Sailor, id, reason)
	}
	return chore, nil
}

// deliverCancel sends a cancel RPC without blocking the caller. A
// failure is retried implicitly: while the sailor keeps reporting the
// chore, every heartbeat reply repeats the cancel instruction.
func (c *Captain) deliverCancel(sailorName string, choreID int64, reason string) {
	endpoint, err := c.endpointOf(sailorName)
	if err != nil {
		c.logger.Warn().Str("sailor", sailorName).Int64("chore_id", choreID).
			Msg("cancel not delivered, sailor unknown")
		return
	}
	c.rpcWG.Add(1)
	go func() {
		defer c.rpcWG.Done()
		if err := c.client.Cancel(context.Background(), endpoint, choreID, reason); err != nil {
			metrics.SailorRPCFailures.WithLabelValues("cancel").Inc()
			c.logger.Warn().Err(err).Str("sailor", sailorName).Int64("chore_id", choreID).
				Msg("cancel delivery failed, will retry via heartbeat")
		}
	}()
}

// Heartbeat ingests a sailor report and returns the work queued for it.
// The report's chore entries drive lifecycle transitions; the usage
// counters stored on the sailor are recomputed from the chore table
// afterwards, so captain-side assignments the sailor has not seen yet
// stay accounted for.
func (c *Captain) Heartbeat(report *types.HeartbeatReport) (*types.HeartbeatReply, error) {
	if report == nil || report.Name == "" {
		return nil, fmt.Errorf("heartbeat needs a sailor name: %w", ErrValidation)
	}
	now := time.Now().Unix()
	if _, err := c.crew.Get(report.Name, now); err != nil {
		return nil, err
	}

	reply := &types.HeartbeatReply{Assign: []*types.Chore{}, Cancel: []int64{}}

	for _, entry := range report.Running {
		cancel := c.applyChoreReport(report.Name, entry, now)
		if cancel {
			reply.Cancel = append(reply.Cancel, entry.ChoreID)
		}
	}

	usedCPUs, usedGPUs := c.chores.UsageFor(report.Name)
	updated, err := c.crew.UpdateFromReport(report, usedCPUs, usedGPUs, now)
	if err != nil {
		return nil, err
	}

	for _, chore := range c.chores.ActiveOn(report.Name) {
		if chore.Status == types.ChoreStatusAssigned {
			queued := chore
			reply.Assign = append(reply.Assign, &queued)
		}
	}

	metrics.HeartbeatsTotal.Inc()
	c.logger.Debug().Str("sailor", report.Name).Str("status", string(updated.Status)).
		Int("reported", len(report.Running)).Int("assign", len(reply.Assign)).
		Int("cancel", len(reply.Cancel)).Msg("heartbeat")
	return reply, nil
}

// applyChoreReport applies one reported chore entry. It returns true
// when the sailor should be told to stop the chore: the captain holds
// it terminal, it was reassigned elsewhere, or it is not known at all.
func (c *Captain) applyChoreReport(sailorName string, entry types.HeartbeatChore, now int64) bool {
	chore, err := c.chores.Get(entry.ChoreID)
	if err != nil {
		return true
	}
	if chore.Sailor != sailorName {
		return true
	}
	if chore.Status.Terminal() {
		// Still reported running after the captain closed it out, most
		// often a cancel that never arrived. Repeat the instruction.
		return entry.Exit == nil
	}

	if strings.EqualFold(entry.Status, "canceled") {
		reason := entry.Infos
		if reason == "" {
			reason = "canceled"
		}
		updated, err := c.chores.MarkCanceled(entry.ChoreID, reason, now)
		if err != nil {
			c.logger.Warn().Err(err).Int64("chore_id", entry.ChoreID).Msg("ignoring cancel report")
			return false
		}
		metrics.ChoresCanceled.Inc()
		c.broker.PublishChore(types.EventChoreCanceled, updated, reason)
		c.logger.Info().Int64("chore_id", entry.ChoreID).Msg("chore canceled on sailor")
		return false
	}

	switch {
	case entry.Exit == nil:
		updated, err := c.chores.MarkRunning(entry.ChoreID, entry.PID, entry.Infos, now)
		if err != nil {
			c.logger.Warn().Err(err).Int64("chore_id", entry.ChoreID).Msg("ignoring running report")
			return false
		}
		if chore.Status == types.ChoreStatusAssigned {
			c.broker.PublishChore(types.EventChoreStarted, updated, entry.Infos)
		}
	case *entry.Exit == 0:
		updated, err := c.chores.MarkCompleted(entry.ChoreID, entry.Infos, now)
		if err != nil {
			c.logger.Warn().Err(err).Int64("chore_id", entry.ChoreID).Msg("ignoring completion report")
			return false
		}
		c.broker.PublishChore(types.EventChoreCompleted, updated, entry.Infos)
		c.logger.Info().Int64("chore_id", entry.ChoreID).Msg("chore completed")
	default:
		reason := entry.Infos
		if reason == "" {
			reason = fmt.Sprintf("exit status %d", *entry.Exit)
		}
		updated, err := c.chores.MarkFailed(entry.ChoreID, reason, entry.Infos, now)
		if err != nil {
			c.logger.Warn().Err(err).Int64("chore_id", entry.ChoreID).Msg("ignoring failure report")
			return false
		}
		metrics.ChoresFailed.Inc()
		c.broker.PublishChore(types.EventChoreFailed, updated, reason)
		c.logger.Info().Int64("chore_id", entry.ChoreID).Str("reason", reason).Msg("chore failed")
	}
	return false
}

// Preregister records a sailor's static identity so its heartbeats are
// accepted.
func (c *Captain) Preregister(name, ip string, port int, services []string, maxTime string) (types.Sailor, error) {
	_, lookupErr := c.crew.Get(name, time.Now().Unix())
	s, err := c.crew.Preregister(name, ip, port, services, maxTime)
	if err != nil {
		return s, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	c.logger.Info().Str("sailor", name).Str("ip", ip).Msg("sailor preregistered")
	if lookupErr != nil {
		c.broker.PublishSailor(types.EventSailorJoined, name, "preregistered")
	}
	return s, nil
}

// RemoveSailor drops a sailor from the crew and fails whatever it was
// still holding.
func (c *Captain) RemoveSailor(name string) error {
	if err := c.crew.Remove(name); err != nil {
		return err
	}
	now := time.Now().Unix()
	failed, err := c.chores.FailAllOn(name, types.ReasonSailorLost, now)
	if err != nil {
		c.logger.Error().Err(err).Str("sailor", name).Msg("failed to fail chores of removed sailor")
	}
	for _, chore := range failed {
		metrics.ChoresFailed.Inc()
		c.broker.PublishChore(types.EventChoreFailed, chore, types.ReasonSailorLost)
	}
	c.broker.PublishSailor(types.EventSailorRemoved, name, "removed by admin")
	c.logger.Info().Str("sailor", name).Int("chores_failed", len(failed)).Msg("sailor removed")
	return nil
}

// ListCrew returns all sailors with derived statuses.
func (c *Captain) ListCrew() []types.Sailor {
	return c.crew.List(time.Now().Unix())
}

// GetSailor returns one sailor with its derived status.
func (c *Captain) GetSailor(name string) (types.Sailor, error) {
	return c.crew.Get(name, time.Now().Unix())
}

// ListChores returns every chore in the live document.
func (c *Captain) ListChores() []types.Chore {
	return c.chores.List()
}

// ListChoresOwned returns one owner's chores.
func (c *Captain) ListChoresOwned(owner string) []types.Chore {
	return c.chores.ListOwned(owner)
}

// GetChore returns a chore from the live document, falling back to the
// archive for chores already reaped.
func (c *Captain) GetChore(id int64) (types.Chore, error) {
	chore, err := c.chores.Get(id)
	if err == nil {
		return chore, nil
	}
	archived, aerr := c.archive.Get(id)
	if aerr != nil {
		return chore, err
	}
	return *archived, nil
}

// ArchivedChores lists the archive in ascending id order.
func (c *Captain) ArchivedChores() ([]types.Chore, error) {
	archived, err := c.archive.List()
	if err != nil {
		return nil, err
	}
	out := make([]types.Chore, 0, len(archived))
	for _, chore := range archived {
		out = append(out, *chore)
	}
	return out, nil
}

// ListUsers returns all user quota records.
func (c *Captain) ListUsers() []types.User {
	return c.users.List()
}

// SetUser merges a partial update into a user record, creating it if
// needed.
func (c *Captain) SetUser(upd UserUpdate) (types.User, error) {
	if upd.UID == "" {
		return types.User{}, fmt.Errorf("uid is required: %w", ErrValidation)
	}
	record, _ := c.users.Get(upd.UID)
	record.UID = upd.UID
	if upd.Name != nil {
		record.Name = *upd.Name
	}
	if upd.ChoresLimit != nil {
		record.ChoresLimit = *upd.ChoresLimit
	}
	if upd.TimeLimit != nil {
		record.TimeLimit = *upd.TimeLimit
	}
	if upd.Notes != nil {
		record.Notes = *upd.Notes
	}
	stored, err := c.users.Set(record)
	if err != nil {
		return stored, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	c.broker.PublishUser(types.EventUserUpdated, stored.UID, "limits updated")
	c.logger.Info().Str("uid", stored.UID).Int("chores_limit", stored.ChoresLimit).
		Str("time_limit", stored.TimeLimit).Msg("user updated")
	return stored, nil
}

// Login issues a session token for a known user.
func (c *Captain) Login(uid string) (*SessionToken, error) {
	if uid == "" {
		return nil, fmt.Errorf("uid is required: %w", ErrValidation)
	}
	if _, ok := c.users.Get(uid); !ok {
		return nil, fmt.Errorf("uid %q has no user record: %w", uid, users.ErrUnknownUser)
	}
	return c.tokens.Issue(uid, c.cfg.TokenTTL.Std())
}

// Authenticate resolves a bearer token to its uid.
func (c *Captain) Authenticate(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("missing token: %w", ErrUnauthorized)
	}
	return c.tokens.Validate(token)
}

// endpointOf resolves a sailor name to its host:port.
func (c *Captain) endpointOf(name string) (string, error) {
	s, err := c.crew.Get(name, time.Now().Unix())
	if err != nil {
		return "", err
	}
	return s.Endpoint(), nil
}

// releaseUsage subtracts the resource requests of the given chores from
// their sailors' counters. The next heartbeat recomputes the truth; this
// keeps the working view fresh between beats.
func (c *Captain) releaseUsage(released []types.Chore) {
	deltas := make(map[string]crew.UsageDelta)
	for _, chore := range released {
		if chore.Sailor == "" {
			continue
		}
		d := deltas[chore.Sailor]
		d.CPUs -= chore.Configuration.CPUs
		d.GPUs -= chore.Configuration.GPUs
		deltas[chore.Sailor] = d
	}
	if len(deltas) == 0 {
		return
	}
	if err := c.crew.AddUsage(deltas); err != nil {
		c.logger.Error().Err(err).Msg("failed to release sailor usage")
	}
}
