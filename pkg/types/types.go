package types

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
)

// Sailor represents a worker host in the crew
type Sailor struct {
	Name     string   `json:"name"`
	IP       string   `json:"ip"`
	Port     int      `json:"port"`
	Services []string `json:"services"`

	// Advertised capacity, reported by the sailor itself via heartbeat
	CPUs int      `json:"cpus"`
	GPUs GPUCount `json:"gpus"`
	RAM  int64    `json:"ram"`

	// Current allocation, derived from the sum of assigned/running chores
	UsedCPUs int `json:"used_cpus"`
	UsedGPUs int `json:"used_gpus"`

	LastSeen int64  `json:"last_seen"` // Unix seconds of the latest heartbeat
	MaxTime  string `json:"max_time,omitempty"`

	// Status is recomputed from heartbeat age and usage; it is filled in
	// on API responses and never persisted as truth.
	Status SailorStatus `json:"status,omitempty"`
}

// Endpoint returns the host:port the sailor serves its own API on.
func (s *Sailor) Endpoint() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// HasService reports whether the sailor advertises the given capability tag.
// An empty tag matches any sailor.
func (s *Sailor) HasService(tag string) bool {
	if tag == "" {
		return true
	}
	for _, svc := range s.Services {
		if svc == tag {
			return true
		}
	}
	return false
}

// SailorStatus is a sailor's derived availability
type SailorStatus string

const (
	SailorStatusReady   SailorStatus = "READY"
	SailorStatusWorking SailorStatus = "WORKING"
	SailorStatusFull    SailorStatus = "FULL"
	SailorStatusDown    SailorStatus = "DOWN"
)

// GPUCount is a resource count that sailors report either as a plain
// integer or as a list of device indices; the list decodes to its length.
type GPUCount int

// UnmarshalJSON accepts 2, "2", [0, 1] and null.
func (g *GPUCount) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*g = GPUCount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "" {
			*g = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid resource count %q", s)
		}
		*g = GPUCount(n)
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(b, &list); err == nil {
		*g = GPUCount(len(list))
		return nil
	}
	return fmt.Errorf("invalid resource count %s", string(b))
}

// Int returns the count as a plain int.
func (g GPUCount) Int() int { return int(g) }

// Chore represents a user-submitted shell task
type Chore struct {
	ID            int64       `json:"chore_id"`
	Owner         string      `json:"owner"`
	Script        string      `json:"script"`
	Configuration ChoreConfig `json:"configuration"`
	Status        ChoreStatus `json:"status"`
	Sailor        string      `json:"sailor,omitempty"`
	PID           int         `json:"pid,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	SubmitTime    int64       `json:"submit_time,omitempty"`
	AssignTime    int64       `json:"assign_time,omitempty"`
	StartTime     int64       `json:"start_time,omitempty"`
	EndTime       int64       `json:"end_time,omitempty"`
	Infos         string      `json:"infos,omitempty"`
}

// Active reports whether the chore still occupies the scheduler.
func (c *Chore) Active() bool {
	return c.Status.Active()
}

// Key returns the chore's document key (decimal id).
func (c *Chore) Key() string {
	return strconv.FormatInt(c.ID, 10)
}

// ChoreConfig is the structured resource request attached to a chore
type ChoreConfig struct {
	Service string `json:"service,omitempty"` // required capability tag
	Sailor  string `json:"sailor,omitempty"`  // explicit sailor name
	CPUs    int    `json:"cpus"`
	GPUs    int    `json:"gpus"`
	Out     string `json:"out,omitempty"` // output path on the sailor
	WD      string `json:"wd,omitempty"`  // working directory on the sailor
}

// ChoreStatus represents the lifecycle state of a chore
type ChoreStatus string

const (
	ChoreStatusPending   ChoreStatus = "PENDING"
	ChoreStatusAssigned  ChoreStatus = "ASSIGNED"
	ChoreStatusRunning   ChoreStatus = "RUNNING"
	ChoreStatusCompleted ChoreStatus = "COMPLETED"
	ChoreStatusFailed    ChoreStatus = "FAILED"
	ChoreStatusCanceled  ChoreStatus = "CANCELED"
)

// Active reports whether the status is PENDING, ASSIGNED or RUNNING.
func (s ChoreStatus) Active() bool {
	switch s {
	case ChoreStatusPending, ChoreStatusAssigned, ChoreStatusRunning:
		return true
	}
	return false
}

// Terminal reports whether the status is COMPLETED, FAILED or CANCELED.
func (s ChoreStatus) Terminal() bool {
	switch s {
	case ChoreStatusCompleted, ChoreStatusFailed, ChoreStatusCanceled:
		return true
	}
	return false
}

// Reason strings attached to chores. These exact values appear in the
// persisted documents and in API responses.
const (
	ReasonNoAvailableSailor = "no available sailor"
	ReasonCanceledByUser    = "canceled by user"
	ReasonTimeLimit         = "exceeded time limit"
	ReasonUserTimeLimit     = "exceeded user time limit"
	ReasonSailorLost        = "sailor lost"
)

// User is a quota record for one chore owner
type User struct {
	UID         string `json:"uid"`
	Name        string `json:"name,omitempty"`
	ChoresLimit int    `json:"chores_limit,omitempty"` // 0 means unlimited
	TimeLimit   string `json:"time_limit,omitempty"`   // empty or zero means unlimited
	Notes       string `json:"notes,omitempty"`
}

// HeartbeatReport is the body a sailor posts to the captain
type HeartbeatReport struct {
	Name     string           `json:"name"`
	CPUs     int              `json:"cpus"`
	GPUs     GPUCount         `json:"gpus"`
	RAM      int64            `json:"ram"`
	UsedCPUs int              `json:"used_cpus"`
	UsedGPUs int              `json:"used_gpus"`
	Port     int              `json:"port,omitempty"`
	Running  []HeartbeatChore `json:"running"`
}

// HeartbeatChore is one running-chore entry inside a heartbeat report
type HeartbeatChore struct {
	ChoreID int64  `json:"chore_id"`
	PID     int    `json:"pid,omitempty"`
	Status  string `json:"status"`
	Infos   string `json:"infos,omitempty"`
	Exit    *int   `json:"exit,omitempty"`
}

// HeartbeatReply carries queued instructions back to the reporting sailor
type HeartbeatReply struct {
	Assign []*Chore `json:"assign"`
	Cancel []int64  `json:"cancel"`
}

// AssignRequest is the body the captain posts to a sailor to start a chore
type AssignRequest struct {
	ChoreID       int64       `json:"chore_id"`
	Owner         string      `json:"owner"`
	Script        string      `json:"script"`
	Configuration ChoreConfig `json:"configuration"`
}

// CancelRequest is the body the captain posts to a sailor to stop a chore
type CancelRequest struct {
	ChoreID int64  `json:"chore_id"`
	Reason  string `json:"reason,omitempty"`
}

// Event is a lifecycle notification published on the captain's broker
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ChoreID   int64     `json:"chore_id,omitempty"`
	Sailor    string    `json:"sailor,omitempty"`
	UID       string    `json:"uid,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// EventType classifies broker events
type EventType string

const (
	EventChoreSubmitted EventType = "chore.submitted"
	EventChoreAssigned  EventType = "chore.assigned"
	EventChoreStarted   EventType = "chore.started"
	EventChoreCompleted EventType = "chore.completed"
	EventChoreFailed    EventType = "chore.failed"
	EventChoreCanceled  EventType = "chore.canceled"
	EventSailorJoined   EventType = "sailor.joined"
	EventSailorDown     EventType = "sailor.down"
	EventSailorRemoved  EventType = "sailor.removed"
	EventUserUpdated    EventType = "user.updated"
)
