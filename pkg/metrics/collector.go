package metrics

import (
	"time"

	"github.com/quarterdeck/captain/pkg/chores"
	"github.com/quarterdeck/captain/pkg/crew"
	"github.com/quarterdeck/captain/pkg/types"
	"github.com/quarterdeck/captain/pkg/users"
)

// Collector samples the registries and publishes fleet gauges.
type Collector struct {
	crew   *crew.Registry
	chores *chores.Registry
	users  *users.Registry
	stopCh chan struct{}
}

// NewCollector creates a collector over the captain's registries.
func NewCollector(crewReg *crew.Registry, choreReg *chores.Registry, userReg *users.Registry) *Collector {
	return &Collector{
		crew:   crewReg,
		chores: choreReg,
		users:  userReg,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectSailorMetrics()
	c.collectChoreMetrics()
	c.collectUserMetrics()
}

func (c *Collector) collectSailorMetrics() {
	counts := map[types.SailorStatus]int{
		types.SailorStatusReady:   0,
		types.SailorStatusWorking: 0,
		types.SailorStatusFull:    0,
		types.SailorStatusDown:    0,
	}
	for _, s := range c.crew.List(time.Now().Unix()) {
		counts[s.Status]++
	}
	for status, count := range counts {
		SailorsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectChoreMetrics() {
	counts := map[types.ChoreStatus]int{
		types.ChoreStatusPending:   0,
		types.ChoreStatusAssigned:  0,
		types.ChoreStatusRunning:   0,
		types.ChoreStatusCompleted: 0,
		types.ChoreStatusFailed:    0,
		types.ChoreStatusCanceled:  0,
	}
	for _, chore := range c.chores.List() {
		counts[chore.Status]++
	}
	for status, count := range counts {
		ChoresTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectUserMetrics() {
	UsersTotal.Set(float64(len(c.users.List())))
}
