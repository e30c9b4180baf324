package interaction

import (
	"volitus/server/internal/models"
)

// DefaultThreshold is the number of interactions that schedules a vote
const DefaultThreshold = 5

// Collector accumulates the engagement events of one room. It is not safe for
// concurrent use; the owning room serializes access.
type Collector struct {
	threshold int
	log       []models.Interaction
	firedAt   int // the multiple of threshold that last fired, 0 when none
}

// NewCollector creates a collector firing every threshold interactions
func NewCollector(threshold int) *Collector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Collector{threshold: threshold}
}

// Record appends an interaction and returns the accumulated count
func (c *Collector) Record(in models.Interaction) int {
	c.log = append(c.log, in)
	return len(c.log)
}

// Count returns the accumulated count
func (c *Collector) Count() int {
	return len(c.log)
}

// Pending reports whether the current count sits on a multiple of the
// threshold that has not fired yet. It does not consume the trigger.
func (c *Collector) Pending() bool {
	n := len(c.log)
	return n > 0 && n%c.threshold == 0 && n != c.firedAt
}

// ShouldTrigger returns true once per multiple of the threshold crossed since
// the last Clear. A multiple that was already passed without being observed
// does not fire later.
func (c *Collector) ShouldTrigger() bool {
	if !c.Pending() {
		return false
	}
	c.firedAt = len(c.log)
	return true
}

// Interactions returns a copy of the accumulated log
func (c *Collector) Interactions() []models.Interaction {
	return append([]models.Interaction(nil), c.log...)
}

// Clear resets the log so the next trigger needs a full threshold again
func (c *Collector) Clear() {
	c.log = nil
	c.firedAt = 0
}
