package tracking

import (
	"sync"
)

// ConditionName identifies a pre-flight tracking condition.
type ConditionName string

const (
	ConditionDateTime   ConditionName = "datetime"
	ConditionFuel       ConditionName = "fuel"
	ConditionPayload    ConditionName = "payload"
	ConditionPlaneModel ConditionName = "plane_model"
	ConditionRealism    ConditionName = "realism"
	ConditionLocation   ConditionName = "location"
	ConditionVatsim     ConditionName = "vatsim"
)

var conditionOrder = []ConditionName{
	ConditionDateTime,
	ConditionFuel,
	ConditionPayload,
	ConditionPlaneModel,
	ConditionRealism,
	ConditionLocation,
	ConditionVatsim,
}

// Advisory conditions never block StartTracking; unmet state is surfaced to
// the user but tracking proceeds.
var advisoryConditions = map[ConditionName]bool{
	ConditionDateTime: true,
	ConditionFuel:     true,
	ConditionVatsim:   true,
}

// Condition is one row of the pre-flight checklist.
type Condition struct {
	Name     ConditionName `json:"name"`
	Enabled  bool          `json:"enabled"`
	Advisory bool          `json:"advisory"`
	Expected string        `json:"expected"`
	Current  string        `json:"current"`
	Met      bool          `json:"met"`
}

// Conditions is the concurrency-safe pre-flight condition table. The
// processing loops feed Current values in; the UI reads snapshots out.
type Conditions struct {
	mu    sync.RWMutex
	table map[ConditionName]*Condition
}

// NewConditions returns a table with every condition enabled and unmet.
func NewConditions() *Conditions {
	c := &Conditions{}
	c.Reset()
	return c
}

// Reset returns every condition to its enabled, unmet initial state.
func (c *Conditions) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = make(map[ConditionName]*Condition, len(conditionOrder))
	for _, name := range conditionOrder {
		c.table[name] = &Condition{
			Name:     name,
			Enabled:  true,
			Advisory: advisoryConditions[name],
		}
	}
}

// SetEnabled includes or excludes a condition from the checklist.
func (c *Conditions) SetEnabled(name ConditionName, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cond, ok := c.table[name]; ok {
		cond.Enabled = enabled
	}
}

// SetExpected records the target value shown next to the current one.
func (c *Conditions) SetExpected(name ConditionName, expected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cond, ok := c.table[name]; ok {
		cond.Expected = expected
	}
}

// Update records the latest observed value and whether it satisfies the
// condition.
func (c *Conditions) Update(name ConditionName, current string, met bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cond, ok := c.table[name]; ok {
		cond.Current = current
		cond.Met = met
	}
}

// Met reports whether a single condition is currently satisfied.
func (c *Conditions) Met(name ConditionName) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cond, ok := c.table[name]
	return ok && cond.Met
}

// AllSatisfied reports whether every enabled, non-advisory condition is met.
func (c *Conditions) AllSatisfied() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cond := range c.table {
		if cond.Enabled && !cond.Advisory && !cond.Met {
			return false
		}
	}
	return true
}

// Snapshot returns the checklist in stable display order.
func (c *Conditions) Snapshot() []Condition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Condition, 0, len(conditionOrder))
	for _, name := range conditionOrder {
		if cond, ok := c.table[name]; ok {
			out = append(out, *cond)
		}
	}
	return out
}
