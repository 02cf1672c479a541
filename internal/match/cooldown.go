package match

import "time"

// CooldownTable remembers when each label last produced a Recognized row.
// It is not safe for concurrent use.
type CooldownTable struct {
	lastLogged map[string]time.Time
}

// NewCooldownTable returns an empty table.
func NewCooldownTable() *CooldownTable {
	return &CooldownTable{lastLogged: make(map[string]time.Time)}
}

// ShouldLog reports whether label may be logged at now: it was never logged,
// or strictly more than cooldown has elapsed since the last write.
func (c *CooldownTable) ShouldLog(label string, now time.Time, cooldown time.Duration) bool {
	last, ok := c.lastLogged[label]
	if !ok {
		return true
	}
	return now.Sub(last) > cooldown
}

// MarkLogged records a write for label at now.
func (c *CooldownTable) MarkLogged(label string, now time.Time) {
	c.lastLogged[label] = now
}

// Len returns the number of labels logged so far.
func (c *CooldownTable) Len() int {
	return len(c.lastLogged)
}
