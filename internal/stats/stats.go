package stats

import "sync/atomic"

// Counters are server-wide monitoring counters, updated with atomic
// operations and never under a bucket lock. Values may transiently lag the
// store's actual contents under concurrent load; they are reporting-only.
type Counters struct {
	CurrItems  atomic.Int64
	TotalItems atomic.Int64
	Bytes      atomic.Int64

	CurrConnections  atomic.Int64
	TotalConnections atomic.Int64

	CmdGet    atomic.Int64
	CmdSet    atomic.Int64
	CmdDelete atomic.Int64
	CmdFlush  atomic.Int64

	GetHits      atomic.Int64
	GetMisses    atomic.Int64
	DeleteHits   atomic.Int64
	DeleteMisses atomic.Int64
}

type Stat struct {
	Name  string
	Value int64
}

// Snapshot returns every counter in the order the stats command reports
// them.
func (c *Counters) Snapshot() []Stat {
	return []Stat{
		{"curr_items", c.CurrItems.Load()},
		{"total_items", c.TotalItems.Load()},
		{"bytes", c.Bytes.Load()},
		{"curr_connections", c.CurrConnections.Load()},
		{"total_connections", c.TotalConnections.Load()},
		{"cmd_get", c.CmdGet.Load()},
		{"cmd_set", c.CmdSet.Load()},
		{"cmd_delete", c.CmdDelete.Load()},
		{"cmd_flush", c.CmdFlush.Load()},
		{"get_hits", c.GetHits.Load()},
		{"get_misses", c.GetMisses.Load()},
		{"delete_hits", c.DeleteHits.Load()},
		{"delete_misses", c.DeleteMisses.Load()},
	}
}
