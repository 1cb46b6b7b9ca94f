package pipeshare

import (
	"fmt"
	"sync/atomic"
)

// ConnStats keep track of both currently open and total connection counts for an
// endpoint (all the listener instances of one pipe path, or all dialed connections)
type ConnStats struct {
	count int32
	open  int32
}

// New adds one to the total connection count and to the open connection count,
// returning the new total
func (c *ConnStats) New() int32 {
	atomic.AddInt32(&c.open, 1)
	return atomic.AddInt32(&c.count, 1)
}

// Close subtracts one from the current open connection count in a ConnStats
func (c *ConnStats) Close() {
	atomic.AddInt32(&c.open, -1)
}

// Open returns the number of connections currently open
func (c *ConnStats) Open() int32 {
	return atomic.LoadInt32(&c.open)
}

// Total returns the number of connections ever opened
func (c *ConnStats) Total() int32 {
	return atomic.LoadInt32(&c.count)
}

func (c *ConnStats) String() string {
	return fmt.Sprintf("[%d/%d]", c.Open(), c.Total())
}
