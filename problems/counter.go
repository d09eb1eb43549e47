package problems

import "sync/atomic"

// Counter numbers experiments. It is safe for use by concurrent workers.
type Counter struct {
	n atomic.Int64
}

// Next increments the counter and returns the new experiment number.
func (c *Counter) Next() int64 { return c.n.Add(1) }

// Count returns the number of experiments started.
func (c *Counter) Count() int64 { return c.n.Load() }
