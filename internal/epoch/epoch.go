// Package epoch tags dispatched fetches so completions for superseded
// parameters can be recognised and dropped.
package epoch

import "sync/atomic"

type Counter struct {
	n atomic.Uint64
}

// Next starts a new epoch and returns it.
func (c *Counter) Next() uint64 {
	return c.n.Add(1)
}

func (c *Counter) Current() uint64 {
	return c.n.Load()
}

func (c *Counter) IsCurrent(e uint64) bool {
	return c.n.Load() == e
}
