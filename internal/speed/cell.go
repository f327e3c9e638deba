// Package speed delivers ground speed from a serial GPS to the control loop.
package speed

import (
	"math"
	"sync/atomic"
)

// Cell is a single-producer/single-consumer cell holding the latest ground
// speed in m/s. The GPS read loop is the only writer; the control loop is the
// only reader. The float is stored as its bit pattern so both sides see whole
// values without locking.
type Cell struct {
	bits atomic.Uint64
}

func (c *Cell) Store(v float64) {
	c.bits.Store(math.Float64bits(v))
}

func (c *Cell) Load() float64 {
	return math.Float64frombits(c.bits.Load())
}

// SpeedMS implements the control loop's speed reader.
func (c *Cell) SpeedMS() float64 { return c.Load() }
