// Package light reads ambient light for the alarm brightness mapping.
package light

// Sensor produces a calibrated ambient light reading on demand, in
// millivolt-scaled units, nominally 150..2450 for a photoresistor divider.
type Sensor interface {
	Read() (int, error)
	Close() error
}
