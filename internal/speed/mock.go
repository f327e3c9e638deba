package speed

import (
	"math"
	"time"
)

// MockReader is a speed reader that ramps between standstill and ~12 m/s,
// for development off hardware.
type MockReader struct {
	start time.Time
}

func NewMockReader() *MockReader {
	return &MockReader{start: time.Now()}
}

func (m *MockReader) SpeedMS() float64 {
	elapsed := time.Since(m.start).Seconds()
	return 6 + 6*math.Sin(elapsed/20)
}
