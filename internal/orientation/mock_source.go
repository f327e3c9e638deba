package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start time.Time
}

// NewMockSource creates a mock tilt source that sways the vehicle smoothly
// through the alarm threshold, for development off hardware.
func NewMockSource() Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) Read() (float64, float64, error) {
	elapsed := time.Since(m.start).Seconds()

	x := 6 * math.Sin(elapsed/5)
	y := 4 * math.Cos(elapsed/7)
	return x, y, nil
}
