package light

import (
	"math"
	"time"
)

type mockSensor struct {
	start time.Time
}

// NewMockSensor returns a light sensor that sweeps through the nominal
// 150..2450 range over a couple of minutes, for development off hardware.
func NewMockSensor() Sensor {
	return &mockSensor{start: time.Now()}
}

func (m *mockSensor) Read() (int, error) {
	elapsed := time.Since(m.start).Seconds()
	return 1300 + int(1150*math.Sin(elapsed/30)), nil
}

func (m *mockSensor) Close() error { return nil }
