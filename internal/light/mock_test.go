package light

import "testing"

func TestMockSensor_StaysInNominalRange(t *testing.T) {
	s := NewMockSensor()
	defer s.Close()

	for i := 0; i < 10; i++ {
		v, err := s.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if v < 150 || v > 2450 {
			t.Fatalf("reading %d outside nominal 150..2450", v)
		}
	}
}
