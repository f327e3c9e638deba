package orientation

import (
	"math"
	"testing"
)

func TestTiltFromAccel_Level(t *testing.T) {
	// Gravity straight down the Z axis: level.
	tilt := TiltFromAccel(0, 0, 1)
	if tilt.XDeg != 0 || tilt.YDeg != 0 {
		t.Fatalf("tilt=%+v want level", tilt)
	}
}

func TestTiltFromAccel_KnownAngles(t *testing.T) {
	cases := []struct {
		name       string
		ax, ay, az float64
		wantX      float64
		wantY      float64
	}{
		{name: "Roll45", ax: 0, ay: 1, az: 1, wantX: 45, wantY: 0},
		{name: "RollMinus45", ax: 0, ay: -1, az: 1, wantX: -45, wantY: 0},
		{name: "Pitch45", ax: -1, ay: 0, az: 1, wantX: 0, wantY: 45},
		{name: "Roll90", ax: 0, ay: 1, az: 0, wantX: 90, wantY: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tilt := TiltFromAccel(tc.ax, tc.ay, tc.az)
			if math.Abs(tilt.XDeg-tc.wantX) > 1e-9 || math.Abs(tilt.YDeg-tc.wantY) > 1e-9 {
				t.Fatalf("tilt=%+v want x=%v y=%v", tilt, tc.wantX, tc.wantY)
			}
		})
	}
}

func TestTiltFromAccel_UnitIndependent(t *testing.T) {
	// Only ratios matter; raw counts and m/s² must agree.
	a := TiltFromAccel(100, 200, 980)
	b := TiltFromAccel(1.0, 2.0, 9.8)
	if math.Abs(a.XDeg-b.XDeg) > 1e-9 || math.Abs(a.YDeg-b.YDeg) > 1e-9 {
		t.Fatalf("scaled inputs diverge: %+v vs %+v", a, b)
	}
}

func TestMockSource_ReadsWithoutError(t *testing.T) {
	src := NewMockSource()
	x, y, err := src.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if math.Abs(x) > 10 || math.Abs(y) > 10 {
		t.Fatalf("mock tilt out of range: %v, %v", x, y)
	}
}
