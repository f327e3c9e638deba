// Package orientation provides tilt sources for the level watch loop.
package orientation

import "math"

// Tilt is one sample of the vehicle's attitude around level, in degrees.
// X is roll, Y is pitch.
type Tilt struct {
	XDeg float64 `json:"x_deg"`
	YDeg float64 `json:"y_deg"`
}

// Source is anything that can produce tilt samples on demand: the IMU, a
// mock, possibly a replay source later.
type Source interface {
	Read() (xDeg, yDeg float64, err error)
}

// TiltFromAccel computes roll and pitch from raw accelerometer values (any
// unit; only the ratios matter):
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func TiltFromAccel(ax, ay, az float64) Tilt {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Tilt{
		XDeg: rollRad * 180.0 / math.Pi,
		YDeg: pitchRad * 180.0 / math.Pi,
	}
}
