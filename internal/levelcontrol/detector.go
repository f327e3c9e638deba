package levelcontrol

import (
	"fmt"
	"math"
	"strings"
)

// State is the detector's alarm state.
type State int

const (
	StateNormal State = iota
	StateAlarm
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateAlarm:
		return "alarm"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RecoveryMode selects how the detector leaves the alarm state.
//
// RecoveryBandExit clears the alarm once the tilt is back under the threshold
// and the speed has left the armed band on either side.
//
// RecoveryLatched keeps the recovery rule that requires the speed to be below
// the lower bound and above the upper bound at the same time. With
// lower <= upper that rule can never hold, so the alarm stays on until
// restart. It exists so deployments that relied on the latching behavior can
// keep it.
type RecoveryMode int

const (
	RecoveryBandExit RecoveryMode = iota
	RecoveryLatched
)

// ParseRecoveryMode maps the config spelling to a RecoveryMode.
func ParseRecoveryMode(s string) (RecoveryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "band-exit":
		return RecoveryBandExit, nil
	case "latched":
		return RecoveryLatched, nil
	default:
		return RecoveryBandExit, fmt.Errorf("unknown recovery mode %q (want 'band-exit' or 'latched')", s)
	}
}

// DetectorConfig holds the tilt/speed thresholds for the alarm decision.
type DetectorConfig struct {
	// ThresholdDeg is the combined tilt angle at which the alarm arms.
	ThresholdDeg float64
	// LowerSpeedMS and UpperSpeedMS bound the armed speed band in m/s.
	// Tilt only trips the alarm while the speed is inside the band.
	LowerSpeedMS float64
	UpperSpeedMS float64

	Recovery RecoveryMode
}

// Detector is the two-state hysteretic out-of-level machine. Entry requires
// tilt over threshold AND speed inside the armed band on the same tick; exit
// requires both conditions to clear, which prevents on/off chatter when the
// vehicle oscillates near the threshold.
//
// Not safe for concurrent use; it is only ever called from the control loop.
type Detector struct {
	cfg   DetectorConfig
	state State
}

func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg, state: StateNormal}
}

// State reports the current alarm state.
func (d *Detector) State() State { return d.state }

// Evaluate consumes one tick's combined tilt angle (degrees) and ground speed
// (m/s) and returns whether the alarm should be asserted. The transition and
// the returned output happen on the same call.
func (d *Detector) Evaluate(combinedDeg, speedMS float64) bool {
	switch d.state {
	case StateNormal:
		inBand := speedMS >= d.cfg.LowerSpeedMS && speedMS <= d.cfg.UpperSpeedMS
		if combinedDeg >= d.cfg.ThresholdDeg && inBand {
			d.state = StateAlarm
			return true
		}
		return false
	case StateAlarm:
		level := combinedDeg < d.cfg.ThresholdDeg
		var speedClear bool
		switch d.cfg.Recovery {
		case RecoveryLatched:
			speedClear = speedMS < d.cfg.LowerSpeedMS && speedMS > d.cfg.UpperSpeedMS
		default:
			speedClear = speedMS < d.cfg.LowerSpeedMS || speedMS > d.cfg.UpperSpeedMS
		}
		if level && speedClear {
			d.state = StateNormal
			return false
		}
		return true
	default:
		return false
	}
}

// CombinedTilt returns the Euclidean norm of the two axis tilt angles in
// degrees. Inputs are assumed normalized to a small range around level; there
// is no wraparound handling.
func CombinedTilt(xDeg, yDeg float64) float64 {
	return math.Hypot(xDeg, yDeg)
}
