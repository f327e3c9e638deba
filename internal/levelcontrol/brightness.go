package levelcontrol

// BrightnessConfig maps a calibrated light sensor reading to an LED duty
// level. The sensor delivers millivolt-scaled readings, nominally 150..2450.
type BrightnessConfig struct {
	// ZeroOffset is subtracted from the raw reading before scaling.
	ZeroOffset int
	// Span divides the offset reading down to a 0..1 ratio.
	Span float64
	// Floor is the minimum on-ratio. The LED must stay visible even in
	// full daylight, so the duty never maps below this fraction.
	Floor float64
	// MaxDuty is the driver's full-scale duty count (1023 for 10-bit PWM).
	MaxDuty int
}

// mapBrightness converts a light reading into a duty count. The high clamp
// runs before the floor, so the floor only binds on the low side.
func mapBrightness(cfg BrightnessConfig, reading int) int {
	t := float64(reading-cfg.ZeroOffset) / cfg.Span
	if t > 1 {
		t = 1
	}
	if t < cfg.Floor {
		t = cfg.Floor
	}
	return int(t * float64(cfg.MaxDuty))
}
