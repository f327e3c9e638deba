package alarm

// pwmDriver is the minimal interface the flasher needs from a PWM/GPIO
// backend. Duty is expressed in counts against the given full-scale value.
//
// Close should be best-effort and leave the LED dark.
type pwmDriver interface {
	SetDuty(duty, max int) error
	Close() error
}

// noopPWM is the "mock" backend for development off hardware.
type noopPWM struct{}

func (noopPWM) SetDuty(duty, max int) error { return nil }
func (noopPWM) Close() error                { return nil }
