//go:build !linux || (!arm && !arm64)

package alarm

import "fmt"

// Stub implementations for non-Linux and/or non-ARM platforms.

func openPWM(pin, freqHz int) (pwmDriver, error) {
	return nil, fmt.Errorf("alarm: pwm unsupported on this platform")
}

func openGPIO(pin int) (pwmDriver, error) {
	return nil, fmt.Errorf("alarm: gpio unsupported on this platform")
}
