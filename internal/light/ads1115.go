package light

import (
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

type ads1115Sensor struct {
	bus i2c.BusCloser
	pin analog.PinADC
}

// NewADS1115Sensor opens the photoresistor divider on channel 0 of an ADS1115
// ADC. bus names the I2C bus ("" for the first available one).
func NewADS1115Sensor(bus string) (Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("light: open i2c bus %q: %w", bus, err)
	}

	adc, err := ads1x15.NewADS1115(b, &ads1x15.DefaultOpts)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("light: ads1115: %w", err)
	}

	// The divider tops out well under 3.3V; one reading per request is all
	// the control loop needs.
	pin, err := adc.PinForChannel(ads1x15.Channel0, 3300*physic.MilliVolt, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("light: adc channel: %w", err)
	}

	return &ads1115Sensor{bus: b, pin: pin}, nil
}

// Read samples the divider and returns the potential in millivolts.
func (s *ads1115Sensor) Read() (int, error) {
	sample, err := s.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("light: adc read: %w", err)
	}
	return int(sample.V / physic.MilliVolt), nil
}

func (s *ads1115Sensor) Close() error {
	if s.pin != nil {
		_ = s.pin.Halt()
	}
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}
