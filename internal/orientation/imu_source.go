package orientation

import (
	"fmt"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

type imuSource struct {
	imu *mpu9250.MPU9250
}

// NewIMUSource initializes an MPU-9250 over SPI and returns a Source that
// derives roll/pitch from the accelerometer. spiDev is the spidev path
// (e.g. /dev/spidev0.0) and csPin names the chip-select GPIO.
func NewIMUSource(spiDev, csPin string) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("imu CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("imu SPI transport: %w", err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("imu new device: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("imu init: %w", err)
	}

	if err := imu.Calibrate(); err != nil {
		return nil, fmt.Errorf("imu calibrate: %w", err)
	}

	return &imuSource{imu: imu}, nil
}

// Read samples the accelerometer and returns the tilt estimate in degrees.
// An accelerometer-only estimate is noisy under acceleration, but the
// detector's hysteresis and the armed speed band absorb that.
func (s *imuSource) Read() (float64, float64, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return 0, 0, fmt.Errorf("imu acc X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return 0, 0, fmt.Errorf("imu acc Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return 0, 0, fmt.Errorf("imu acc Z: %w", err)
	}

	tilt := TiltFromAccel(float64(ax), float64(ay), float64(az))
	return tilt.XDeg, tilt.YDeg, nil
}
