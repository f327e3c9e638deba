//go:build linux && (arm || arm64)

package alarm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openGPIO returns a pwmDriver-compatible wrapper which drives the given BCM
// GPIO as a digital output using the Linux GPIO character device (libgpiod).
//
// This is the fallback for boards without a usable hardware PWM channel.
// It maps any duty > 0 to ON and duty == 0 to OFF, so brightness modulation
// is lost but the flash cadence survives.
func openGPIO(pin int) (pwmDriver, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("alarm: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO18", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	// Try likely chips first (Pi 5 kernel variants can expose header GPIOs on
	// gpiochip0 and sometimes additional chips exist).
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("levelalarm-led"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodGPIO{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("alarm: gpio line %q not found (or busy)", lineName)
}

type gpiodGPIO struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodGPIO) SetDuty(duty, max int) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("alarm: gpio driver not initialized")
	}
	v := 0
	if duty > 0 {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpiodGPIO) Close() error {
	if g == nil {
		return nil
	}
	if g.line != nil {
		_ = g.line.SetValue(0)
		_ = g.line.Close()
	}
	if g.chip != nil {
		return g.chip.Close()
	}
	return nil
}
