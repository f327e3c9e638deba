package alarm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var openPWMFn = openPWM
var openGPIOFn = openGPIO

// phase is the flasher's own little state machine. It starts uninitialized,
// then alternates dark/lit on each timer tick while the alarm is requested.
type phase int

const (
	phaseUninitialized phase = iota
	phaseDark
	phaseLit
)

type Config struct {
	// Backend selects the output driver: "pwm" (hardware PWM via sysfs),
	// "gpio" (digital on/off via the GPIO character device), or "mock"
	// (no output, for development off hardware). Default "pwm".
	Backend string

	// Pin is BCM GPIO numbering.
	Pin int
	// PWMFrequencyHz is the PWM carrier frequency for the pwm backend.
	PWMFrequencyHz int
	// FlashPeriod is the on/off alternation period while the alarm is
	// requested.
	FlashPeriod time.Duration
	// MaxDuty is the full-scale duty count (10-bit resolution).
	MaxDuty int
}

type Snapshot struct {
	Backend string `json:"backend"`
	Pin     int    `json:"pin"`

	Requested bool `json:"requested"`
	Lit       bool `json:"lit"`
	Duty      int  `json:"duty"`

	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Service drives the alarm LED. The control loop is the sole writer of the
// requested flag and the duty; the flash timer goroutine is the sole writer
// of the lit flag. Each side only reads the other's values, so plain atomics
// are enough.
type Service struct {
	cfg Config

	requested atomic.Bool
	duty      atomic.Int64
	lit       atomic.Bool

	// phase is only touched by the flash goroutine (and tests calling step
	// directly).
	phase phase

	drvMu sync.Mutex
	drv   pwmDriver

	mu   sync.RWMutex
	snap Snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config) *Service {
	if cfg.Backend == "" {
		cfg.Backend = "pwm"
	}
	if cfg.Pin == 0 {
		cfg.Pin = 18
	}
	if cfg.PWMFrequencyHz <= 0 {
		cfg.PWMFrequencyHz = 5000
	}
	if cfg.FlashPeriod <= 0 {
		cfg.FlashPeriod = 2 * time.Second
	}
	if cfg.MaxDuty <= 0 {
		cfg.MaxDuty = 1023
	}
	s := &Service{cfg: cfg, stopCh: make(chan struct{})}
	s.snap = Snapshot{Backend: cfg.Backend, Pin: cfg.Pin}
	return s
}

// Set hands the flasher the requested on/off signal and the duty to flash at.
// Called by the control loop; takes effect on the next flash timer tick.
func (s *Service) Set(requested bool, duty int) {
	if s == nil {
		return
	}
	if duty < 0 {
		duty = 0
	}
	if duty > s.cfg.MaxDuty {
		duty = s.cfg.MaxDuty
	}
	s.requested.Store(requested)
	s.duty.Store(int64(duty))
}

// IsOn reports whether the LED is lit right now. The control loop reads this
// to avoid sampling ambient light while the LED is shining at the photocell.
func (s *Service) IsOn() bool {
	if s == nil {
		return false
	}
	return s.lit.Load()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("alarm: service is nil")
	}

	var (
		drv pwmDriver
		err error
	)
	switch s.cfg.Backend {
	case "pwm":
		drv, err = openPWMFn(s.cfg.Pin, s.cfg.PWMFrequencyHz)
	case "gpio":
		drv, err = openGPIOFn(s.cfg.Pin)
	case "mock":
		drv = noopPWM{}
	default:
		err = fmt.Errorf("alarm: unknown backend %q", s.cfg.Backend)
	}
	if err != nil {
		s.setErr(err.Error())
		return err
	}
	s.drvMu.Lock()
	s.drv = drv
	s.drvMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return nil
}

// Close stops the flash timer, forces the LED dark, and releases the driver.
// The timer is only ever disabled here, on the exit path.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()

	s.drvMu.Lock()
	drv := s.drv
	s.drv = nil
	s.drvMu.Unlock()
	if drv != nil {
		_ = drv.SetDuty(0, s.cfg.MaxDuty)
		_ = drv.Close()
	}
	s.lit.Store(false)
}

func (s *Service) runLoop(ctx context.Context) {
	t := time.NewTicker(s.cfg.FlashPeriod)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			s.step()
		}
	}
}

// step runs one flash timer tick: force dark while not requested, otherwise
// alternate between dark and lit at the configured duty.
func (s *Service) step() {
	if !s.requested.Load() {
		s.phase = phaseDark
		s.lit.Store(false)
		s.applyDuty(0)
		return
	}

	switch s.phase {
	case phaseLit:
		s.phase = phaseDark
		s.lit.Store(false)
		s.applyDuty(0)
	default:
		// Uninitialized or dark: light up first so a fresh alarm is
		// visible within one period.
		s.phase = phaseLit
		s.lit.Store(true)
		s.applyDuty(int(s.duty.Load()))
	}
}

func (s *Service) applyDuty(d int) {
	s.drvMu.Lock()
	drv := s.drv
	s.drvMu.Unlock()
	if drv == nil {
		return
	}
	if err := drv.SetDuty(d, s.cfg.MaxDuty); err != nil {
		s.setErr(fmt.Sprintf("alarm: set duty failed: %v", err))
		return
	}
	s.setState(func(sn *Snapshot) {
		sn.Requested = s.requested.Load()
		sn.Lit = s.lit.Load()
		sn.Duty = d
		sn.LastError = ""
	})
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.LastUpdateAt = time.Now().UTC()
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}
