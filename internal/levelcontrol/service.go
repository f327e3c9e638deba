package levelcontrol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OrientationSource delivers one tilt sample per call, in degrees per axis.
type OrientationSource interface {
	Read() (xDeg, yDeg float64, err error)
}

// SpeedReader reports the most recent ground speed in m/s. The value may be
// stale by up to one GPS update interval; that is acceptable for the alarm
// decision.
type SpeedReader interface {
	SpeedMS() float64
}

// LightSensor delivers a calibrated ambient light reading, nominally 150..2450.
type LightSensor interface {
	Read() (int, error)
}

// AlarmDriver is the flashing LED output. Set hands over the requested on/off
// signal and the duty to flash at; IsOn reports whether the LED is lit right
// now, which the loop uses to honor the no-feedback rule.
type AlarmDriver interface {
	Set(requested bool, duty int)
	IsOn() bool
}

// Sink receives a copy of every tick snapshot. Publish must not block the
// control loop for long.
type Sink interface {
	Publish(Snapshot)
}

// Config controls the level watch loop.
type Config struct {
	Detector   DetectorConfig
	Brightness BrightnessConfig

	// TickInterval is the loop cadence. Keep it away from multiples of the
	// alarm flash period, or the light sensor will tend to sample while
	// the LED is lit and the duty will never update.
	TickInterval time.Duration
}

// Snapshot is the per-tick observable state of the loop.
type Snapshot struct {
	TiltXDeg    float64 `json:"tilt_x_deg"`
	TiltYDeg    float64 `json:"tilt_y_deg"`
	CombinedDeg float64 `json:"combined_deg"`
	SpeedMS     float64 `json:"speed_ms"`
	Duty        int     `json:"duty"`
	Alarm       bool    `json:"alarm"`

	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Service runs the level watch loop: sample light (while the LED is dark),
// sample orientation, read speed, evaluate, drive the alarm.
type Service struct {
	cfg Config
	log *zap.SugaredLogger

	orient OrientationSource
	speed  SpeedReader
	light  LightSensor
	alarm  AlarmDriver
	sinks  []Sink

	det  *Detector
	duty int

	mu   sync.RWMutex
	snap Snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, log *zap.SugaredLogger, orient OrientationSource, speed SpeedReader, light LightSensor, alarm AlarmDriver, sinks ...Sink) *Service {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 600 * time.Millisecond
	}
	if cfg.Brightness.MaxDuty <= 0 {
		cfg.Brightness.MaxDuty = 1023
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		orient: orient,
		speed:  speed,
		light:  light,
		alarm:  alarm,
		sinks:  sinks,
		det:    NewDetector(cfg.Detector),
		// Start at the floor duty so the first alarm is visible even if
		// the light sensor has not been read yet.
		duty:   int(cfg.Brightness.Floor * float64(cfg.Brightness.MaxDuty)),
		stopCh: make(chan struct{}),
	}
}

// Snapshot returns the most recent tick state.
func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start launches the loop. It returns immediately; the loop runs until the
// context is canceled or Close is called.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("levelcontrol: service is nil")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx)
	}()
	return nil
}

// Close stops the loop and forces the alarm output off.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.alarm.Set(false, 0)
}

func (s *Service) runLoop(ctx context.Context) {
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			s.tick()
		}
	}
}

// tick runs one control iteration. Read failures hold the previous outputs
// for the tick rather than propagating into the alarm decision.
func (s *Service) tick() {
	var tickErr string

	// Only sample ambient light while the LED is dark; a lit LED feeds
	// straight back into the photocell.
	if !s.alarm.IsOn() {
		if reading, err := s.light.Read(); err != nil {
			tickErr = fmt.Sprintf("light read: %v", err)
			s.log.Warnw("light read failed, holding duty", "err", err)
		} else {
			s.duty = mapBrightness(s.cfg.Brightness, reading)
		}
	}

	x, y, err := s.orient.Read()
	if err != nil {
		tickErr = fmt.Sprintf("orientation read: %v", err)
		s.log.Warnw("orientation read failed, holding alarm state", "err", err)
		s.setSnapshot(func(sn *Snapshot) {
			sn.LastError = tickErr
		})
		return
	}

	combined := CombinedTilt(x, y)
	speed := s.speed.SpeedMS()
	requested := s.det.Evaluate(combined, speed)
	s.alarm.Set(requested, s.duty)

	s.log.Infow("tick",
		"tilt_x_deg", x,
		"tilt_y_deg", y,
		"combined_deg", combined,
		"speed_ms", speed,
		"duty", s.duty,
		"alarm", requested,
	)

	snap := Snapshot{
		TiltXDeg:    x,
		TiltYDeg:    y,
		CombinedDeg: combined,
		SpeedMS:     speed,
		Duty:        s.duty,
		Alarm:       requested,
		LastError:   tickErr,
	}
	s.setSnapshot(func(sn *Snapshot) { *sn = snap })

	snap.LastUpdateAt = time.Now().UTC()
	for _, sink := range s.sinks {
		sink.Publish(snap)
	}
}

func (s *Service) setSnapshot(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}
