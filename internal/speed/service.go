package speed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"go.bug.st/serial"
)

const knotsToMS = 0.514444

var openPortFn = openPort

func openPort(device string, baud int) (io.ReadCloser, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("speed: open %s: %w", device, err)
	}
	return port, nil
}

// Config controls the GPS speed reader.
//
// Consumer-grade GPS pucks typically appear as /dev/ttyACM* or /dev/serial0
// and output NMEA at 9600 baud by default. Only RMC is consumed; that carries
// the ground speed this system needs.
type Config struct {
	Device string
	Baud   int

	// ReconnectDelay is the pause before reopening the port after an error.
	ReconnectDelay time.Duration
}

type Snapshot struct {
	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`

	Valid   bool    `json:"valid"`
	SpeedMS float64 `json:"speed_ms"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Service reads NMEA from the serial GPS and writes each RMC ground speed
// into the Cell.
type Service struct {
	cfg  Config
	cell *Cell

	last atomic.Value // Snapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config, cell *Cell) *Service {
	if cfg.Baud <= 0 {
		cfg.Baud = 9600
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	s := &Service{cfg: cfg, cell: cell}
	s.last.Store(Snapshot{Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return s.last.Load().(Snapshot)
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("speed: service is nil")
	}
	if s.cfg.Device == "" {
		return fmt.Errorf("speed: device is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(runCtx)
	}()
	return nil
}

// Close tears down the read loop and the port. Idempotent; port close errors
// surface in the returned error but the loop is stopped regardless.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if closer != nil {
		err = closer.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Service) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		port, err := openPortFn(s.cfg.Device, s.cfg.Baud)
		if err != nil {
			s.setErr(err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ReconnectDelay):
			}
			continue
		}

		s.mu.Lock()
		s.closer = port
		s.mu.Unlock()

		s.readFrom(ctx, port)

		s.mu.Lock()
		if s.closer == port {
			s.closer = nil
		}
		s.mu.Unlock()
		_ = port.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// readFrom consumes NMEA lines until the reader fails or the context ends.
// Garbage and partial sentences are normal on a cold GPS; they are skipped,
// not fatal.
func (s *Service) readFrom(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		sent, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		if sent.DataType() != nmea.TypeRMC {
			continue
		}
		rmc := sent.(nmea.RMC)
		if rmc.Validity != nmea.ValidRMC {
			// Void fix: hold the last good speed.
			continue
		}

		ms := rmc.Speed * knotsToMS
		s.cell.Store(ms)
		s.last.Store(Snapshot{
			Device:     s.cfg.Device,
			Baud:       s.cfg.Baud,
			Valid:      true,
			SpeedMS:    ms,
			LastFixUTC: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		s.setErr(err.Error())
	}
}

func (s *Service) setErr(msg string) {
	snap := s.Snapshot()
	snap.Valid = false
	snap.LastError = msg
	s.last.Store(snap)
}
