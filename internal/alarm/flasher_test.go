package alarm

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeDriver struct {
	mu     sync.Mutex
	duties []int
	closed bool
}

func (d *fakeDriver) SetDuty(duty, max int) error {
	d.mu.Lock()
	d.duties = append(d.duties, duty)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) lastDuty() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.duties) == 0 {
		return -1
	}
	return d.duties[len(d.duties)-1]
}

func newStartedService(t *testing.T, cfg Config) (*Service, *fakeDriver, context.CancelFunc) {
	t.Helper()

	fake := &fakeDriver{}
	oldOpen := openPWMFn
	openPWMFn = func(pin, freqHz int) (pwmDriver, error) { return fake, nil }
	t.Cleanup(func() { openPWMFn = oldOpen })

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(cfg)
	if err := svc.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	return svc, fake, cancel
}

func TestStep_DarkWhileNotRequested(t *testing.T) {
	svc, fake, cancel := newStartedService(t, Config{FlashPeriod: time.Hour})
	defer func() { cancel(); svc.Close() }()

	svc.Set(false, 500)
	svc.step()
	svc.step()

	if svc.IsOn() {
		t.Fatalf("IsOn()=true want false")
	}
	if got := fake.lastDuty(); got != 0 {
		t.Fatalf("last duty=%d want 0", got)
	}
}

func TestStep_AlternatesWhileRequested(t *testing.T) {
	svc, fake, cancel := newStartedService(t, Config{FlashPeriod: time.Hour})
	defer func() { cancel(); svc.Close() }()

	svc.Set(true, 500)

	// First tick after a request lights up, then the phases alternate.
	svc.step()
	if !svc.IsOn() || fake.lastDuty() != 500 {
		t.Fatalf("after step 1: on=%v duty=%d want true/500", svc.IsOn(), fake.lastDuty())
	}
	svc.step()
	if svc.IsOn() || fake.lastDuty() != 0 {
		t.Fatalf("after step 2: on=%v duty=%d want false/0", svc.IsOn(), fake.lastDuty())
	}
	svc.step()
	if !svc.IsOn() || fake.lastDuty() != 500 {
		t.Fatalf("after step 3: on=%v duty=%d want true/500", svc.IsOn(), fake.lastDuty())
	}
}

func TestStep_RequestClearedForcesDark(t *testing.T) {
	svc, fake, cancel := newStartedService(t, Config{FlashPeriod: time.Hour})
	defer func() { cancel(); svc.Close() }()

	svc.Set(true, 300)
	svc.step()
	if !svc.IsOn() {
		t.Fatalf("expected lit")
	}

	svc.Set(false, 300)
	svc.step()
	if svc.IsOn() || fake.lastDuty() != 0 {
		t.Fatalf("on=%v duty=%d want false/0", svc.IsOn(), fake.lastDuty())
	}
}

func TestSet_ClampsDuty(t *testing.T) {
	svc, fake, cancel := newStartedService(t, Config{FlashPeriod: time.Hour, MaxDuty: 1023})
	defer func() { cancel(); svc.Close() }()

	svc.Set(true, 5000)
	svc.step()
	if got := fake.lastDuty(); got != 1023 {
		t.Fatalf("duty=%d want 1023", got)
	}

	svc.Set(true, -5)
	svc.step()
	svc.step()
	if got := fake.lastDuty(); got != 0 {
		t.Fatalf("duty=%d want 0", got)
	}
}

func TestStart_FlashesAtPeriod(t *testing.T) {
	svc, fake, cancel := newStartedService(t, Config{FlashPeriod: 5 * time.Millisecond})
	defer func() { cancel(); svc.Close() }()

	svc.Set(true, 400)

	deadline := time.Now().Add(time.Second)
	for {
		fake.mu.Lock()
		n := len(fake.duties)
		fake.mu.Unlock()
		if n >= 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("flash timer never ran (%d duty writes)", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClose_ForcesDarkAndReleasesDriver(t *testing.T) {
	svc, fake, cancel := newStartedService(t, Config{FlashPeriod: time.Hour})
	defer cancel()

	svc.Set(true, 400)
	svc.step()
	svc.Close()

	if got := fake.lastDuty(); got != 0 {
		t.Fatalf("last duty=%d want 0 after Close", got)
	}
	fake.mu.Lock()
	closed := fake.closed
	fake.mu.Unlock()
	if !closed {
		t.Fatalf("driver not closed")
	}
	if svc.IsOn() {
		t.Fatalf("IsOn()=true after Close")
	}
}

func TestStart_UnknownBackend(t *testing.T) {
	svc := New(Config{Backend: "bogus"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestStart_MockBackend(t *testing.T) {
	svc := New(Config{Backend: "mock", FlashPeriod: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Set(true, 100)
	svc.step()
	if !svc.IsOn() {
		t.Fatalf("expected lit with mock backend")
	}
	cancel()
	svc.Close()
}
