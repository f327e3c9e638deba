package speed

import (
	"context"
	"io"
	"math"
	"strings"
	"testing"
	"time"
)

const (
	// 22.4 knots over ground, valid fix.
	rmcValid = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	// Same sentence with a void fix.
	rmcVoid = "$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D"
	// Valid fix at standstill.
	rmcZero = "$GPRMC,123519,A,4807.038,N,01131.000,E,000.0,084.4,230394,003.1,W*6E"
)

func approxEq(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestReadFrom_RMCUpdatesCell(t *testing.T) {
	cell := &Cell{}
	svc := New(Config{Device: "/dev/null"}, cell)

	svc.readFrom(context.Background(), strings.NewReader(rmcValid+"\r\n"))

	want := 22.4 * knotsToMS
	if got := cell.Load(); !approxEq(got, want) {
		t.Fatalf("cell=%v want %v", got, want)
	}
	snap := svc.Snapshot()
	if !snap.Valid || !approxEq(snap.SpeedMS, want) {
		t.Fatalf("snapshot=%+v want valid speed %v", snap, want)
	}
}

func TestReadFrom_VoidFixHoldsLastSpeed(t *testing.T) {
	cell := &Cell{}
	svc := New(Config{Device: "/dev/null"}, cell)

	lines := rmcValid + "\r\n" + rmcVoid + "\r\n"
	svc.readFrom(context.Background(), strings.NewReader(lines))

	want := 22.4 * knotsToMS
	if got := cell.Load(); !approxEq(got, want) {
		t.Fatalf("cell=%v want %v (void fix must not overwrite)", got, want)
	}
}

func TestReadFrom_GarbageIsSkipped(t *testing.T) {
	cell := &Cell{}
	svc := New(Config{Device: "/dev/null"}, cell)

	lines := strings.Join([]string{
		"",
		"not nmea at all",
		"$GPRMC,garbage*00",
		rmcZero,
		rmcValid,
	}, "\r\n") + "\r\n"
	svc.readFrom(context.Background(), strings.NewReader(lines))

	want := 22.4 * knotsToMS
	if got := cell.Load(); !approxEq(got, want) {
		t.Fatalf("cell=%v want %v", got, want)
	}
}

func TestReadFrom_ZeroSpeed(t *testing.T) {
	cell := &Cell{}
	cell.Store(3)
	svc := New(Config{Device: "/dev/null"}, cell)

	svc.readFrom(context.Background(), strings.NewReader(rmcZero+"\r\n"))
	if got := cell.Load(); got != 0 {
		t.Fatalf("cell=%v want 0", got)
	}
}

func TestService_StartReadsFromPort(t *testing.T) {
	pr, pw := io.Pipe()
	oldOpen := openPortFn
	openPortFn = func(device string, baud int) (io.ReadCloser, error) { return pr, nil }
	t.Cleanup(func() { openPortFn = oldOpen })

	cell := &Cell{}
	svc := New(Config{Device: "/dev/gps0"}, cell)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		_, _ = pw.Write([]byte(rmcValid + "\r\n"))
	}()

	want := 22.4 * knotsToMS
	deadline := time.Now().Add(time.Second)
	for !approxEq(cell.Load(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("cell=%v want %v", cell.Load(), want)
		}
		time.Sleep(time.Millisecond)
	}

	if err := svc.Close(); err != nil && err != io.ErrClosedPipe {
		t.Fatalf("Close: %v", err)
	}
}

func TestService_StartRequiresDevice(t *testing.T) {
	svc := New(Config{}, &Cell{})
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected error without device")
	}
}

func TestCell_StoreLoad(t *testing.T) {
	var c Cell
	if got := c.Load(); got != 0 {
		t.Fatalf("zero cell=%v want 0", got)
	}
	for _, v := range []float64{0, 1.5, -2.25, 12.34} {
		c.Store(v)
		if got := c.SpeedMS(); got != v {
			t.Fatalf("SpeedMS()=%v want %v", got, v)
		}
	}
}
