package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"levelalarm/internal/levelcontrol"
)

func testHandler(bcast *Broadcaster) http.Handler {
	status := func() Status {
		return Status{Tick: levelcontrol.Snapshot{CombinedDeg: 5.0, Alarm: true}}
	}
	return Handler(status, bcast, zap.NewNop().Sugar())
}

func TestStatusEndpoint(t *testing.T) {
	srv := httptest.NewServer(testHandler(NewBroadcaster()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tick.CombinedDeg != 5.0 || !got.Tick.Alarm {
		t.Fatalf("status=%+v want combined 5.0 alarm", got.Tick)
	}
}

func TestStatusEndpoint_RejectsPost(t *testing.T) {
	srv := httptest.NewServer(testHandler(NewBroadcaster()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", resp.StatusCode)
	}
}

func TestLiveEndpoint_StreamsSnapshots(t *testing.T) {
	bcast := NewBroadcaster()
	srv := httptest.NewServer(testHandler(bcast))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	// Give the handler a moment to subscribe, then publish a tick.
	time.Sleep(20 * time.Millisecond)
	bcast.Publish(levelcontrol.Snapshot{CombinedDeg: 3.5, SpeedMS: 6, Alarm: false})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	var snap levelcontrol.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.CombinedDeg != 3.5 || snap.SpeedMS != 6 {
		t.Fatalf("snapshot=%+v want combined 3.5 speed 6", snap)
	}
}

func TestBroadcaster_LateSubscriberGetsLast(t *testing.T) {
	bcast := NewBroadcaster()
	bcast.Publish(levelcontrol.Snapshot{Duty: 400})

	id, ch := bcast.Subscribe(2)
	defer bcast.Unsubscribe(id)

	select {
	case snap := <-ch:
		if snap.Duty != 400 {
			t.Fatalf("duty=%d want 400", snap.Duty)
		}
	case <-time.After(time.Second):
		t.Fatalf("no immediate sample for late subscriber")
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	bcast := NewBroadcaster()
	id, _ := bcast.Subscribe(1)
	defer bcast.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bcast.Publish(levelcontrol.Snapshot{Duty: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}
}
