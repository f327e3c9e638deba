package telemetry

import (
	"testing"

	"go.uber.org/zap"

	"levelalarm/internal/levelcontrol"
)

func TestNew_Defaults(t *testing.T) {
	p := New(Config{Broker: "tcp://localhost:1883"}, zap.NewNop().Sugar())
	if p.cfg.ClientID != "levelalarm" {
		t.Fatalf("client_id=%q want levelalarm", p.cfg.ClientID)
	}
	if p.cfg.Topic != "levelalarm/tick" {
		t.Fatalf("topic=%q want levelalarm/tick", p.cfg.Topic)
	}
}

func TestConnect_RequiresBroker(t *testing.T) {
	p := New(Config{}, zap.NewNop().Sugar())
	if err := p.Connect(); err == nil {
		t.Fatalf("expected error without broker")
	}
}

func TestPublish_BeforeConnectIsNoop(t *testing.T) {
	p := New(Config{Broker: "tcp://localhost:1883"}, zap.NewNop().Sugar())
	// Must not panic or block when the client never connected.
	p.Publish(levelcontrol.Snapshot{Alarm: true})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
