// Package telemetry publishes tick snapshots to an MQTT broker.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"levelalarm/internal/levelcontrol"
)

type Config struct {
	Broker   string
	ClientID string
	Topic    string
}

// Publisher forwards each tick snapshot as JSON to the configured topic.
// Publish failures are logged, never propagated to the control loop.
type Publisher struct {
	cfg    Config
	log    *zap.SugaredLogger
	client mqtt.Client
}

func New(cfg Config, log *zap.SugaredLogger) *Publisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "levelalarm"
	}
	if cfg.Topic == "" {
		cfg.Topic = "levelalarm/tick"
	}
	return &Publisher{cfg: cfg, log: log}
}

// Connect dials the broker. Called once at startup; a broker that is down is
// an initialization failure like any other collaborator.
func (p *Publisher) Connect() error {
	if p.cfg.Broker == "" {
		return fmt.Errorf("telemetry: broker is required")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("telemetry: connect %s: %w", p.cfg.Broker, token.Error())
	}
	p.client = client
	p.log.Infow("telemetry connected", "broker", p.cfg.Broker, "topic", p.cfg.Topic)
	return nil
}

// Publish implements levelcontrol.Sink. QoS 0, fire and forget; the loop must
// never wait on the broker.
func (p *Publisher) Publish(snap levelcontrol.Snapshot) {
	if p == nil || p.client == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		p.log.Warnw("telemetry marshal failed", "err", err)
		return
	}
	p.client.Publish(p.cfg.Topic, 0, false, payload)
}

func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.client.Disconnect(250)
	return nil
}
