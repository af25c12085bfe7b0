// Package notify announces ingested photos to other services over MQTT.
// Payloads carry ids and counts only, never descriptors or image data.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kozaktomas/selfie-finder/internal/config"
	"github.com/kozaktomas/selfie-finder/internal/logging"
)

// PhotoIngested is published after a photo's encodings are stored.
type PhotoIngested struct {
	EventID         string `json:"event_id"`
	PhotoID         string `json:"photo_id"`
	FacesDetected   int    `json:"faces_detected"`
	EncodingsStored int    `json:"encodings_stored"`
}

// Publisher delivers notifications.
type Publisher interface {
	PhotoIngested(ctx context.Context, msg PhotoIngested) error
	Close()
}

// Nop drops every notification.
type Nop struct{}

func (Nop) PhotoIngested(context.Context, PhotoIngested) error { return nil }
func (Nop) Close()                                             {}

// OrNop returns p, or Nop when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return Nop{}
	}
	return p
}

// client is the part of mqtt.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes notifications to a broker topic.
type MQTT struct {
	client client
	topic  string
	log    *slog.Logger
}

// Connect dials the broker in cfg. It returns Nop when no broker is configured.
func Connect(cfg config.MQTTConfig, log *slog.Logger) (Publisher, error) {
	if cfg.Broker == "" {
		return Nop{}, nil
	}
	log = logging.OrNoop(log)

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		log.Info("connected to MQTT broker", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("lost MQTT connection", "broker", cfg.Broker, "error", err)
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return newMQTT(c, cfg.Topic, log), nil
}

func newMQTT(c client, topic string, log *slog.Logger) *MQTT {
	return &MQTT{client: c, topic: topic, log: logging.OrNoop(log)}
}

// PhotoIngested publishes msg with QoS 1 and waits for the broker or ctx.
func (m *MQTT) PhotoIngested(ctx context.Context, msg PhotoIngested) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	token := m.client.Publish(m.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	m.log.Debug("published ingest notification", "topic", m.topic, "photo_id", msg.PhotoID)
	return nil
}

// Close disconnects, giving in-flight messages a moment to drain.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*MQTT)(nil)
)
