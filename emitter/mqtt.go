package emitter

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/pipeline"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultPublishTimeout = 100 * time.Millisecond
)

type Config struct {
	Broker         string
	ClientID       string
	Topic          string
	QoS            byte
	Retained       bool
	ConnectTimeout time.Duration
	// PublishTimeout bounds how long the applier waits for one publish.
	PublishTimeout time.Duration
}

// publisher is the subset of mqtt.Client the sink publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// MQTTSink publishes every applied render snapshot to one MQTT topic as a
// msgpack payload.
type MQTTSink struct {
	cfg    Config
	log    logrus.FieldLogger
	Client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	published uint64
	dropped   uint64
	errors    uint64
	connected bool
}

func NewMQTTSink(cfg Config, log logrus.FieldLogger) *MQTTSink {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTTSink{cfg: cfg, log: log}
}

// Connect establishes the broker connection; the client reconnects on its own afterwards.
func (s *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfg.Broker))
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.setConnected(true)
		s.log.WithFields(logrus.Fields{
			"broker":    s.cfg.Broker,
			"client_id": s.cfg.ClientID,
			"topic":     s.cfg.Topic,
		}).Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.setConnected(false)
		s.log.WithError(err).WithField("broker", s.cfg.Broker).Warn("mqtt connection lost, will auto-reconnect")
	}

	s.Client = mqtt.NewClient(opts)
	s.pub = s.Client

	s.log.WithField("broker", s.cfg.Broker).Info("connecting to mqtt broker")

	token := s.Client.Connect()
	if err := waitToken(ctx, token, s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	s.setConnected(true)
	return nil
}

// Publish drops the snapshot without error while disconnected.
func (s *MQTTSink) Publish(ctx context.Context, snap pipeline.Snapshot) error {
	if s.pub == nil || !s.isConnected() || !s.pub.IsConnected() {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return nil
	}

	payload, err := Encode(snap)
	if err != nil {
		s.countError()
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	token := s.pub.Publish(s.cfg.Topic, s.cfg.QoS, s.cfg.Retained, payload)
	if err := waitToken(ctx, token, s.cfg.PublishTimeout); err != nil {
		s.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"topic":    s.cfg.Topic,
		"frame_id": snap.FrameID,
		"size":     len(payload),
	}).Debug("snapshot published")
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MQTTSink) Disconnect() {
	if s.Client != nil && s.Client.IsConnected() {
		s.Client.Disconnect(250)
		s.log.Info("mqtt disconnected")
	}
	s.setConnected(false)
}

type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

func (s *MQTTSink) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Connected: s.connected,
		Published: s.published,
		Dropped:   s.dropped,
		Errors:    s.errors,
	}
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}
