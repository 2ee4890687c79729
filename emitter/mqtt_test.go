package emitter

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/models"
	"github.com/Tutortoise/ar-wheel-placement/pipeline"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error { return t.err }

type fakePublisher struct {
	connected bool
	token     mqtt.Token
	topic     string
	qos       byte
	payload   []byte
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topic, p.qos = topic, qos
	p.payload = payload.([]byte)
	return p.token
}

func (p *fakePublisher) IsConnected() bool { return p.connected }

func testSink(pub *fakePublisher) *MQTTSink {
	log := logrus.New()
	log.Out = io.Discard
	s := NewMQTTSink(Config{Topic: "ar/markers/test", QoS: 1, PublishTimeout: 20 * time.Millisecond}, log)
	s.pub = pub
	s.connected = pub.connected
	return s
}

func snapshot() pipeline.Snapshot {
	return pipeline.Snapshot{
		FrameID: "frame-1",
		At:      time.UnixMilli(1700000000123),
		Commands: []models.RenderCommand{{
			MarkerID:    "m1",
			Position:    [3]float64{1, 0, 2},
			Orientation: [4]float64{0, 0, 0, 1},
			Scale:       [3]float64{1, 1, 1},
			Color:       [4]float64{0, 0, 1, 1},
			Visible:     true,
		}},
	}
}

func TestMQTTSinkPublish(t *testing.T) {
	pub := &fakePublisher{connected: true, token: doneToken(nil)}
	s := testSink(pub)

	if err := s.Publish(context.Background(), snapshot()); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if pub.topic != "ar/markers/test" || pub.qos != 1 {
		t.Errorf("published to %s qos %d", pub.topic, pub.qos)
	}

	got, err := Decode(pub.payload)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got.FrameID != "frame-1" || got.Timestamp != 1700000000123 {
		t.Errorf("payload header = %s @ %d", got.FrameID, got.Timestamp)
	}
	if len(got.Markers) != 1 || got.Markers[0] != snapshot().Commands[0] {
		t.Errorf("payload markers = %+v", got.Markers)
	}
	if st := s.Stats(); st.Published != 1 || st.Errors != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestMQTTSinkFailures(t *testing.T) {
	tests := []struct {
		name        string
		pub         *fakePublisher
		wantErr     bool
		wantDropped uint64
		wantErrors  uint64
	}{
		{
			name:        "disconnected drops silently",
			pub:         &fakePublisher{connected: false, token: doneToken(nil)},
			wantDropped: 1,
		},
		{
			name:       "token error",
			pub:        &fakePublisher{connected: true, token: doneToken(errors.New("broker refused"))},
			wantErr:    true,
			wantErrors: 1,
		},
		{
			name:       "publish timeout",
			pub:        &fakePublisher{connected: true, token: &fakeToken{done: make(chan struct{})}},
			wantErr:    true,
			wantErrors: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSink(tt.pub)
			err := s.Publish(context.Background(), snapshot())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Publish() error = %v, wantErr %v", err, tt.wantErr)
			}
			st := s.Stats()
			if st.Dropped != tt.wantDropped || st.Errors != tt.wantErrors || st.Published != 0 {
				t.Errorf("stats = %+v", st)
			}
		})
	}
}

func TestMQTTSinkWithoutConnect(t *testing.T) {
	s := NewMQTTSink(Config{Topic: "t"}, nil)
	if err := s.Publish(context.Background(), snapshot()); err != nil {
		t.Fatalf("Publish() before Connect = %v", err)
	}
	if s.Stats().Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Stats().Dropped)
	}
	s.Disconnect()
}
