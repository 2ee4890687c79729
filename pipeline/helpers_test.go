package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/arsession"
	"github.com/Tutortoise/ar-wheel-placement/detections"
	"github.com/Tutortoise/ar-wheel-placement/pose"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// fakeFrame hits a floor at y=0, one meter per 100 pixels.
type fakeFrame struct {
	state arsession.TrackingState
}

func (f fakeFrame) TrackingState() arsession.TrackingState { return f.state }

func (f fakeFrame) RayCast(x, y float64) (r3.Vector, bool) {
	if f.state != arsession.Tracking {
		return r3.Vector{}, false
	}
	return r3.Vector{X: x / 100, Z: y / 100}, true
}

var (
	tracking    = fakeFrame{state: arsession.Tracking}
	notTracking = fakeFrame{state: arsession.NotTracking}
)

// twoWheels is a [1, 6, 2] channel-major output with two well separated
// boxes scoring 0.81 and 0.9025.
func twoWheels() Tensor {
	return Tensor{
		Data: []float32{
			100, 400,
			100, 400,
			20, 20,
			20, 20,
			0.9, 0.95,
			0.9, 0.95,
		},
		Shape: []int64{1, 6, 2},
	}
}

func staticInference(out Tensor) Inference {
	return InferenceFunc(func(ctx context.Context, _ Tensor) (Tensor, error) {
		return out, nil
	})
}

func newTestProcessor(cfg Config, infer Inference) *Processor {
	log := quietLogger()
	return NewProcessor(
		cfg,
		infer,
		detections.NewDecoder(detections.DefaultConfig()),
		pose.NewResolver(pose.DefaultConfig(), log),
		log,
	)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (s *recordingSink) Publish(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) all() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snaps...)
}
