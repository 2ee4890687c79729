package pipeline

import (
	"context"
	"errors"
	"testing"
)

func startRunner(t *testing.T, infer Inference, sinks ...Sink) *Runner {
	t.Helper()
	r := NewRunner(newTestProcessor(DefaultConfig(), infer), quietLogger(), sinks...)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { r.Stop() })
	return r
}

func TestRunnerDropsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	infer := InferenceFunc(func(ctx context.Context, in Tensor) (Tensor, error) {
		started <- struct{}{}
		<-release
		return twoWheels(), nil
	})
	sink := &recordingSink{}
	r := startRunner(t, infer, sink)

	if !r.Submit(Tensor{}, tracking) {
		t.Fatal("first frame refused")
	}
	<-started
	for i := 0; i < 5; i++ {
		if r.Submit(Tensor{}, tracking) {
			t.Fatal("frame accepted while another was in flight")
		}
	}
	if s := r.Stats(); s.Dropped != 5 || s.Submitted != 6 {
		t.Errorf("stats = %+v, want 5 dropped of 6", s)
	}

	close(release)
	waitFor(t, "first frame to apply", func() bool { return r.Stats().Applied == 1 })
	waitFor(t, "runner to accept again", func() bool { return r.Submit(Tensor{}, tracking) })
	waitFor(t, "second frame to apply", func() bool { return r.Stats().Applied == 2 })

	snaps := sink.all()
	if len(snaps) != 2 || len(snaps[1].Commands) != 2 {
		t.Fatalf("sink got %d snapshots", len(snaps))
	}
	if latest := r.Latest(); latest.FrameID != snaps[1].FrameID {
		t.Errorf("Latest() = %s, want %s", latest.FrameID, snaps[1].FrameID)
	}
}

func TestRunnerSkipsNotTracking(t *testing.T) {
	r := startRunner(t, staticInference(twoWheels()))
	if r.Submit(Tensor{}, notTracking) {
		t.Fatal("frame without tracking accepted")
	}
	s := r.Stats()
	if s.SkippedNotTracking != 1 || s.Dropped != 0 || s.Processed != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRunnerStopDiscardsInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	infer := InferenceFunc(func(ctx context.Context, in Tensor) (Tensor, error) {
		started <- struct{}{}
		<-ctx.Done()
		return Tensor{}, ctx.Err()
	})
	sink := &recordingSink{}
	r := NewRunner(newTestProcessor(DefaultConfig(), infer), quietLogger(), sink)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if !r.Submit(Tensor{}, tracking) {
		t.Fatal("frame refused")
	}
	<-started

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}

	s := r.Stats()
	if s.Applied != 0 || s.Discarded != 1 {
		t.Errorf("stats = %+v, want nothing applied and one discarded", s)
	}
	if len(sink.all()) != 0 {
		t.Error("sink received a snapshot during teardown")
	}
	if r.Submit(Tensor{}, tracking) {
		t.Error("stopped runner accepted a frame")
	}
	if err := r.Clear(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Clear() after Stop = %v, want ErrStopped", err)
	}
}

func TestRunnerClear(t *testing.T) {
	r := startRunner(t, staticInference(twoWheels()))
	if !r.Submit(Tensor{}, tracking) {
		t.Fatal("frame refused")
	}
	waitFor(t, "frame to apply", func() bool { return len(r.Latest().Commands) == 2 })

	if err := r.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if n := len(r.Latest().Commands); n != 0 {
		t.Errorf("Latest() has %d commands after Clear", n)
	}
	if r.Stats().Markers != 0 {
		t.Errorf("Markers = %d after Clear", r.Stats().Markers)
	}
}

func TestRunnerLifecycle(t *testing.T) {
	r := NewRunner(newTestProcessor(DefaultConfig(), staticInference(twoWheels())), quietLogger())
	if r.Submit(Tensor{}, tracking) {
		t.Error("runner accepted a frame before Start")
	}
	if err := r.Clear(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Clear() before Start = %v, want ErrNotStarted", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}
	r.Stop()
}
