package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/arsession"
)

type job struct {
	input Tensor
	frame arsession.Frame
}

type control struct {
	fn   func() Snapshot
	done chan struct{}
}

// Runner drives a Processor from a frame source with at most one frame in
// flight. A frame submitted while the previous one has not been applied yet
// is dropped, never queued.
//
// Goroutines:
//   - worker: inference, decoding and pose resolution
//   - applier: the only goroutine that touches the placement cache; it
//     applies evaluations, runs Clear and publishes to sinks
type Runner struct {
	proc  *Processor
	sinks []Sink
	log   logrus.FieldLogger

	// inflight is a single token held from Submit until the frame is applied.
	inflight chan struct{}
	jobs     chan job
	results  chan Evaluation
	controls chan control

	latestMu sync.RWMutex
	latest   Snapshot

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewRunner(proc *Processor, log logrus.FieldLogger, sinks ...Sink) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		proc:     proc,
		sinks:    sinks,
		log:      log,
		inflight: make(chan struct{}, 1),
		jobs:     make(chan job, 1),
		results:  make(chan Evaluation, 1),
		controls: make(chan control),
	}
}

// Start spawns the worker and applier goroutines and returns immediately.
// A Runner can be started once.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("runner already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.started = true

	r.wg.Add(2)
	go r.workLoop()
	go r.applyLoop()
	return nil
}

// Stop abandons any in-flight frame and waits for both goroutines to exit.
// An evaluation that completes during teardown is discarded without touching
// the cache. Stop is idempotent.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.stopped = true
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	select {
	case <-r.results:
		r.proc.stats.discarded.Add(1)
	default:
	}
	return nil
}

// Submit offers one frame. It never blocks and reports whether the frame was
// accepted. Frames that are not tracking are skipped without any work.
func (r *Runner) Submit(input Tensor, frame arsession.Frame) bool {
	r.proc.stats.submitted.Add(1)

	if !r.running() {
		r.proc.stats.dropped.Add(1)
		return false
	}
	if frame.TrackingState() != arsession.Tracking {
		r.proc.stats.skipped.Add(1)
		return false
	}

	select {
	case r.inflight <- struct{}{}:
	default:
		r.proc.stats.dropped.Add(1)
		r.log.Debug("previous frame still in flight, dropping frame")
		return false
	}

	r.jobs <- job{input: input, frame: frame}
	return true
}

func (r *Runner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && !r.stopped
}

func (r *Runner) workLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case j := <-r.jobs:
			ev := r.proc.Evaluate(r.ctx, j.input, j.frame)
			select {
			case r.results <- ev:
			case <-r.ctx.Done():
				r.proc.stats.discarded.Add(1)
				return
			}
		}
	}
}

func (r *Runner) applyLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case ev := <-r.results:
			if r.ctx.Err() != nil {
				r.proc.stats.discarded.Add(1)
				return
			}
			r.publish(r.proc.Apply(ev))
			<-r.inflight
		case c := <-r.controls:
			r.publish(c.fn())
			close(c.done)
		}
	}
}

func (r *Runner) publish(snap Snapshot) {
	r.latestMu.Lock()
	r.latest = snap
	r.latestMu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.Publish(r.ctx, snap); err != nil {
			r.log.WithError(err).WithField("frame_id", snap.FrameID).Warn("sink publish failed")
		}
	}
}

// Clear removes all markers on the applier goroutine and waits for it.
func (r *Runner) Clear(ctx context.Context) error {
	r.mu.Lock()
	started, stopped := r.started, r.stopped
	r.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if stopped {
		return ErrStopped
	}

	c := control{fn: r.proc.Clear, done: make(chan struct{})}
	select {
	case r.controls <- c:
	case <-r.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Latest returns the most recently published snapshot.
func (r *Runner) Latest() Snapshot {
	r.latestMu.RLock()
	defer r.latestMu.RUnlock()
	return r.latest
}

func (r *Runner) Stats() Stats {
	return r.proc.Stats()
}
