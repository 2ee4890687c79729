package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/arsession"
	"github.com/Tutortoise/ar-wheel-placement/detections"
	"github.com/Tutortoise/ar-wheel-placement/models"
	"github.com/Tutortoise/ar-wheel-placement/placement"
	"github.com/Tutortoise/ar-wheel-placement/pose"
)

type Config struct {
	ReuseRadius float64
	// InferenceTimeout bounds one Infer call; a timeout counts as a frame
	// without detections. Zero disables it.
	InferenceTimeout time.Duration
	PaletteSize      int
}

func DefaultConfig() Config {
	return Config{ReuseRadius: placement.DefaultReuseRadius}
}

// Evaluation is the cache-free part of one frame: inference, decoding and
// pose resolution. It can be computed on any goroutine.
type Evaluation struct {
	FrameID    string
	Detections []models.RawDetection
	Poses      []models.Pose3D
	Timings    models.ProcessingTimings
	// Err is why the frame degraded to zero detections, if it did.
	Err     error
	started time.Time
}

// Processor runs the per-frame pipeline. Evaluate may run anywhere; Apply
// and the methods that call it mutate the placement cache and must be
// confined to one goroutine.
type Processor struct {
	cfg      Config
	infer    Inference
	decoder  *detections.Decoder
	resolver *pose.Resolver
	cache    *placement.Cache
	palette  *Palette
	log      logrus.FieldLogger

	stats          counters
	markers        atomic.Int64
	visibleMarkers atomic.Int64
	lastTimings    atomic.Pointer[models.ProcessingTimings]
}

func NewProcessor(cfg Config, infer Inference, decoder *detections.Decoder, resolver *pose.Resolver, log logrus.FieldLogger) *Processor {
	if cfg.ReuseRadius <= 0 {
		cfg.ReuseRadius = placement.DefaultReuseRadius
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{
		cfg:      cfg,
		infer:    infer,
		decoder:  decoder,
		resolver: resolver,
		cache:    placement.NewCache(),
		palette:  NewPalette(cfg.PaletteSize),
		log:      log,
	}
}

// ProcessFrame runs inference on input, then decodes, resolves and applies
// the result. It returns ErrNotTracking without touching the cache when the
// frame is not tracking. Any other failure degrades to a frame without
// detections.
func (p *Processor) ProcessFrame(ctx context.Context, input Tensor, frame arsession.Frame) ([]models.RenderCommand, error) {
	if frame.TrackingState() != arsession.Tracking {
		p.stats.skipped.Add(1)
		return nil, ErrNotTracking
	}
	snap := p.Apply(p.Evaluate(ctx, input, frame))
	return snap.Commands, nil
}

// ProcessOutput is ProcessFrame for an already computed model output.
func (p *Processor) ProcessOutput(output Tensor, frame arsession.Frame) ([]models.RenderCommand, error) {
	if frame.TrackingState() != arsession.Tracking {
		p.stats.skipped.Add(1)
		return nil, ErrNotTracking
	}
	snap := p.Apply(p.EvaluateOutput(newEvaluation(), output, frame))
	return snap.Commands, nil
}

func newEvaluation() Evaluation {
	id := uuid.NewString()
	return Evaluation{FrameID: id, Timings: models.ProcessingTimings{FrameID: id}, started: time.Now()}
}

func (p *Processor) Evaluate(ctx context.Context, input Tensor, frame arsession.Frame) Evaluation {
	ev := newEvaluation()

	inferStart := time.Now()
	output, err := p.runInference(ctx, input)
	ev.Timings.Inference = time.Since(inferStart)
	if err != nil {
		ev.Err = err
		p.stats.processed.Add(1)
		if !errors.Is(err, context.Canceled) {
			p.log.WithField("frame_id", ev.FrameID).WithError(err).Warn("inference failed, no detections this frame")
		}
		return ev
	}

	return p.EvaluateOutput(ev, output, frame)
}

func (p *Processor) EvaluateOutput(ev Evaluation, output Tensor, frame arsession.Frame) Evaluation {
	p.stats.processed.Add(1)

	decodeStart := time.Now()
	dets, err := p.decoder.Decode(output.Data, output.Shape)
	ev.Timings.Decode = time.Since(decodeStart)
	if err != nil {
		ev.Err = err
		if errors.Is(err, detections.ErrShapeMismatch) {
			p.stats.shapeMismatches.Add(1)
		}
		p.log.WithField("frame_id", ev.FrameID).WithError(err).Warn("decode failed, no detections this frame")
		return ev
	}
	ev.Detections = dets
	p.stats.detections.Add(uint64(len(dets)))

	resolveStart := time.Now()
	poses, rs := p.resolver.Resolve(dets, frame)
	ev.Timings.Resolve = time.Since(resolveStart)
	ev.Poses = poses
	p.stats.misses.Add(uint64(rs.Misses))
	p.stats.degenerate.Add(uint64(rs.Degenerate))

	return ev
}

func (p *Processor) runInference(ctx context.Context, input Tensor) (Tensor, error) {
	if p.infer == nil {
		p.stats.inferenceErrors.Add(1)
		return Tensor{}, &detections.ProcessingError{Message: "model inference", Cause: errors.New("no inference engine configured")}
	}
	if p.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.InferenceTimeout)
		defer cancel()
	}

	out, err := p.infer.Infer(ctx, input)
	if err == nil {
		return out, nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		p.stats.timeouts.Add(1)
	case errors.Is(err, context.Canceled):
	default:
		p.stats.inferenceErrors.Add(1)
	}
	return Tensor{}, &detections.ProcessingError{Message: "model inference", Cause: err}
}

// Apply updates the placement cache with ev and returns the resulting
// render state.
func (p *Processor) Apply(ev Evaluation) Snapshot {
	placeStart := time.Now()
	res := p.cache.Update(ev.Poses, p.cfg.ReuseRadius)
	ev.Timings.Placement = time.Since(placeStart)

	markers := p.cache.Markers()
	visible := 0
	for _, m := range markers {
		if m.Visible {
			visible++
		}
	}
	p.markers.Store(int64(len(markers)))
	p.visibleMarkers.Store(int64(visible))
	p.stats.applied.Add(1)
	p.stats.reused.Add(uint64(len(res.Reused)))
	p.stats.created.Add(uint64(len(res.Created)))

	if !ev.started.IsZero() {
		ev.Timings.Total = time.Since(ev.started)
	}
	timings := ev.Timings
	p.lastTimings.Store(&timings)
	p.logTimings(ev, res)

	return Snapshot{
		FrameID:  ev.FrameID,
		At:       time.Now(),
		Commands: RenderCommands(markers, p.palette),
		Timings:  timings,
	}
}

func (p *Processor) logTimings(ev Evaluation, res placement.Result) {
	p.log.WithFields(logrus.Fields{
		"frame_id":   ev.FrameID,
		"detections": len(ev.Detections),
		"poses":      len(ev.Poses),
		"reused":     len(res.Reused),
		"created":    len(res.Created),
		"inference":  ev.Timings.Inference,
		"decode":     ev.Timings.Decode,
		"resolve":    ev.Timings.Resolve,
		"placement":  ev.Timings.Placement,
		"total":      ev.Timings.Total,
	}).Debug("frame applied")
}

// Clear removes all markers and returns the now empty render state.
func (p *Processor) Clear() Snapshot {
	p.cache.Clear()
	p.markers.Store(0)
	p.visibleMarkers.Store(0)
	return Snapshot{At: time.Now(), Commands: []models.RenderCommand{}}
}

// Stats is safe to call from any goroutine.
func (p *Processor) Stats() Stats {
	s := p.stats.snapshot()
	s.Markers = int(p.markers.Load())
	s.VisibleMarkers = int(p.visibleMarkers.Load())
	if t := p.lastTimings.Load(); t != nil {
		s.LastTimings = *t
	}
	return s
}
