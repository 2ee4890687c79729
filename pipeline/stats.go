package pipeline

import (
	"sync/atomic"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

// Stats is a snapshot of pipeline counters.
type Stats struct {
	// Submitted counts frames offered to a Runner.
	Submitted uint64 `json:"submitted"`
	// Dropped counts frames refused because a previous frame was still in flight.
	Dropped uint64 `json:"dropped"`
	// SkippedNotTracking counts frames skipped before any work because tracking was lost.
	SkippedNotTracking uint64 `json:"skipped_not_tracking"`
	Processed          uint64 `json:"processed"`
	Applied            uint64 `json:"applied"`
	// Discarded counts evaluated frames thrown away during teardown.
	Discarded       uint64 `json:"discarded"`
	InferenceErrors uint64 `json:"inference_errors"`
	Timeouts        uint64 `json:"timeouts"`
	ShapeMismatches uint64 `json:"shape_mismatches"`
	Detections      uint64 `json:"detections"`
	RayCastMisses   uint64 `json:"ray_cast_misses"`
	Degenerate      uint64 `json:"degenerate"`
	Reused          uint64 `json:"reused"`
	Created         uint64 `json:"created"`

	Markers        int `json:"markers"`
	VisibleMarkers int `json:"visible_markers"`

	LastTimings models.ProcessingTimings `json:"-"`
}

type counters struct {
	submitted       atomic.Uint64
	dropped         atomic.Uint64
	skipped         atomic.Uint64
	processed       atomic.Uint64
	applied         atomic.Uint64
	discarded       atomic.Uint64
	inferenceErrors atomic.Uint64
	timeouts        atomic.Uint64
	shapeMismatches atomic.Uint64
	detections      atomic.Uint64
	misses          atomic.Uint64
	degenerate      atomic.Uint64
	reused          atomic.Uint64
	created         atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Submitted:          c.submitted.Load(),
		Dropped:            c.dropped.Load(),
		SkippedNotTracking: c.skipped.Load(),
		Processed:          c.processed.Load(),
		Applied:            c.applied.Load(),
		Discarded:          c.discarded.Load(),
		InferenceErrors:    c.inferenceErrors.Load(),
		Timeouts:           c.timeouts.Load(),
		ShapeMismatches:    c.shapeMismatches.Load(),
		Detections:         c.detections.Load(),
		RayCastMisses:      c.misses.Load(),
		Degenerate:         c.degenerate.Load(),
		Reused:             c.reused.Load(),
		Created:            c.created.Load(),
	}
}
