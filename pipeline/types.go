package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

var (
	ErrNotTracking = errors.New("camera not tracking")
	ErrStopped     = errors.New("runner stopped")
	ErrNotStarted  = errors.New("runner not started")
)

// Tensor is a flat numeric buffer with its dims.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// Inference runs the model on one preprocessed input. Implementations should
// return promptly once ctx is done.
type Inference interface {
	Infer(ctx context.Context, input Tensor) (Tensor, error)
}

type InferenceFunc func(ctx context.Context, input Tensor) (Tensor, error)

func (f InferenceFunc) Infer(ctx context.Context, input Tensor) (Tensor, error) {
	return f(ctx, input)
}

// Snapshot is the render state after one applied frame. Commands is never
// mutated after publication.
type Snapshot struct {
	FrameID  string                   `json:"frame_id"`
	At       time.Time                `json:"at"`
	Commands []models.RenderCommand   `json:"commands"`
	Timings  models.ProcessingTimings `json:"-"`
}

// Sink receives every applied Snapshot on the applier goroutine.
type Sink interface {
	Publish(ctx context.Context, snap Snapshot) error
}
