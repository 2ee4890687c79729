package detections

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

type SessionConfig struct {
	ModelPath      string
	InputName      string
	OutputName     string
	InputSize      int
	OutputShape    []int64
	IntraOpThreads int
	InterOpThreads int
}

// ModelSession owns one ONNX Runtime session with preallocated input and
// output tensors. A session must not be used by two goroutines at once.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// NewModelSession expects ort.InitializeEnvironment to have been called.
func NewModelSession(cfg SessionConfig) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	intra, inter := cfg.IntraOpThreads, cfg.InterOpThreads
	if intra <= 0 {
		intra = runtime.NumCPU()
	}
	if inter <= 0 {
		inter = 1
	}
	if err := options.SetIntraOpNumThreads(intra); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(inter); err != nil {
		return nil, fmt.Errorf("error setting inter-op threads: %w", err)
	}

	inputShape := ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize))
	outputShape := ort.NewShape(cfg.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

// Run copies input into the session, runs the model and returns a copy of
// the output together with its dims.
func (m *ModelSession) Run(input []float32) ([]float32, []int64, error) {
	dst := m.Input.GetData()
	if len(input) != len(dst) {
		return nil, nil, &ProcessingError{
			Message: "prepare input buffer",
			Cause:   shapeMismatch("input tensor length", len(input), len(dst)),
		}
	}
	copy(dst, input)

	if err := m.Session.Run(); err != nil {
		return nil, nil, &ProcessingError{Message: "model inference", Cause: err}
	}

	raw := m.Output.GetData()
	out := make([]float32, len(raw))
	copy(out, raw)
	shape := m.Output.GetShape()
	dims := make([]int64, len(shape))
	copy(dims, shape)
	return out, dims, nil
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}
