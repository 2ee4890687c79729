package detections

import (
	"runtime"
	"sort"
	"sync"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

// ScoreMode selects how the final confidence of an anchor is composed.
type ScoreMode int

const (
	// ScoreProduct is objectness * best class score.
	ScoreProduct ScoreMode = iota
	// ScoreObjectness uses objectness alone; the class is still the argmax.
	ScoreObjectness
)

func (m ScoreMode) String() string {
	if m == ScoreObjectness {
		return "objectness"
	}
	return "product"
}

// ParseScoreMode accepts "product" or "objectness". Empty means product.
func ParseScoreMode(s string) (ScoreMode, bool) {
	switch s {
	case "", "product":
		return ScoreProduct, true
	case "objectness":
		return ScoreObjectness, true
	}
	return ScoreProduct, false
}

type Config struct {
	ObjectnessThreshold float64
	ScoreThreshold      float64
	IoUThreshold        float64
	// NumClasses is the model's class count; 0 infers it from a [1, C, N] shape.
	NumClasses    int
	HasObjectness bool
	ScoreMode     ScoreMode
	ChunkSize     int
	Workers       int
}

func DefaultConfig() Config {
	return Config{
		ObjectnessThreshold: DefaultObjectnessThreshold,
		ScoreThreshold:      DefaultScoreThreshold,
		IoUThreshold:        DefaultIoUThreshold,
		HasObjectness:       true,
		ChunkSize:           DefaultChunkSize,
		Workers:             runtime.NumCPU(),
	}
}

// Decoder turns raw model output into deduplicated detections. It holds no
// per-frame state and is safe for concurrent use.
type Decoder struct {
	cfg Config
}

func NewDecoder(cfg Config) *Decoder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Decoder{cfg: cfg}
}

func (d *Decoder) Config() Config {
	return d.cfg
}

// Decode validates data against dims, thresholds every anchor and applies
// non-maximum suppression. The result is ordered by descending confidence.
func (d *Decoder) Decode(data []float32, dims []int64) ([]models.RawDetection, error) {
	if len(data) == 0 {
		return nil, nil
	}

	layout, err := ResolveLayout(len(data), dims, d.cfg.NumClasses, d.cfg.HasObjectness)
	if err != nil {
		return nil, err
	}

	candidates := d.processPredictions(data, layout)
	return NonMaxSuppression(candidates, d.cfg.IoUThreshold), nil
}

func (d *Decoder) processPredictions(data []float32, layout Layout) []models.RawDetection {
	numPredictions := layout.Anchors
	if numPredictions <= d.cfg.ChunkSize || d.cfg.Workers == 1 {
		detections := d.scanRange(data, layout, 0, numPredictions, nil)
		sortDetectionsByConfidence(detections)
		return detections
	}

	chunkSize := d.cfg.ChunkSize
	jobs := make(chan int, d.cfg.Workers)
	results := make(chan []models.RawDetection, d.cfg.Workers)

	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local []models.RawDetection
			for start := range jobs {
				end := start + chunkSize
				if end > numPredictions {
					end = numPredictions
				}
				local = d.scanRange(data, layout, start, end, local)
			}
			if len(local) > 0 {
				results <- local
			}
		}()
	}

	go func() {
		for i := 0; i < numPredictions; i += chunkSize {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	detections := make([]models.RawDetection, 0, 100)
	for chunk := range results {
		detections = append(detections, chunk...)
	}

	sortDetectionsByConfidence(detections)
	return detections
}

func (d *Decoder) scanRange(data []float32, layout Layout, start, end int, dst []models.RawDetection) []models.RawDetection {
	classOffset := layout.classOffset()
	for i := start; i < end; i++ {
		bestClass := 0
		bestScore := float64(layout.at(data, i, classOffset))
		for c := 1; c < layout.Classes; c++ {
			if s := float64(layout.at(data, i, classOffset+c)); s > bestScore {
				bestScore = s
				bestClass = c
			}
		}

		var objectness float64
		score := bestScore
		if layout.HasObjectness {
			objectness = float64(layout.at(data, i, objectnessField))
			if !(objectness > d.cfg.ObjectnessThreshold) {
				continue
			}
			if d.cfg.ScoreMode == ScoreObjectness {
				score = objectness
			} else {
				score = objectness * bestScore
			}
		} else {
			objectness = bestScore
		}
		if !(score > d.cfg.ScoreThreshold) {
			continue
		}

		dst = append(dst, models.RawDetection{
			CenterX:    float64(layout.at(data, i, 0)),
			CenterY:    float64(layout.at(data, i, 1)),
			Width:      float64(layout.at(data, i, 2)),
			Height:     float64(layout.at(data, i, 3)),
			Objectness: objectness,
			Confidence: score,
			ClassIndex: bestClass,
			Anchor:     i,
		})
	}
	return dst
}

// sortDetectionsByConfidence orders by descending confidence; equal scores
// keep anchor order so parallel scans stay deterministic.
func sortDetectionsByConfidence(detections []models.RawDetection) {
	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].Confidence != detections[j].Confidence {
			return detections[i].Confidence > detections[j].Confidence
		}
		return detections[i].Anchor < detections[j].Anchor
	})
}
