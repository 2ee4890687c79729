package detections

import (
	"math"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

// IoU is the intersection-over-union of two center/size boxes. Disjoint
// boxes give exactly 0; the union is clamped so zero-area boxes never divide
// by zero.
func IoU(a, b models.RawDetection) float64 {
	ax1, ay1, ax2, ay2 := a.Corners()
	bx1, by1, bx2, by2 := b.Corners()

	x1 := math.Max(ax1, bx1)
	y1 := math.Max(ay1, by1)
	x2 := math.Min(ax2, bx2)
	y2 := math.Min(ay2, by2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := math.Max(0, ax2-ax1) * math.Max(0, ay2-ay1)
	area2 := math.Max(0, bx2-bx1) * math.Max(0, by2-by1)
	union := area1 + area2 - intersection

	return math.Min(1, intersection/math.Max(union, iouEpsilon))
}

// NonMaxSuppression keeps the highest scoring box of every overlapping group.
// Any box whose IoU with an already kept box exceeds iouThreshold is dropped.
// Output is in descending confidence order.
func NonMaxSuppression(detections []models.RawDetection, iouThreshold float64) []models.RawDetection {
	if len(detections) == 0 {
		return nil
	}

	sorted := make([]models.RawDetection, len(detections))
	copy(sorted, detections)
	sortDetectionsByConfidence(sorted)

	suppressed := make([]bool, len(sorted))
	kept := make([]models.RawDetection, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			if IoU(sorted[i], sorted[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}
