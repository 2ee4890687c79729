package detections

const (
	DefaultInputSize           = 640
	DefaultObjectnessThreshold = 0.5
	DefaultScoreThreshold      = 0.5
	DefaultIoUThreshold        = 0.4
	DefaultChunkSize           = 512

	// boxFields is cx, cy, w, h.
	boxFields = 4
	// objectnessField is the row (channel-major) or field (anchor-major) holding objectness.
	objectnessField = 4

	iouEpsilon = 1e-9
)
