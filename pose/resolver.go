package pose

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

const (
	DefaultConfidenceThreshold = 0.5
	DefaultOffsetFraction      = 0.2
)

// RayCaster hit-tests a 2D coordinate against the reconstructed scene of the
// frame it was captured from. ok is false when nothing was hit.
type RayCaster interface {
	RayCast(x, y float64) (hit r3.Vector, ok bool)
}

type RayCastFunc func(x, y float64) (r3.Vector, bool)

func (f RayCastFunc) RayCast(x, y float64) (r3.Vector, bool) {
	return f(x, y)
}

type Config struct {
	ConfidenceThreshold float64
	TopOffsetFraction   float64
	RightOffsetFraction float64
	// SurfaceOffset moves the position along the surface normal, in meters.
	SurfaceOffset float64
	MarkerScale   r3.Vector
	Viewport      Viewport
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		TopOffsetFraction:   DefaultOffsetFraction,
		RightOffsetFraction: DefaultOffsetFraction,
		MarkerScale:         r3.Vector{X: 1, Y: 1, Z: 1},
	}
}

// Stats counts what happened to the detections of one Resolve call.
type Stats struct {
	BelowThreshold int
	Misses         int
	Degenerate     int
}

type Resolver struct {
	cfg Config
	log logrus.FieldLogger
}

func NewResolver(cfg Config, log logrus.FieldLogger) *Resolver {
	if cfg.MarkerScale == (r3.Vector{}) {
		cfg.MarkerScale = r3.Vector{X: 1, Y: 1, Z: 1}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{cfg: cfg, log: log}
}

func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve uses the configured confidence threshold.
func (r *Resolver) Resolve(detections []models.RawDetection, rc RayCaster) ([]models.Pose3D, Stats) {
	return r.ResolveWithThreshold(detections, rc, r.cfg.ConfidenceThreshold)
}

// ResolveWithThreshold emits one pose per detection whose confidence is at
// least threshold and whose three ray casts all hit. Output keeps input order.
func (r *Resolver) ResolveWithThreshold(detections []models.RawDetection, rc RayCaster, threshold float64) ([]models.Pose3D, Stats) {
	var stats Stats
	poses := make([]models.Pose3D, 0, len(detections))

	for _, det := range detections {
		if det.Confidence < threshold {
			stats.BelowThreshold++
			continue
		}

		center, top, right := r.queryPoints(det)
		p0, ok0 := castFinite(rc, center)
		p1, ok1 := castFinite(rc, top)
		p2, ok2 := castFinite(rc, right)
		if !ok0 || !ok1 || !ok2 {
			stats.Misses++
			r.log.WithFields(logrus.Fields{
				"anchor": det.Anchor,
				"center": ok0,
				"top":    ok1,
				"right":  ok2,
			}).Debug("ray cast miss, dropping detection")
			continue
		}

		orientation, up, ok := OrientationFromHits(p0, p1, p2)
		position := p0
		if ok {
			position = p0.Add(up.Mul(r.cfg.SurfaceOffset))
		} else {
			stats.Degenerate++
		}

		poses = append(poses, models.Pose3D{
			Position:    position,
			Orientation: orientation,
			Scale:       r.cfg.MarkerScale,
			ClassIndex:  det.ClassIndex,
			Confidence:  det.Confidence,
			Degenerate:  !ok,
		})
	}
	return poses, stats
}

type point struct{ x, y float64 }

func (r *Resolver) queryPoints(det models.RawDetection) (center, top, right point) {
	vp := r.cfg.Viewport
	cx, cy := vp.ToView(det.CenterX, det.CenterY)
	tx, ty := vp.ToView(det.CenterX, det.CenterY-r.cfg.TopOffsetFraction*det.Height)
	rx, ry := vp.ToView(det.CenterX+r.cfg.RightOffsetFraction*det.Width, det.CenterY)
	return point{cx, cy}, point{tx, ty}, point{rx, ry}
}

func castFinite(rc RayCaster, p point) (r3.Vector, bool) {
	hit, ok := rc.RayCast(p.x, p.y)
	if !ok {
		return r3.Vector{}, false
	}
	for _, v := range [3]float64{hit.X, hit.Y, hit.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r3.Vector{}, false
		}
	}
	return hit, true
}
