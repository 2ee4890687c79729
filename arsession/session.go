package arsession

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/Tutortoise/ar-wheel-placement/models"
	"github.com/Tutortoise/ar-wheel-placement/pose"
)

type TrackingState int

const (
	NotTracking TrackingState = iota
	Tracking
)

func (s TrackingState) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "not_tracking"
}

// Frame is the per-frame view of the AR session.
type Frame interface {
	TrackingState() TrackingState
	// RayCast hit-tests a coordinate in the frame's image space.
	RayCast(x, y float64) (r3.Vector, bool)
}

// Camera is a pinhole camera; it looks down its local -Z with +Y up.
type Camera struct {
	Position    r3.Vector
	Orientation models.Quaternion
	FovY        float64
	Width       float64
	Height      float64
}

// CameraLookingDown places a camera at height meters above the origin,
// pitched by pitchDeg (negative looks down).
func CameraLookingDown(height, pitchDeg, fovYDeg, width, imgHeight float64) Camera {
	half := pitchDeg * math.Pi / 360
	return Camera{
		Position:    r3.Vector{Y: height},
		Orientation: models.Quaternion{X: math.Sin(half), W: math.Cos(half)},
		FovY:        fovYDeg * math.Pi / 180,
		Width:       width,
		Height:      imgHeight,
	}
}

// Ray returns the world-space ray through image pixel (x, y).
func (c Camera) Ray(x, y float64) (origin, dir r3.Vector) {
	nx, ny := pose.ScreenToNormalized(x, y, c.Width, c.Height)
	tanY := math.Tan(c.FovY / 2)
	aspect := c.Width / c.Height
	local := r3.Vector{X: nx * tanY * aspect, Y: ny * tanY, Z: -1}
	return c.Position, c.Orientation.Rotate(local).Normalize()
}

// Plane is a detected surface. Extent bounds hits to a disc around Point;
// zero means unbounded.
type Plane struct {
	Point  r3.Vector
	Normal r3.Vector
	Extent float64
}

func FloorPlane(y float64) Plane {
	return Plane{Point: r3.Vector{Y: y}, Normal: r3.Vector{Y: 1}}
}

// Intersect returns the first hit of the ray in front of its origin.
func (p Plane) Intersect(origin, dir r3.Vector) (r3.Vector, float64, bool) {
	n := p.Normal.Normalize()
	denom := n.Dot(dir)
	if math.Abs(denom) < 1e-9 {
		return r3.Vector{}, 0, false
	}
	t := n.Dot(p.Point.Sub(origin)) / denom
	if t <= 0 {
		return r3.Vector{}, 0, false
	}
	hit := origin.Add(dir.Mul(t))
	if p.Extent > 0 && hit.Distance(p.Point) > p.Extent {
		return r3.Vector{}, 0, false
	}
	return hit, t, true
}

// Session is a simulated AR session. It is safe for concurrent use.
type Session struct {
	mu       sync.RWMutex
	camera   Camera
	planes   []Plane
	tracking bool
}

func NewSession(camera Camera, planes ...Plane) *Session {
	return &Session{camera: camera, planes: planes, tracking: true}
}

func (s *Session) Pause() {
	s.mu.Lock()
	s.tracking = false
	s.mu.Unlock()
}

func (s *Session) Resume() {
	s.mu.Lock()
	s.tracking = true
	s.mu.Unlock()
}

func (s *Session) SetCamera(c Camera) {
	s.mu.Lock()
	s.camera = c
	s.mu.Unlock()
}

func (s *Session) TrackingState() TrackingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tracking {
		return Tracking
	}
	return NotTracking
}

// Capture snapshots the current camera and planes into an immutable Frame.
func (s *Session) Capture() *PlaneFrame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	planes := make([]Plane, len(s.planes))
	copy(planes, s.planes)
	state := NotTracking
	if s.tracking {
		state = Tracking
	}
	return &PlaneFrame{camera: s.camera, planes: planes, state: state}
}

// PlaneFrame is a captured frame of a simulated Session.
type PlaneFrame struct {
	camera Camera
	planes []Plane
	state  TrackingState
}

func (f *PlaneFrame) TrackingState() TrackingState {
	return f.state
}

// RayCast returns the nearest plane hit. Nothing is hit while not tracking.
func (f *PlaneFrame) RayCast(x, y float64) (r3.Vector, bool) {
	if f.state != Tracking {
		return r3.Vector{}, false
	}
	origin, dir := f.camera.Ray(x, y)
	var best r3.Vector
	bestT := math.Inf(1)
	for _, p := range f.planes {
		if hit, t, ok := p.Intersect(origin, dir); ok && t < bestT {
			best, bestT = hit, t
		}
	}
	return best, !math.IsInf(bestT, 1)
}
