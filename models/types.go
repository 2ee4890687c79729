package models

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
)

// RawDetection is one decoded box in model input-pixel space.
type RawDetection struct {
	CenterX    float64
	CenterY    float64
	Width      float64
	Height     float64
	Objectness float64
	Confidence float64
	ClassIndex int
	Anchor     int
}

// Corners returns the box as x1, y1, x2, y2.
func (d RawDetection) Corners() (x1, y1, x2, y2 float64) {
	hw, hh := d.Width/2, d.Height/2
	return d.CenterX - hw, d.CenterY - hh, d.CenterX + hw, d.CenterY + hh
}

// Quaternion is a unit rotation. The zero value is not valid, use IdentityQuaternion.
type Quaternion struct {
	X, Y, Z, W float64
}

var IdentityQuaternion = Quaternion{W: 1}

func (q Quaternion) IsFinite() bool {
	for _, v := range [4]float64{q.X, q.Y, q.Z, q.W} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n == 0 {
		return IdentityQuaternion
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Rotate applies q to v.
func (q Quaternion) Rotate(v r3.Vector) r3.Vector {
	u := r3.Vector{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Mul(2)
	return v.Add(t.Mul(q.W)).Add(u.Cross(t))
}

// Euler returns roll, pitch and yaw in degrees (x, y and z axis rotations).
func (q Quaternion) Euler() [3]float64 {
	sinrCosp := 2 * (q.W*q.X + q.Y*q.Z)
	cosrCosp := 1 - 2*(q.X*q.X+q.Y*q.Y)
	roll := math.Atan2(sinrCosp, cosrCosp)

	sinp := 2 * (q.W*q.Y - q.Z*q.X)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	yaw := math.Atan2(sinyCosp, cosyCosp)

	const deg = 180 / math.Pi
	return [3]float64{roll * deg, pitch * deg, yaw * deg}
}

// Pose3D is a world-anchored placement derived from one detection.
type Pose3D struct {
	Position    r3.Vector
	Orientation Quaternion
	Scale       r3.Vector
	ClassIndex  int
	Confidence  float64
	// Degenerate is set when the hit points could not span a frame and
	// Orientation fell back to identity.
	Degenerate bool
}

type PlacedMarker struct {
	ID          string
	Position    r3.Vector
	Orientation Quaternion
	Scale       r3.Vector
	ClassIndex  int
	Visible     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RenderCommand is what the renderer applies for one marker in one frame.
type RenderCommand struct {
	MarkerID    string     `json:"marker_id" msgpack:"marker_id"`
	Position    [3]float64 `json:"position" msgpack:"position"`
	Orientation [4]float64 `json:"orientation" msgpack:"orientation"`
	Rotation    [3]float64 `json:"rotation_deg" msgpack:"rotation_deg"`
	Scale       [3]float64 `json:"scale" msgpack:"scale"`
	Color       [4]float64 `json:"color" msgpack:"color"`
	ClassIndex  int        `json:"class" msgpack:"class"`
	Visible     bool       `json:"visible" msgpack:"visible"`
}

type ProcessingTimings struct {
	FrameID   string
	Inference time.Duration
	Decode    time.Duration
	Resolve   time.Duration
	Placement time.Duration
	Total     time.Duration
}
