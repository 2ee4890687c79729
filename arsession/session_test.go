package arsession

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func TestPlaneFrameRayCast(t *testing.T) {
	cam := CameraLookingDown(1.4, -35, 60, 640, 640)
	s := NewSession(cam, FloorPlane(0))
	f := s.Capture()

	hit, ok := f.RayCast(320, 320)
	if !ok {
		t.Fatal("center ray missed the floor")
	}
	wantZ := -1.4 / math.Tan(35*math.Pi/180)
	if math.Abs(hit.Y) > 1e-9 || math.Abs(hit.X) > 1e-9 || math.Abs(hit.Z-wantZ) > 1e-9 {
		t.Errorf("hit = %v, want (0, 0, %.4f)", hit, wantZ)
	}

	near, ok := f.RayCast(320, 600)
	if !ok {
		t.Fatal("lower ray missed the floor")
	}
	if near.Z <= wantZ {
		t.Errorf("lower pixel hit %v is not closer to the camera than %v", near, hit)
	}
}

func TestPlaneFrameRayCastMiss(t *testing.T) {
	level := CameraLookingDown(1.4, 0, 60, 640, 480)
	f := NewSession(level, FloorPlane(0)).Capture()
	if _, ok := f.RayCast(320, 0); ok {
		t.Error("ray above the horizon hit the floor")
	}
	if _, ok := f.RayCast(320, 240); ok {
		t.Error("ray parallel to the floor hit it")
	}

	bounded := Plane{Point: r3.Vector{}, Normal: r3.Vector{Y: 1}, Extent: 1}
	f = NewSession(CameraLookingDown(1.4, -35, 60, 640, 640), bounded).Capture()
	if _, ok := f.RayCast(320, 320); ok {
		t.Error("hit outside the plane extent")
	}
}

func TestPlaneFrameNearestPlane(t *testing.T) {
	cam := CameraLookingDown(2, -90, 60, 100, 100)
	table := FloorPlane(0.8)
	f := NewSession(cam, FloorPlane(0), table).Capture()
	hit, ok := f.RayCast(50, 50)
	if !ok {
		t.Fatal("ray missed")
	}
	if math.Abs(hit.Y-0.8) > 1e-9 {
		t.Errorf("hit %v, want the nearer table plane at y=0.8", hit)
	}
}

func TestSessionPauseResume(t *testing.T) {
	s := NewSession(CameraLookingDown(1.4, -35, 60, 640, 640), FloorPlane(0))
	before := s.Capture()

	s.Pause()
	if s.TrackingState() != NotTracking {
		t.Fatalf("TrackingState() = %v after Pause", s.TrackingState())
	}
	paused := s.Capture()
	if paused.TrackingState() != NotTracking {
		t.Errorf("captured frame is %v", paused.TrackingState())
	}
	if _, ok := paused.RayCast(320, 320); ok {
		t.Error("paused frame returned a hit")
	}
	if before.TrackingState() != Tracking {
		t.Error("frame captured before Pause changed state")
	}

	s.Resume()
	if s.Capture().TrackingState() != Tracking {
		t.Error("Resume did not restore tracking")
	}
}

func TestTrackingStateString(t *testing.T) {
	if Tracking.String() != "tracking" || NotTracking.String() != "not_tracking" {
		t.Errorf("unexpected names %q, %q", Tracking, NotTracking)
	}
}
