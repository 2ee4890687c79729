// Package arsession describes the AR tracking collaborator the pipeline
// consumes and provides a simulated session for running the service off
// device.
//
// A Frame is captured once per camera frame and is never mutated afterwards,
// so it can be handed to the inference worker while the session moves on.
//
// The simulated Session places a pinhole camera above one or more planes,
// which stands in for horizontal plane finding on a device:
//
//	cam := arsession.CameraLookingDown(1.4, -35, 60, 640, 640)
//	sess := arsession.NewSession(cam, arsession.FloorPlane(0))
//	frame := sess.Capture()
//	hit, ok := frame.RayCast(320, 320)
package arsession
