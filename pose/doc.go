// Package pose lifts 2D detections into world-anchored poses.
//
// Each detection is probed with three ray casts: the box center, a point
// above the center and a point right of the center, both offset by a
// fraction of the box size. The three hit points span a local frame on the
// detected surface:
//
//	forward = normalize(top - center)
//	right   = normalize(right - center)
//	up      = normalize(cross(forward, right))
//
// The orientation is the look rotation of (forward, up), stored as a unit
// quaternion. Collinear or coincident hits fall back to identity.
package pose
