// Package pipeline wires the detection decoder, the pose resolver and the
// placement cache into a per-frame pipeline.
//
// Philosophy: drop frames, never queue. A frame that arrives while the
// previous one is still being evaluated or applied is refused, which bounds
// latency at one frame.
//
//	session frame ─▶ Runner.Submit ─▶ worker ─▶ applier ─▶ sinks
//	                 (token, drop)    (infer,    (cache,
//	                                   decode,    render
//	                                   resolve)   commands)
//
// Only the applier goroutine mutates the placement cache. Sinks and HTTP
// readers see immutable Snapshots.
package pipeline
