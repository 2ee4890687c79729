package main

const (
	MsgFrameAccepted = "Frame accepted for processing."

	MsgFrameDropped = "A previous frame is still being processed, this frame was dropped. Send the next frame."

	MsgNotTracking = "The AR session is not tracking, frames are skipped until tracking resumes."

	MsgMarkersCleared = "All placed markers were removed."
)
