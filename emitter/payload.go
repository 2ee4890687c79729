package emitter

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Tutortoise/ar-wheel-placement/models"
	"github.com/Tutortoise/ar-wheel-placement/pipeline"
)

// Payload is the wire form of one render snapshot.
type Payload struct {
	FrameID   string                 `msgpack:"frame_id"`
	Timestamp int64                  `msgpack:"ts_ms"`
	Markers   []models.RenderCommand `msgpack:"markers"`
}

func Encode(snap pipeline.Snapshot) ([]byte, error) {
	return msgpack.Marshal(Payload{
		FrameID:   snap.FrameID,
		Timestamp: snap.At.UnixMilli(),
		Markers:   snap.Commands,
	})
}

func Decode(data []byte) (Payload, error) {
	var p Payload
	err := msgpack.Unmarshal(data, &p)
	return p, err
}
