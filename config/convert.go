package config

import (
	"github.com/golang/geo/r3"

	"github.com/Tutortoise/ar-wheel-placement/detections"
	"github.com/Tutortoise/ar-wheel-placement/emitter"
	"github.com/Tutortoise/ar-wheel-placement/pipeline"
	"github.com/Tutortoise/ar-wheel-placement/pose"
)

func (c *Config) DecoderConfig() detections.Config {
	mode, _ := detections.ParseScoreMode(c.Detector.ScoreMode)
	dc := detections.DefaultConfig()
	dc.ObjectnessThreshold = c.Detector.ObjectnessThreshold
	dc.ScoreThreshold = c.Detector.ScoreThreshold
	dc.IoUThreshold = c.Detector.IoUThreshold
	dc.NumClasses = c.Detector.NumClasses
	dc.HasObjectness = c.Detector.HasObjectness
	dc.ScoreMode = mode
	dc.ChunkSize = c.Detector.ChunkSize
	return dc
}

func (c *Config) PoseConfig() pose.Config {
	s := c.Pose.MarkerScale
	return pose.Config{
		ConfidenceThreshold: c.Pose.ConfidenceThreshold,
		TopOffsetFraction:   c.Pose.TopOffsetFraction,
		RightOffsetFraction: c.Pose.RightOffsetFraction,
		SurfaceOffset:       c.Pose.SurfaceOffsetM,
		MarkerScale:         r3.Vector{X: s[0], Y: s[1], Z: s[2]},
		Viewport: pose.Viewport{
			InputSize: c.Detector.InputSize,
			Width:     c.Pose.ViewWidth,
			Height:    c.Pose.ViewHeight,
		},
	}
}

func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		ReuseRadius:      c.Placement.ReuseRadiusM,
		InferenceTimeout: c.Runner.InferenceTimeout,
	}
}

func (c *Config) SessionConfig() detections.SessionConfig {
	return detections.SessionConfig{
		ModelPath:      c.Model.Path,
		InputName:      c.Model.InputName,
		OutputName:     c.Model.OutputName,
		InputSize:      c.Detector.InputSize,
		OutputShape:    c.Model.OutputShape,
		IntraOpThreads: c.Model.IntraOpThreads,
	}
}

func (c *Config) EmitterConfig() emitter.Config {
	return emitter.Config{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Topic:    c.MQTT.Topic,
		QoS:      c.MQTT.QoS,
	}
}
