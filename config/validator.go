package config

import (
	"fmt"
	"regexp"

	"github.com/Tutortoise/ar-wheel-placement/detections"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks cfg and fills in derived defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	d := cfg.Detector
	if d.InputSize <= 0 {
		return fmt.Errorf("detector.input_size must be > 0")
	}
	if d.NumClasses < 0 {
		return fmt.Errorf("detector.num_classes must be >= 0")
	}
	for name, v := range map[string]float64{
		"detector.objectness_threshold": d.ObjectnessThreshold,
		"detector.score_threshold":      d.ScoreThreshold,
		"detector.iou_threshold":        d.IoUThreshold,
		"pose.confidence_threshold":     cfg.Pose.ConfidenceThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if _, ok := detections.ParseScoreMode(d.ScoreMode); !ok {
		return fmt.Errorf("detector.score_mode: unknown mode '%s' (must be 'product' or 'objectness')", d.ScoreMode)
	}
	if d.ChunkSize <= 0 {
		cfg.Detector.ChunkSize = detections.DefaultChunkSize
	}

	p := cfg.Pose
	if p.TopOffsetFraction <= 0 || p.TopOffsetFraction > 1 {
		return fmt.Errorf("pose.top_offset_fraction must be in (0,1], got %v", p.TopOffsetFraction)
	}
	if p.RightOffsetFraction <= 0 || p.RightOffsetFraction > 1 {
		return fmt.Errorf("pose.right_offset_fraction must be in (0,1], got %v", p.RightOffsetFraction)
	}
	if (p.ViewWidth == 0) != (p.ViewHeight == 0) || p.ViewWidth < 0 || p.ViewHeight < 0 {
		return fmt.Errorf("pose.view_width and pose.view_height must both be set or both be 0")
	}
	if p.MarkerScale == [3]float64{} {
		cfg.Pose.MarkerScale = [3]float64{1, 1, 1}
	}

	if cfg.Placement.ReuseRadiusM <= 0 {
		return fmt.Errorf("placement.reuse_radius_m must be > 0")
	}

	if cfg.Runner.InferenceTimeout < 0 {
		return fmt.Errorf("runner.inference_timeout must be >= 0")
	}
	if cfg.Runner.TargetFPS <= 0 {
		cfg.Runner.TargetFPS = 10
	}

	if cfg.Model.PoolSize <= 0 {
		cfg.Model.PoolSize = 1
	}
	if len(cfg.Model.OutputShape) == 0 {
		return fmt.Errorf("model.output_shape is required")
	}
	for _, dim := range cfg.Model.OutputShape {
		if dim <= 0 {
			return fmt.Errorf("model.output_shape must be positive, got %v", cfg.Model.OutputShape)
		}
	}

	if cfg.Scene.FovYDeg <= 0 || cfg.Scene.FovYDeg >= 180 {
		return fmt.Errorf("scene.fov_y_deg must be in (0,180), got %v", cfg.Scene.FovYDeg)
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = fmt.Sprintf("ar/markers/%s", cfg.InstanceID)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = fmt.Sprintf("ar-placement-%s", cfg.InstanceID)
	}

	return nil
}
