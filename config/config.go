package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	InstanceID string          `yaml:"instance_id"`
	Detector   DetectorConfig  `yaml:"detector"`
	Pose       PoseConfig      `yaml:"pose"`
	Placement  PlacementConfig `yaml:"placement"`
	Runner     RunnerConfig    `yaml:"runner"`
	Model      ModelConfig     `yaml:"model"`
	Scene      SceneConfig     `yaml:"scene"`
	Server     ServerConfig    `yaml:"server"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	Log        LogConfig       `yaml:"log"`
}

type DetectorConfig struct {
	InputSize           int     `yaml:"input_size"`
	NumClasses          int     `yaml:"num_classes"` // 0 infers it from a [1, C, N] output
	HasObjectness       bool    `yaml:"has_objectness"`
	ObjectnessThreshold float64 `yaml:"objectness_threshold"`
	ScoreThreshold      float64 `yaml:"score_threshold"`
	IoUThreshold        float64 `yaml:"iou_threshold"`
	ScoreMode           string  `yaml:"score_mode"` // product, objectness
	ChunkSize           int     `yaml:"chunk_size"`
}

type PoseConfig struct {
	ConfidenceThreshold float64    `yaml:"confidence_threshold"`
	TopOffsetFraction   float64    `yaml:"top_offset_fraction"`
	RightOffsetFraction float64    `yaml:"right_offset_fraction"`
	SurfaceOffsetM      float64    `yaml:"surface_offset_m"`
	MarkerScale         [3]float64 `yaml:"marker_scale"`
	ViewWidth           float64    `yaml:"view_width"`  // 0 keeps model space
	ViewHeight          float64    `yaml:"view_height"`
}

type PlacementConfig struct {
	ReuseRadiusM float64 `yaml:"reuse_radius_m"`
}

type RunnerConfig struct {
	InferenceTimeout time.Duration `yaml:"inference_timeout"` // 0 disables
	TargetFPS        int           `yaml:"target_fps"`
}

type ModelConfig struct {
	Path              string  `yaml:"path"`
	SharedLibraryPath string  `yaml:"shared_library_path"`
	InputName         string  `yaml:"input_name"`
	OutputName        string  `yaml:"output_name"`
	OutputShape       []int64 `yaml:"output_shape"`
	PoolSize          int     `yaml:"pool_size"`
	IntraOpThreads    int     `yaml:"intra_op_threads"`
}

// SceneConfig describes the simulated AR camera and floor.
type SceneConfig struct {
	CameraHeightM  float64 `yaml:"camera_height_m"`
	CameraPitchDeg float64 `yaml:"camera_pitch_deg"`
	FovYDeg        float64 `yaml:"fov_y_deg"`
	PlaneY         float64 `yaml:"plane_y"`
	Tracking       bool    `yaml:"tracking"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MQTTConfig is disabled when Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		InstanceID: "ar-wheel",
		Detector: DetectorConfig{
			InputSize:           640,
			HasObjectness:       true,
			ObjectnessThreshold: 0.5,
			ScoreThreshold:      0.5,
			IoUThreshold:        0.4,
			ScoreMode:           "product",
			ChunkSize:           512,
		},
		Pose: PoseConfig{
			ConfidenceThreshold: 0.5,
			TopOffsetFraction:   0.2,
			RightOffsetFraction: 0.2,
			MarkerScale:         [3]float64{1, 1, 1},
		},
		Placement: PlacementConfig{ReuseRadiusM: 0.25},
		Runner:    RunnerConfig{TargetFPS: 10},
		Model: ModelConfig{
			InputName:   "images",
			OutputName:  "output0",
			OutputShape: []int64{1, 84, 8400},
			PoolSize:    1,
		},
		Scene: SceneConfig{
			CameraHeightM:  1.4,
			CameraPitchDeg: -35,
			FovYDeg:        60,
			Tracking:       true,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		MQTT: MQTTConfig{QoS: 0},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if _, ok := os.LookupEnv("AR_CONF_THRESHOLD"); ok {
		v := getEnvFloat("AR_CONF_THRESHOLD", cfg.Detector.ScoreThreshold)
		cfg.Detector.ObjectnessThreshold = v
		cfg.Detector.ScoreThreshold = v
		cfg.Pose.ConfidenceThreshold = v
	}
	cfg.Detector.IoUThreshold = getEnvFloat("AR_IOU_THRESHOLD", cfg.Detector.IoUThreshold)
	cfg.Placement.ReuseRadiusM = getEnvFloat("AR_REUSE_RADIUS", cfg.Placement.ReuseRadiusM)
	cfg.Model.Path = getEnv("AR_MODEL_PATH", cfg.Model.Path)
	cfg.Model.SharedLibraryPath = getEnv("ORT_LIB_PATH", cfg.Model.SharedLibraryPath)
	cfg.Model.PoolSize = getEnvInt("AR_POOL_SIZE", cfg.Model.PoolSize)
	cfg.Server.Addr = getEnv("AR_SERVER_ADDR", cfg.Server.Addr)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	if os.Getenv("DEBUG") == "true" {
		cfg.Log.Level = "debug"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}
