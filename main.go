package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/arsession"
	"github.com/Tutortoise/ar-wheel-placement/config"
	"github.com/Tutortoise/ar-wheel-placement/detections"
	"github.com/Tutortoise/ar-wheel-placement/emitter"
	"github.com/Tutortoise/ar-wheel-placement/pipeline"
	"github.com/Tutortoise/ar-wheel-placement/pose"
)

func initLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// newScene builds the simulated AR session the frame endpoint captures from.
// Its image space matches the view the resolver maps detections into.
func newScene(cfg *config.Config) *arsession.Session {
	w, h := cfg.Pose.ViewWidth, cfg.Pose.ViewHeight
	if w == 0 || h == 0 {
		w, h = float64(cfg.Detector.InputSize), float64(cfg.Detector.InputSize)
	}
	camera := arsession.CameraLookingDown(cfg.Scene.CameraHeightM, cfg.Scene.CameraPitchDeg, cfg.Scene.FovYDeg, w, h)
	session := arsession.NewSession(camera, arsession.FloorPlane(cfg.Scene.PlaneY))
	if !cfg.Scene.Tracking {
		session.Pause()
	}
	return session
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	replayDir := flag.String("replay", "", "directory of images to replay as camera frames")
	flag.Parse()

	if err := run(*configPath, *replayDir); err != nil {
		logrus.Fatal(err)
	}
}

// run wires the service and serves until the process is signalled. Every
// resource acquired here is released before it returns.
func run(configPath, replayDir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := initLogger(cfg.Log.Level)

	teardown, err := initRuntime(cfg.Model.SharedLibraryPath, cfg.Model.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	defer teardown()

	pool, err := NewModelSessionPool(cfg.SessionConfig(), cfg.Model.PoolSize, log.WithField("component", "pool"))
	if err != nil {
		return fmt.Errorf("failed to create model session pool: %w", err)
	}
	defer pool.Destroy()

	decoder := detections.NewDecoder(cfg.DecoderConfig())
	resolver := pose.NewResolver(cfg.PoseConfig(), log.WithField("component", "pose"))
	proc := pipeline.NewProcessor(cfg.PipelineConfig(), pool, decoder, resolver, log.WithField("component", "pipeline"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []pipeline.Sink
	var mqttSink *emitter.MQTTSink
	if cfg.MQTT.Broker != "" {
		mqttSink = emitter.NewMQTTSink(cfg.EmitterConfig(), log.WithField("component", "mqtt"))
		if err := mqttSink.Connect(ctx); err != nil {
			log.WithError(err).Warn("mqtt unavailable, render snapshots are not published until it connects")
		}
		defer mqttSink.Disconnect()
		sinks = append(sinks, mqttSink)
	}

	runner := pipeline.NewRunner(proc, log.WithField("component", "runner"), sinks...)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runner: %w", err)
	}
	defer runner.Stop()

	state := &AppState{
		Runner:       runner,
		Session:      newScene(cfg),
		Preprocessor: detections.NewPreprocessor(cfg.Detector.InputSize, cfg.Detector.InputSize),
		InputSize:    cfg.Detector.InputSize,
		Pool:         pool,
		MQTT:         mqttSink,
		Log:          log,
	}

	if replayDir != "" {
		go func() {
			if err := state.replay(ctx, replayDir, cfg.Runner.TargetFPS); err != nil {
				log.WithError(err).Error("replay stopped")
			}
		}()
	}

	srv := &http.Server{
		Handler:      state.routes(),
		Addr:         cfg.Server.Addr,
		WriteTimeout: cfg.Server.WriteTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":         srv.Addr,
		"model":        cfg.Model.Path,
		"reuse_radius": cfg.Placement.ReuseRadiusM,
	}).Info("starting server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info("shutting down")
	return nil
}
