package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/arsession"
	"github.com/Tutortoise/ar-wheel-placement/detections"
	"github.com/Tutortoise/ar-wheel-placement/emitter"
	"github.com/Tutortoise/ar-wheel-placement/models"
	"github.com/Tutortoise/ar-wheel-placement/pipeline"
)

const maxUploadBytes = 10 << 20

type AppState struct {
	Runner       *pipeline.Runner
	Session      *arsession.Session
	Preprocessor *detections.Preprocessor
	InputSize    int
	Pool         *ModelSessionPool
	MQTT         *emitter.MQTTSink
	Log          logrus.FieldLogger
}

type FrameResponse struct {
	Accepted bool   `json:"accepted"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

type MarkersResponse struct {
	FrameID string                 `json:"frame_id"`
	At      time.Time              `json:"at"`
	Markers []models.RenderCommand `json:"markers"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *AppState) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/frames", s.handleFrame).Methods("POST")
	r.HandleFunc("/markers", s.handleMarkers).Methods("GET")
	r.HandleFunc("/markers/clear", s.handleClear).Methods("POST")
	r.HandleFunc("/session/{action:pause|resume}", s.handleSession).Methods("POST")
	s.addMonitoringRoutes(r)
	return r
}

// submitImage preprocesses img, captures the current AR frame and offers
// both to the runner.
func (s *AppState) submitImage(img image.Image) (FrameResponse, int) {
	input := s.Preprocessor.Process(img)
	frame := s.Session.Capture()
	size := int64(s.InputSize)
	tensor := pipeline.Tensor{Data: input, Shape: []int64{1, 3, size, size}}

	if s.Runner.Submit(tensor, frame) {
		return FrameResponse{Accepted: true, Status: "accepted", Message: MsgFrameAccepted}, http.StatusAccepted
	}
	if frame.TrackingState() != arsession.Tracking {
		return FrameResponse{Status: "not_tracking", Message: MsgNotTracking}, http.StatusConflict
	}
	return FrameResponse{Status: "dropped", Message: MsgFrameDropped}, http.StatusTooManyRequests
}

func (s *AppState) handleFrame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	contentType := r.Header.Get("Content-Type")

	var imgBytes []byte
	var err error

	switch {
	case strings.HasPrefix(contentType, "application/json"):
		imgBytes, err = handleJSONRequest(r)
	case strings.HasPrefix(contentType, "multipart/form-data"):
		imgBytes, err = handleMultipartRequest(r)
	default:
		imgBytes, err = handleRawRequest(r)
	}
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	img, err := decodeImage(imgBytes)
	if err != nil {
		sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
		return
	}

	resp, status := s.submitImage(img)
	s.Log.WithFields(logrus.Fields{
		"status": resp.Status,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("frame received")

	sendJSON(w, status, resp)
}

func (s *AppState) handleMarkers(w http.ResponseWriter, _ *http.Request) {
	snap := s.Runner.Latest()
	markers := snap.Commands
	if markers == nil {
		markers = []models.RenderCommand{}
	}
	sendJSON(w, http.StatusOK, MarkersResponse{FrameID: snap.FrameID, At: snap.At, Markers: markers})
}

func (s *AppState) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.Runner.Clear(ctx); err != nil {
		sendErrorResponse(w, "clear_failed", err.Error(), http.StatusServiceUnavailable)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"message": MsgMarkersCleared})
}

func (s *AppState) handleSession(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["action"] {
	case "pause":
		s.Session.Pause()
	case "resume":
		s.Session.Resume()
	}
	state := s.Session.TrackingState()
	s.Log.WithField("tracking", state.String()).Info("ar session state changed")
	sendJSON(w, http.StatusOK, map[string]string{"tracking": state.String()})
}

func (s *AppState) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	stats := s.Runner.Stats()
	t := stats.LastTimings
	response := map[string]interface{}{
		"pipeline": stats,
		"tracking": s.Session.TrackingState().String(),
		"last_timings_ms": map[string]float64{
			"inference": durationMs(t.Inference),
			"decode":    durationMs(t.Decode),
			"resolve":   durationMs(t.Resolve),
			"placement": durationMs(t.Placement),
			"total":     durationMs(t.Total),
		},
	}
	if s.Pool != nil {
		response["pool"] = s.Pool.GetMetrics()
	}
	if s.MQTT != nil {
		response["mqtt"] = s.MQTT.Stats()
	}
	sendJSON(w, http.StatusOK, response)
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.Image == "" {
		return nil, fmt.Errorf("image field is empty")
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty request body")
	}
	return data, nil
}

func decodeImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
