package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tutortoise/ar-wheel-placement/arsession"
	"github.com/Tutortoise/ar-wheel-placement/detections"
	"github.com/Tutortoise/ar-wheel-placement/pipeline"
	"github.com/Tutortoise/ar-wheel-placement/pose"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	return log
}

// wheelOutput is one confident box low in a 640x640 view.
func wheelOutput() pipeline.Tensor {
	return pipeline.Tensor{
		Data:  []float32{320, 420, 60, 60, 0.9, 0.9},
		Shape: []int64{1, 6, 1},
	}
}

func newTestState(t *testing.T, infer pipeline.Inference) *AppState {
	t.Helper()
	log := quietLogger()
	proc := pipeline.NewProcessor(
		pipeline.DefaultConfig(),
		infer,
		detections.NewDecoder(detections.DefaultConfig()),
		pose.NewResolver(pose.DefaultConfig(), log),
		log,
	)
	runner := pipeline.NewRunner(proc, log)
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { runner.Stop() })

	camera := arsession.CameraLookingDown(1.4, -35, 60, 640, 640)
	return &AppState{
		Runner:       runner,
		Session:      arsession.NewSession(camera, arsession.FloorPlane(0)),
		Preprocessor: detections.NewPreprocessor(32, 32),
		InputSize:    32,
		Log:          log,
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 20, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func waitApplied(t *testing.T, s *AppState, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Runner.Stats().Applied < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d applied frames", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHandleFrameBodies(t *testing.T) {
	img := pngBytes(t)

	jsonBody, _ := json.Marshal(map[string]string{"image": base64.StdEncoding.EncodeToString(img)})

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, _ := mw.CreateFormFile("file", "frame.png")
	fw.Write(img)
	mw.Close()

	tests := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"raw", "image/png", img},
		{"json", "application/json", jsonBody},
		{"multipart", mw.FormDataContentType(), form.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState(t, pipeline.InferenceFunc(func(ctx context.Context, in pipeline.Tensor) (pipeline.Tensor, error) {
				if len(in.Data) != 3*32*32 {
					t.Errorf("input length %d, want %d", len(in.Data), 3*32*32)
				}
				return wheelOutput(), nil
			}))
			rec := do(t, s.routes(), "POST", "/frames", tt.contentType, tt.body)
			if rec.Code != http.StatusAccepted {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var resp FrameResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if !resp.Accepted || resp.Status != "accepted" {
				t.Errorf("response = %+v", resp)
			}
			waitApplied(t, s, 1)

			rec = do(t, s.routes(), "GET", "/markers", "", nil)
			var markers MarkersResponse
			if err := json.NewDecoder(rec.Body).Decode(&markers); err != nil {
				t.Fatalf("failed to decode markers: %v", err)
			}
			if len(markers.Markers) != 1 || !markers.Markers[0].Visible {
				t.Errorf("markers = %+v, want one visible marker", markers.Markers)
			}
		})
	}
}

func TestHandleFrameInvalid(t *testing.T) {
	s := newTestState(t, pipeline.InferenceFunc(func(ctx context.Context, in pipeline.Tensor) (pipeline.Tensor, error) {
		return wheelOutput(), nil
	}))
	h := s.routes()

	tests := []struct {
		name        string
		contentType string
		body        []byte
		code        string
	}{
		{"not an image", "image/png", []byte("definitely not a png"), "invalid_image"},
		{"empty body", "", nil, "invalid_request"},
		{"bad json", "application/json", []byte("{"), "invalid_request"},
		{"bad base64", "application/json", []byte(`{"image":"%%%"}`), "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/frames", tt.contentType, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp ErrorResponse
			json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
	if s.Runner.Stats().Submitted != 0 {
		t.Error("invalid requests reached the runner")
	}
}

func TestHandleFrameDropped(t *testing.T) {
	release := make(chan struct{})
	s := newTestState(t, pipeline.InferenceFunc(func(ctx context.Context, in pipeline.Tensor) (pipeline.Tensor, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return wheelOutput(), nil
	}))
	defer close(release)
	h := s.routes()
	img := pngBytes(t)

	if rec := do(t, h, "POST", "/frames", "image/png", img); rec.Code != http.StatusAccepted {
		t.Fatalf("first frame status = %d", rec.Code)
	}
	rec := do(t, h, "POST", "/frames", "image/png", img)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second frame status = %d, want 429", rec.Code)
	}
	var resp FrameResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Accepted || resp.Status != "dropped" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleSessionPauseResume(t *testing.T) {
	s := newTestState(t, pipeline.InferenceFunc(func(ctx context.Context, in pipeline.Tensor) (pipeline.Tensor, error) {
		return wheelOutput(), nil
	}))
	h := s.routes()
	img := pngBytes(t)

	rec := do(t, h, "POST", "/session/pause", "", nil)
	if rec.Code != http.StatusOK || s.Session.TrackingState() != arsession.NotTracking {
		t.Fatalf("pause: status %d, tracking %v", rec.Code, s.Session.TrackingState())
	}
	if rec := do(t, h, "POST", "/frames", "image/png", img); rec.Code != http.StatusConflict {
		t.Errorf("frame while paused: status %d, want 409", rec.Code)
	}
	if s.Runner.Stats().SkippedNotTracking != 1 {
		t.Errorf("SkippedNotTracking = %d, want 1", s.Runner.Stats().SkippedNotTracking)
	}

	do(t, h, "POST", "/session/resume", "", nil)
	if rec := do(t, h, "POST", "/frames", "image/png", img); rec.Code != http.StatusAccepted {
		t.Errorf("frame after resume: status %d, want 202", rec.Code)
	}

	if rec := do(t, h, "POST", "/session/restart", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action: status %d, want 404", rec.Code)
	}
}

func TestHandleClearAndMetrics(t *testing.T) {
	s := newTestState(t, pipeline.InferenceFunc(func(ctx context.Context, in pipeline.Tensor) (pipeline.Tensor, error) {
		return wheelOutput(), nil
	}))
	h := s.routes()

	do(t, h, "POST", "/frames", "image/png", pngBytes(t))
	waitApplied(t, s, 1)

	if rec := do(t, h, "POST", "/markers/clear", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	var markers MarkersResponse
	json.NewDecoder(do(t, h, "GET", "/markers", "", nil).Body).Decode(&markers)
	if len(markers.Markers) != 0 {
		t.Errorf("got %d markers after clear", len(markers.Markers))
	}

	rec := do(t, h, "GET", "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	var metrics struct {
		Pipeline pipeline.Stats `json:"pipeline"`
		Tracking string         `json:"tracking"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&metrics); err != nil {
		t.Fatalf("failed to decode metrics: %v", err)
	}
	if metrics.Pipeline.Applied != 1 || metrics.Pipeline.Created != 1 || metrics.Tracking != "tracking" {
		t.Errorf("metrics = %+v", metrics)
	}
}
