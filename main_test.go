package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunReturnsStartupErrors(t *testing.T) {
	dir := t.TempDir()
	badConfig := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badConfig, []byte("detector:\n  score_threshold: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	missingModel := filepath.Join(dir, "missing-model.yaml")
	body := "model:\n  path: " + filepath.Join(dir, "none.onnx") + "\n"
	if err := os.WriteFile(missingModel, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"missing config file", filepath.Join(dir, "absent.yaml"), "failed to load config"},
		{"invalid config", badConfig, "failed to load config"},
		{"missing model", missingModel, "failed to initialize ONNX Runtime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AR_MODEL_PATH", "")
			err := run(tt.path, "")
			if err == nil {
				t.Fatal("run() returned nil error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
