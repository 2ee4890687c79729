package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSharedLibrary(t *testing.T) {
	lib := filepath.Join(t.TempDir(), sharedLibraryName())
	if err := os.WriteFile(lib, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := resolveSharedLibrary(lib)
	if err != nil || got != lib {
		t.Errorf("resolveSharedLibrary(%q) = %q, %v", lib, got, err)
	}
	if _, err := resolveSharedLibrary(lib + ".missing"); err == nil {
		t.Error("missing configured library accepted")
	}
}

func TestInitRuntimeMissingModel(t *testing.T) {
	if _, err := initRuntime("", filepath.Join(t.TempDir(), "none.onnx")); err == nil {
		t.Error("initRuntime() accepted a missing model")
	}
}
