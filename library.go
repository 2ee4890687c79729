package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

func sharedLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// resolveSharedLibrary returns configured when set, otherwise the first
// platform library found in ./lib or next to the executable.
func resolveSharedLibrary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("onnxruntime library not found: %w", err)
		}
		return configured, nil
	}

	name := sharedLibraryName()
	dirs := []string{"lib"}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "lib"), filepath.Dir(exe))
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}
	return "", fmt.Errorf("onnxruntime library %s not found in %v, set model.shared_library_path or ORT_LIB_PATH", name, dirs)
}

// initRuntime loads the shared library and initializes the ORT environment.
// The returned func tears it down.
func initRuntime(libPath, modelPath string) (func(), error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	path, err := resolveSharedLibrary(libPath)
	if err != nil {
		return nil, err
	}

	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return func() { ort.DestroyEnvironment() }, nil
}
