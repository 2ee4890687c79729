package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

var replayExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

func listReplayFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !replayExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// replay feeds the images of dir to the runner at fps, looping until ctx is
// done. Frames the runner refuses are dropped like camera frames would be.
func (s *AppState) replay(ctx context.Context, dir string, fps int) error {
	files, err := listReplayFrames(dir)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	s.Log.WithField("frames", len(files)).WithField("fps", fps).Info("replaying frames")

	for i := 0; ; i = (i + 1) % len(files) {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		img, err := imaging.Open(files[i], imaging.AutoOrientation(true))
		if err != nil {
			s.Log.WithError(err).WithField("file", files[i]).Warn("skipping unreadable frame")
			continue
		}
		resp, _ := s.submitImage(img)
		s.Log.WithField("file", filepath.Base(files[i])).WithField("status", resp.Status).Debug("replayed frame")
	}
}
