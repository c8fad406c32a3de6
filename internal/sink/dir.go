// Package sink writes completed bursts to disk, FITS cubes, and video files.
package sink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var nextDirMu sync.Mutex

// NextDir creates and returns the first unused burst directory
// <root>/<cameraID>/_<n>, counting n up from 0.
func NextDir(root, cameraID string) (string, error) {
	nextDirMu.Lock()
	defer nextDirMu.Unlock()

	base := filepath.Join(root, cameraID)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("failed to create camera directory: %w", err)
	}
	for n := 0; ; n++ {
		dir := filepath.Join(base, fmt.Sprintf("_%d", n))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create burst directory: %w", err)
		}
	}
}
