package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const simConfig = `
[[sim.cameras]]
id = "left"
model = "MER2-160-227U3M"
sensor_width = 64
sensor_height = 32
frames_per_trigger = 12

[[sim.cameras]]
id = "right"
model = "MER-131-210U3M"
sensor_width = 64
sensor_height = 32
frames_per_trigger = 12
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(simConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewEnumeratorFromConfig(t *testing.T) {
	enum, err := NewEnumerator(writeConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	infos, err := enum.Enumerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 || infos[0].ID != "left" || infos[1].ID != "right" {
		t.Errorf("unexpected cameras %+v", infos)
	}
}

func TestNewEnumeratorDefaultsToOneCamera(t *testing.T) {
	enum, err := NewEnumerator(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	infos, err := enum.Enumerate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != "cam0" {
		t.Errorf("unexpected cameras %+v", infos)
	}
}

func TestRunCaptureWritesBurst(t *testing.T) {
	out := t.TempDir()
	var (
		mu       sync.Mutex
		messages []string
	)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	dir, err := RunCapture(ctx, CaptureOptions{
		ConfigFile:  writeConfig(t),
		CameraID:    "left",
		Source:      "Software",
		OutputDir:   out,
		ImageFormat: "png",
		FITS:        true,
		Wait:        15 * time.Second,
		Progress: func(msg string) {
			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dir, filepath.Join(out, "left")) {
		t.Errorf("burst dir = %q, want under %q", dir, out)
	}

	frames, err := filepath.Glob(filepath.Join(dir, "Frame*.png"))
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 10 {
		t.Errorf("wrote %d frames, want 10", len(frames))
	}
	if _, err := os.Stat(filepath.Join(dir, "burst.fits")); err != nil {
		t.Errorf("FITS cube missing: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(messages) == 0 {
		t.Error("expected progress messages")
	}
}

func TestRunCaptureUnknownCamera(t *testing.T) {
	_, err := RunCapture(context.Background(), CaptureOptions{
		ConfigFile: writeConfig(t),
		CameraID:   "nope",
		OutputDir:  t.TempDir(),
		Wait:       time.Second,
	})
	if err == nil {
		t.Fatal("expected error for unknown camera")
	}
}

func TestDefaultPresets(t *testing.T) {
	presets, err := DefaultPresets(context.Background(), writeConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"left-default", "right-default"} {
		p, ok := presets[name]
		if !ok {
			t.Fatalf("missing preset %q in %v", name, presets)
		}
		if p.Width != 64 {
			t.Errorf("%s width = %d, want 64", name, p.Width)
		}
	}
}
