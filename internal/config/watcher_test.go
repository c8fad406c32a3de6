package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/burstcam/internal/preset"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type presetMap = map[string]preset.Preset

func newPresetWatcher(t *testing.T, path string, opts ...WatcherOption[presetMap]) (*Watcher[presetMap], <-chan presetMap) {
	t.Helper()
	opts = append([]WatcherOption[presetMap]{WithDebounce[presetMap](30 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, preset.LoadFile, newTestLogger(), opts...)
	received := make(chan presetMap, 8)
	w.OnReload(func(p presetMap) { received <- p })
	return w, received
}

func waitReload(t *testing.T, ch <-chan presetMap) presetMap {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
		return nil
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	if err := preset.SaveFile(path, presetMap{"slow": {FrameRate: 10}}); err != nil {
		t.Fatal(err)
	}

	w, received := newPresetWatcher(t, path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := preset.SaveFile(path, presetMap{"fast": {FrameRate: 400}}); err != nil {
		t.Fatal(err)
	}
	got := waitReload(t, received)
	if got["fast"].FrameRate != 400 {
		t.Errorf("reloaded %v, want fast preset", got)
	}
}

func TestWatcherSeesFileCreatedAfterStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")

	w, received := newPresetWatcher(t, path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := preset.SaveFile(path, presetMap{"late": {Gain: 3}}); err != nil {
		t.Fatal(err)
	}
	if got := waitReload(t, received); got["late"].Gain != 3 {
		t.Errorf("reloaded %v, want late preset", got)
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.toml")

	w, received := newPresetWatcher(t, path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-received:
		t.Errorf("unexpected reload %v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherDebouncesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	var loads atomic.Int32
	loader := func(p string) (presetMap, error) {
		loads.Add(1)
		return preset.LoadFile(p)
	}
	w := NewConfigWatcher(path, loader, newTestLogger(), WithDebounce[presetMap](150*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := range 5 {
		if err := preset.SaveFile(path, presetMap{"p": {FramesQuantity: i}}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)

	if n := loads.Load(); n != 1 {
		t.Errorf("loader ran %d times, want 1", n)
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	w := NewConfigWatcher(path, preset.LoadFile, newTestLogger())

	var first, second int
	unsub := w.OnReload(func(presetMap) { first++ })
	w.OnReload(func(presetMap) { second++ })

	w.Reload()
	unsub()
	w.Reload()

	if first != 1 || second != 2 {
		t.Errorf("calls = (%d, %d), want (1, 2)", first, second)
	}
}

func TestWatcherErrorHandlerSkipsHandlers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	if err := os.WriteFile(path, []byte("presets = [not toml"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotErr error
	called := false
	w := NewConfigWatcher(path, preset.LoadFile, newTestLogger(),
		WithErrorHandler[presetMap](func(err error) { gotErr = err }))
	w.OnReload(func(presetMap) { called = true })
	w.Reload()

	if gotErr == nil {
		t.Error("expected error handler to run")
	}
	if called {
		t.Error("handlers must not run when loading fails")
	}
}

func TestWatcherStop(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "presets.toml"), preset.LoadFile, newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop = %v", err)
	}
}

func TestWatcherStartMissingDirectory(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "nope", "presets.toml"), preset.LoadFile, newTestLogger())
	if err := w.Start(); err == nil {
		_ = w.Stop()
		t.Fatal("expected error for missing directory")
	}
}
