package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/smazurov/burstcam/internal/config"
	"github.com/smazurov/burstcam/internal/preset"
)

// presetSync keeps the user preset file and every camera's store in step.
type presetSync struct {
	path    string
	logger  *slog.Logger
	watcher *config.Watcher[map[string]preset.Preset]

	mu      sync.Mutex
	presets map[string]preset.Preset
}

func newPresetSync(path string, logger *slog.Logger) *presetSync {
	return &presetSync{path: path, logger: logger, presets: map[string]preset.Preset{}}
}

// start loads the file once and watches it for edits. The file does not
// have to exist yet.
func (s *presetSync) start(apply func(loaded, removed map[string]preset.Preset)) {
	if s.path == "" {
		return
	}
	s.watcher = config.NewConfigWatcher(s.path, preset.LoadFile, s.logger)
	s.watcher.OnReload(func(loaded map[string]preset.Preset) {
		apply(loaded, s.replace(loaded))
	})
	s.watcher.Reload()

	if err := s.watcher.Start(); err != nil {
		s.logger.Warn("Failed to watch user preset file", "path", s.path, "error", err)
	}
}

func (s *presetSync) stop() {
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
}

// replace stores loaded and returns the presets that disappeared.
func (s *presetSync) replace(loaded map[string]preset.Preset) map[string]preset.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make(map[string]preset.Preset)
	for name, p := range s.presets {
		if _, ok := loaded[name]; !ok {
			removed[name] = p
		}
	}
	s.presets = maps.Clone(loaded)
	return removed
}

func (s *presetSync) current() map[string]preset.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.presets)
}

// save adds p under name and rewrites the file.
func (s *presetSync) save(name string, p preset.Preset) error {
	if s.path == "" {
		return errors.New("no user preset file configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.presets)
	next[name] = p
	if err := preset.SaveFile(s.path, next); err != nil {
		return err
	}
	s.presets = next
	return nil
}

// delete drops name and rewrites the file.
func (s *presetSync) delete(name string) error {
	if s.path == "" {
		return errors.New("no user preset file configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[name]; !ok {
		return &preset.UnknownPresetError{Name: name}
	}
	next := maps.Clone(s.presets)
	delete(next, name)
	if err := preset.SaveFile(s.path, next); err != nil {
		return err
	}
	s.presets = next
	return nil
}

func (c *Coordinator) applyUserPresets(loaded, removed map[string]preset.Preset) {
	for _, ctrl := range c.Cameras() {
		store := ctrl.Presets()
		for name := range removed {
			_ = store.Remove(name)
		}
		store.Merge(loaded)
	}
	c.logger.Info("User presets loaded", "count", len(loaded), "removed", len(removed))
}

// SavePreset stores the trigger preset of camera id as a user preset
// available to every camera.
func (c *Coordinator) SavePreset(id, name string) error {
	if preset.IsBuiltin(name) {
		return fmt.Errorf("preset %q is built in", name)
	}
	ctrl, err := c.Camera(id)
	if err != nil {
		return err
	}
	p := ctrl.Presets().MustGet(preset.Trigger)
	if err := c.presets.save(name, p); err != nil {
		return err
	}
	for _, ctrl := range c.Cameras() {
		ctrl.Presets().Add(name, p)
	}
	return nil
}

// DeletePreset removes a user preset from the file and every camera.
func (c *Coordinator) DeletePreset(name string) error {
	if err := c.presets.delete(name); err != nil {
		return err
	}
	for _, ctrl := range c.Cameras() {
		_ = ctrl.Presets().Remove(name)
	}
	return nil
}

// UserPresets returns the presets loaded from the user preset file.
func (c *Coordinator) UserPresets() map[string]preset.Preset {
	return c.presets.current()
}
