// Package preset holds named acquisition parameter snapshots for a camera.
package preset

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Built-in preset slots. They always exist in a Store.
const (
	Default = "default"
	Preview = "preview"
	Trigger = "trigger"
)

// Parameter names accepted by Preset.Get and Preset.Set.
const (
	ParamWidth              = "width"
	ParamHeight             = "height"
	ParamOffsetX            = "offsetX"
	ParamOffsetY            = "offsetY"
	ParamFrameRate          = "frameRate"
	ParamExposureTime       = "exposureTime"
	ParamGain               = "gain"
	ParamTriggerDelay       = "triggerDelay"
	ParamFramesQuantity     = "framesQuantity"
	ParamTriggerTimeSeconds = "triggerTimeSeconds"
)

// Params lists every parameter in application order.
var Params = []string{
	ParamWidth, ParamHeight, ParamOffsetX, ParamOffsetY,
	ParamFrameRate, ParamExposureTime, ParamGain, ParamTriggerDelay,
	ParamFramesQuantity, ParamTriggerTimeSeconds,
}

// Preset is a snapshot of acquisition parameters.
// FramesQuantity and TriggerTimeSeconds of zero mean unbounded.
type Preset struct {
	Width              int     `toml:"width" json:"width" doc:"ROI width in pixels"`
	Height             int     `toml:"height" json:"height" doc:"ROI height in pixels"`
	OffsetX            int     `toml:"offset_x" json:"offset_x" doc:"ROI horizontal offset"`
	OffsetY            int     `toml:"offset_y" json:"offset_y" doc:"ROI vertical offset"`
	FrameRate          float64 `toml:"frame_rate" json:"frame_rate" doc:"Acquisition frame rate (fps)"`
	ExposureTime       float64 `toml:"exposure_time" json:"exposure_time" doc:"Exposure time (µs)"`
	Gain               float64 `toml:"gain" json:"gain" doc:"Analog gain (dB)"`
	TriggerDelay       float64 `toml:"trigger_delay" json:"trigger_delay" doc:"Trigger delay (µs)"`
	FramesQuantity     int     `toml:"frames_quantity" json:"frames_quantity" doc:"Frames per burst, 0 for unbounded"`
	TriggerTimeSeconds float64 `toml:"trigger_time_seconds,omitempty" json:"trigger_time_seconds,omitempty" doc:"Maximum burst duration, 0 for unbounded"`
}

// Get returns a parameter value by name.
func (p Preset) Get(param string) (float64, error) {
	switch param {
	case ParamWidth:
		return float64(p.Width), nil
	case ParamHeight:
		return float64(p.Height), nil
	case ParamOffsetX:
		return float64(p.OffsetX), nil
	case ParamOffsetY:
		return float64(p.OffsetY), nil
	case ParamFrameRate:
		return p.FrameRate, nil
	case ParamExposureTime:
		return p.ExposureTime, nil
	case ParamGain:
		return p.Gain, nil
	case ParamTriggerDelay:
		return p.TriggerDelay, nil
	case ParamFramesQuantity:
		return float64(p.FramesQuantity), nil
	case ParamTriggerTimeSeconds:
		return p.TriggerTimeSeconds, nil
	default:
		return 0, fmt.Errorf("unknown preset parameter %q", param)
	}
}

// Set assigns a parameter value by name. Integer parameters are truncated.
func (p *Preset) Set(param string, value float64) error {
	switch param {
	case ParamWidth:
		p.Width = int(value)
	case ParamHeight:
		p.Height = int(value)
	case ParamOffsetX:
		p.OffsetX = int(value)
	case ParamOffsetY:
		p.OffsetY = int(value)
	case ParamFrameRate:
		p.FrameRate = value
	case ParamExposureTime:
		p.ExposureTime = value
	case ParamGain:
		p.Gain = value
	case ParamTriggerDelay:
		p.TriggerDelay = value
	case ParamFramesQuantity:
		p.FramesQuantity = int(value)
	case ParamTriggerTimeSeconds:
		p.TriggerTimeSeconds = value
	default:
		return fmt.Errorf("unknown preset parameter %q", param)
	}
	return nil
}

// UnknownPresetError is returned when a preset name is not in the store.
type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("unknown preset %q", e.Name)
}

// IsBuiltin reports whether name is one of the slots every store carries.
func IsBuiltin(name string) bool {
	return name == Default || name == Preview || name == Trigger
}

// Store holds the named presets of one camera.
type Store struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

// NewStore creates a store whose built-in slots all start as def.
func NewStore(def Preset) *Store {
	return &Store{
		presets: map[string]Preset{
			Default: def,
			Preview: def,
			Trigger: def,
		},
	}
}

// Get returns a copy of the named preset.
func (s *Store) Get(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[name]
	if !ok {
		return Preset{}, &UnknownPresetError{Name: name}
	}
	return p, nil
}

// MustGet returns the named preset and panics if it does not exist.
// Only use it for built-in slots.
func (s *Store) MustGet(name string) Preset {
	p, err := s.Get(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Change replaces an existing preset.
func (s *Store) Change(name string, p Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[name]; !ok {
		return &UnknownPresetError{Name: name}
	}
	s.presets[name] = p
	return nil
}

// Add inserts or overwrites a preset.
func (s *Store) Add(name string, p Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[name] = p
}

// Remove deletes a user preset. Built-in slots cannot be removed.
func (s *Store) Remove(name string) error {
	if IsBuiltin(name) {
		return fmt.Errorf("preset %q is built in", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[name]; !ok {
		return &UnknownPresetError{Name: name}
	}
	delete(s.presets, name)
	return nil
}

// Names returns all preset names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.presets))
}

// Snapshot returns a copy of every preset.
func (s *Store) Snapshot() map[string]Preset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.presets)
}

// Merge adds user presets, skipping built-in names. It returns the number merged.
func (s *Store) Merge(presets map[string]Preset) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for name, p := range presets {
		if IsBuiltin(name) {
			continue
		}
		s.presets[name] = p
		n++
	}
	return n
}

// Serialize writes the named preset to path as TOML.
func (s *Store) Serialize(name, path string) error {
	p, err := s.Get(name)
	if err != nil {
		return err
	}
	return Write(path, p)
}

// Write encodes p as TOML into path, creating parent directories.
func Write(path string, p Preset) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}
	return nil
}

// Read decodes a single preset written by Write.
func Read(path string) (Preset, error) {
	var p Preset
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read preset file: %w", err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse preset file: %w", err)
	}
	return p, nil
}
