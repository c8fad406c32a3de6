package preset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// file is the on-disk layout of the user preset file.
type file struct {
	Version int               `toml:"version"`
	Presets map[string]Preset `toml:"presets"`
}

// LoadFile reads user presets from path. A missing file yields no presets.
func LoadFile(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Preset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}
	if f.Presets == nil {
		f.Presets = map[string]Preset{}
	}
	return f.Presets, nil
}

// SaveFile writes presets to path, replacing its content.
func SaveFile(path string, presets map[string]Preset) error {
	data, err := toml.Marshal(file{Version: 1, Presets: presets})
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create presets directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write presets file: %w", err)
	}
	return nil
}
