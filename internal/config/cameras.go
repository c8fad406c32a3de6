package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/burstcam/internal/device/sim"
)

// simSection mirrors the [[sim.cameras]] array of tables.
type simSection struct {
	Sim struct {
		Cameras []sim.Config `toml:"cameras"`
	} `toml:"sim"`
}

// LoadSimCameras reads the simulated camera definitions from the config file.
// A missing file or section yields no cameras.
func LoadSimCameras(configPath string) ([]sim.Config, error) {
	if configPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var section simSection
	if err := toml.Unmarshal(data, &section); err != nil {
		return nil, fmt.Errorf("failed to parse sim cameras: %w", err)
	}
	return section.Sim.Cameras, nil
}

// LoadQuirks overrides trigger and legacy with the quirks.trigger_off_after_first_frame
// and quirks.legacy_families keys of the config file. Keys that are absent
// leave the lists untouched; an empty string or array clears them.
func LoadQuirks(configPath string, trigger, legacy *[]string) error {
	if configPath == "" {
		return nil
	}
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var raw struct {
		Quirks map[string]any `toml:"quirks"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse quirks: %w", err)
	}
	for key, dst := range map[string]*[]string{
		"trigger_off_after_first_frame": trigger,
		"legacy_families":               legacy,
	} {
		if v, ok := raw.Quirks[key]; ok {
			*dst = familyList(v)
		}
	}
	return nil
}

// familyList accepts a TOML array or a comma-separated string.
func familyList(value any) []string {
	if list, ok := stringList(value); ok {
		return list
	}
	s, _ := value.(string)
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
