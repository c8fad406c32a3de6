// Package cmd holds the burstcam subcommands.
package cmd

import (
	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/config"
	"github.com/smazurov/burstcam/internal/device/sim"
	"github.com/smazurov/burstcam/internal/logging"
)

// NewEnumerator builds the device enumerator from the [[sim.cameras]]
// tables of configPath. Without any table a single default camera is
// simulated.
func NewEnumerator(configPath string) (*sim.Enumerator, error) {
	cams, err := config.LoadSimCameras(configPath)
	if err != nil {
		return nil, err
	}
	if len(cams) == 0 {
		cams = []sim.Config{{ID: "cam0", Model: "MER2-160-227U3M", FramesPerTrigger: 12}}
	}
	return sim.NewEnumerator(cams...), nil
}

// NewQuirks returns the default camera quirks overridden by the [quirks]
// table of configPath.
func NewQuirks(configPath string) (camera.Quirks, error) {
	q := camera.DefaultQuirks()
	if err := config.LoadQuirks(configPath, &q.TriggerOffAfterFirstFrame, &q.LegacyFamilies); err != nil {
		return camera.Quirks{}, err
	}
	return q, nil
}

// initCommandLogging sets up text logging for one-shot subcommands.
func initCommandLogging(configPath string, verbose bool) {
	cfg := config.LoadLoggingConfig(configPath)
	if verbose {
		cfg.Level = "debug"
	}
	logging.Initialize(cfg)
}
