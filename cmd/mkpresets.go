package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/coordinator"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/preset"
	"github.com/spf13/cobra"
)

// CreateMkPresetsCmd creates the mkpresets command.
func CreateMkPresetsCmd() *cobra.Command {
	var configFile, output string
	var force bool

	cmd := &cobra.Command{
		Use:   "mkpresets",
		Short: "Write a user preset file seeded from the attached cameras",
		Long: `Opens every camera and writes its default parameters as a user preset named ` +
			`"<camera>-default". The file can be edited and loaded with presets.file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initCommandLogging(configFile, false)

			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists, use --force to overwrite", output)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			presets, err := DefaultPresets(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			if err := preset.SaveFile(output, presets); err != nil {
				return err
			}
			fmt.Printf("Wrote %d presets to %s\n", len(presets), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.toml", "Configuration file")
	cmd.Flags().StringVarP(&output, "output", "o", "presets.toml", "Preset file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

// DefaultPresets opens every configured camera and returns its default
// preset keyed "<camera>-default".
func DefaultPresets(ctx context.Context, configFile string) (map[string]preset.Preset, error) {
	enum, err := NewEnumerator(configFile)
	if err != nil {
		return nil, err
	}
	quirks, err := NewQuirks(configFile)
	if err != nil {
		return nil, err
	}
	coord := coordinator.New(coordinator.Options{
		Enumerator: enum,
		Camera:     camera.Options{Quirks: quirks},
		Logger:     logging.GetLogger("mkpresets"),
	})
	if err := coord.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Close(closeCtx)
	}()

	presets := make(map[string]preset.Preset)
	for _, c := range coord.Cameras() {
		presets[c.ID()+"-"+preset.Default] = c.Presets().MustGet(preset.Default)
	}
	if len(presets) == 0 {
		return nil, errors.New("no camera available")
	}
	return presets, nil
}
