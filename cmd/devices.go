package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/smazurov/burstcam/internal/device"
	"github.com/spf13/cobra"
)

// DeviceEntry is one line of the devices listing.
type DeviceEntry struct {
	device.Info
	Family string `json:"family"`
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var configFile string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached cameras",
		Long:  `Enumerates the cameras the service would open and prints their model, serial number, and quirk family.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initCommandLogging(configFile, false)

			enum, err := NewEnumerator(configFile)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			infos, err := enum.Enumerate(ctx)
			if err != nil {
				return fmt.Errorf("failed to enumerate cameras: %w", err)
			}
			entries := make([]DeviceEntry, len(infos))
			for i, info := range infos {
				entries[i] = DeviceEntry{Info: info, Family: device.Family(info.Model)}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				fmt.Println("No cameras found")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-10s %-20s %-12s %s\n", e.ID, e.Model, e.Serial, e.Family)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.toml", "Configuration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
