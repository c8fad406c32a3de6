package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/coordinator"
	"github.com/smazurov/burstcam/internal/device"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/sink"
	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"
)

// CaptureOptions configures a single headless burst.
type CaptureOptions struct {
	ConfigFile  string
	CameraID    string
	Source      string
	Preset      string
	OutputDir   string
	ImageFormat string
	FITS        bool
	Wait        time.Duration
	// Progress receives short status messages while the capture runs.
	Progress func(string)
}

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var opts CaptureOptions
	var verbose bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture one burst without the API server",
		Long: `Opens the cameras, starts the stream on one of them, arms the trigger, ` +
			`and waits until the burst has been written to disk.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initCommandLogging(opts.ConfigFile, verbose)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var spinner *yacspin.Spinner
			if !verbose {
				spinner, _ = yacspin.New(yacspin.Config{
					Frequency:         100 * time.Millisecond,
					Writer:            os.Stderr,
					CharSet:           yacspin.CharSets[14],
					Suffix:            " capture",
					SuffixAutoColon:   true,
					StopCharacter:     "✓",
					StopFailCharacter: "✗",
					NotTTY:            true,
				})
			}
			if spinner != nil {
				opts.Progress = spinner.Message
				_ = spinner.Start()
			}

			dir, err := RunCapture(ctx, opts)
			if spinner != nil {
				if err != nil {
					spinner.StopFailMessage(err.Error())
					_ = spinner.StopFail()
				} else {
					spinner.StopMessage(dir)
					_ = spinner.Stop()
				}
			}
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "config.toml", "Configuration file")
	cmd.Flags().StringVar(&opts.CameraID, "camera", "", "Camera ID (default: first camera)")
	cmd.Flags().StringVarP(&opts.Source, "source", "s", device.TriggerSourceSoftware, "Trigger source (Software, Line0, Line2, Line3)")
	cmd.Flags().StringVarP(&opts.Preset, "preset", "p", "", "Preset to apply before arming")
	cmd.Flags().StringVarP(&opts.OutputDir, "output", "o", "output", "Root directory for burst folders")
	cmd.Flags().StringVarP(&opts.ImageFormat, "format", "f", "png", "Frame image format (png, tiff)")
	cmd.Flags().BoolVar(&opts.FITS, "fits", false, "Also write a FITS cube")
	cmd.Flags().DurationVarP(&opts.Wait, "wait", "w", time.Minute, "How long to wait for the burst")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	return cmd
}

// RunCapture arms one camera, waits for its burst to be saved, and
// returns the burst directory.
func RunCapture(ctx context.Context, opts CaptureOptions) (string, error) {
	logger := logging.GetLogger("capture")
	progress := func(msg string) {
		if opts.Progress != nil {
			opts.Progress(msg)
		}
	}

	enum, err := NewEnumerator(opts.ConfigFile)
	if err != nil {
		return "", err
	}
	quirks, err := NewQuirks(opts.ConfigFile)
	if err != nil {
		return "", err
	}

	bus := events.New()
	coord := coordinator.New(coordinator.Options{
		Enumerator:  enum,
		Camera:      camera.Options{OutputDir: opts.OutputDir, ArmTimeout: opts.Wait, Quirks: quirks},
		ImageFormat: opts.ImageFormat,
		FITS:        opts.FITS,
		Bus:         bus,
		Logger:      logger,
	})
	if err := coord.Start(ctx); err != nil {
		return "", err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := coord.Close(closeCtx); err != nil {
			logger.Warn("Failed to close cameras", "error", err)
		}
	}()

	id := opts.CameraID
	if id == "" {
		cams := coord.Cameras()
		if len(cams) == 0 {
			return "", errors.New("no camera available")
		}
		id = cams[0].ID()
	}

	// One export per enabled sink ends the capture.
	pending := 1
	if opts.FITS {
		pending++
	}
	exports := make(chan events.ExportFinishedEvent, 4)
	discarded := make(chan events.BurstDiscardedEvent, 1)
	defer bus.Subscribe(func(e events.ExportFinishedEvent) {
		if e.CameraID == id && (e.Kind == sink.KindImages || e.Kind == sink.KindFITS) {
			select {
			case exports <- e:
			default:
			}
		}
	})()
	defer bus.Subscribe(func(e events.BurstDiscardedEvent) {
		if e.CameraID == id {
			select {
			case discarded <- e:
			default:
			}
		}
	})()

	defer bus.Subscribe(func(e events.BurstCompletedEvent) {
		if e.CameraID == id {
			progress(fmt.Sprintf("%d frames captured (%s), saving", e.Frames, e.Reason))
		}
	})()

	err = coord.Dispatch(id, func(c *camera.Controller) error {
		if err := c.SwitchRecording(ctx); err != nil {
			return err
		}
		if opts.Preset != "" {
			if _, err := c.ApplyPreset(ctx, opts.Preset); err != nil {
				return err
			}
		}
		return c.SwitchTrigger(ctx, opts.Source)
	})
	if err != nil {
		return "", err
	}
	logger.Info("Waiting for burst", "camera", id, "source", opts.Source)
	progress("waiting for " + opts.Source + " trigger on " + id)

	timeout := time.NewTimer(opts.Wait)
	defer timeout.Stop()

	var dir string
	for pending > 0 {
		select {
		case e := <-exports:
			if e.Error != "" {
				return "", fmt.Errorf("%s export failed: %s", e.Kind, e.Error)
			}
			if e.Kind == sink.KindImages {
				dir = e.Path
			}
			progress(e.Kind + " written")
			pending--
		case e := <-discarded:
			return "", fmt.Errorf("burst discarded after %d frames (%s)", e.Frames, e.Reason)
		case <-timeout.C:
			return "", fmt.Errorf("no burst within %s", opts.Wait)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return dir, nil
}
