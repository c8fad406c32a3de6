package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/burstcam/cmd"
	"github.com/smazurov/burstcam/internal/api"
	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/config"
	"github.com/smazurov/burstcam/internal/coordinator"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/metrics"
	"github.com/smazurov/burstcam/internal/process"
	"github.com/smazurov/burstcam/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Capture settings
	CaptureOutputDir          string        `help:"Root directory for burst folders" default:"output" toml:"capture.output_dir" env:"CAPTURE_OUTPUT_DIR"`
	CaptureMinFrames          int           `help:"Smallest burst that is kept" default:"5" toml:"capture.min_frames" env:"CAPTURE_MIN_FRAMES"`
	CaptureTimeout            time.Duration `help:"Burst timeout measured from the first frame" default:"12s" toml:"capture.timeout" env:"CAPTURE_TIMEOUT"`
	CaptureArmTimeout         time.Duration `help:"Disarm when no trigger arrives in time (0 waits forever)" default:"0s" toml:"capture.arm_timeout" env:"CAPTURE_ARM_TIMEOUT"`
	CapturePreviewFPS         int           `help:"Preview delivery rate" default:"25" toml:"capture.preview_fps" env:"CAPTURE_PREVIEW_FPS"`
	CapturePreviewQueue       int           `help:"Preview queue length" default:"8" toml:"capture.preview_queue" env:"CAPTURE_PREVIEW_QUEUE"`
	CapturePreviewExposure    int           `help:"Exposure time in us used while previewing" default:"40000" toml:"capture.preview_exposure" env:"CAPTURE_PREVIEW_EXPOSURE"`
	CapturePreviewQuality     int           `help:"JPEG quality of preview images" default:"80" toml:"capture.preview_quality" env:"CAPTURE_PREVIEW_QUALITY"`
	CaptureOperatingFrameRate int           `help:"Frame rate used while previewing" default:"24" toml:"capture.operating_frame_rate" env:"CAPTURE_OPERATING_FRAME_RATE"`
	CaptureImageFormat        string        `help:"Frame image format (png, tiff)" default:"png" toml:"capture.image_format" env:"CAPTURE_IMAGE_FORMAT"`
	CaptureSaveWorkers        int           `help:"Parallel frame writers" default:"4" toml:"capture.save_workers" env:"CAPTURE_SAVE_WORKERS"`
	CaptureFITS               bool          `help:"Also write each burst as a FITS cube" default:"false" toml:"capture.fits" env:"CAPTURE_FITS"`
	CaptureOpenRetry          time.Duration `help:"How long a failing camera open is retried" default:"5s" toml:"capture.open_retry" env:"CAPTURE_OPEN_RETRY"`

	// Quirks settings
	QuirksTriggerOffAfterFirstFrame string `help:"Comma-separated families that need trigger mode off after the first frame" default:"MER" toml:"quirks.trigger_off_after_first_frame" env:"QUIRKS_TRIGGER_OFF_AFTER_FIRST_FRAME"`
	QuirksLegacyFamilies            string `help:"Comma-separated families without burst selector, frame count, and exposure mode" default:"MER" toml:"quirks.legacy_families" env:"QUIRKS_LEGACY_FAMILIES"`

	// Presets settings
	PresetsFile string `help:"User preset file (empty disables user presets)" default:"presets.toml" toml:"presets.file" env:"PRESETS_FILE"`

	// Export settings
	ExportFFmpeg string `help:"ffmpeg binary used for video exports" default:"ffmpeg" toml:"export.ffmpeg" env:"EXPORT_FFMPEG"`

	// Logging settings
	LoggingLevel       string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat      string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCamera      string `help:"Camera logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingCoordinator string `help:"Coordinator logging level" default:"info" toml:"logging.coordinator" env:"LOGGING_COORDINATOR"`
	LoggingSink        string `help:"Sink logging level" default:"info" toml:"logging.sink" env:"LOGGING_SINK"`
	LoggingProcess     string `help:"Export process logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingAPI         string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP        string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var rootCmd *cobra.Command

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, rootCmd); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"camera":      opts.LoggingCamera,
				"coordinator": opts.LoggingCoordinator,
				"sink":        opts.LoggingSink,
				"process":     opts.LoggingProcess,
				"ffmpeg":      opts.LoggingProcess,
				"api":         opts.LoggingAPI,
				"http":        opts.LoggingHTTP,
			},
		})
		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		api.PublishLogs(eventBus)

		enum, err := cmd.NewEnumerator(opts.Config)
		if err != nil {
			logger.Error("Failed to load camera configuration", "error", err)
			os.Exit(1)
		}

		coord := coordinator.New(coordinator.Options{
			Enumerator: enum,
			Camera: camera.Options{
				OutputDir:          opts.CaptureOutputDir,
				MinFrames:          opts.CaptureMinFrames,
				Timeout:            opts.CaptureTimeout,
				ArmTimeout:         opts.CaptureArmTimeout,
				OperatingFrameRate: float64(opts.CaptureOperatingFrameRate),
				OperatingExposure:  float64(opts.CapturePreviewExposure),
				Quirks: camera.Quirks{
					TriggerOffAfterFirstFrame: splitList(opts.QuirksTriggerOffAfterFirstFrame),
					LegacyFamilies:            splitList(opts.QuirksLegacyFamilies),
				},
			},
			ImageFormat:  opts.CaptureImageFormat,
			SaveWorkers:  opts.CaptureSaveWorkers,
			FITS:         opts.CaptureFITS,
			PresetsFile:  opts.PresetsFile,
			FFmpegBinary: opts.ExportFFmpeg,
			PreviewSize:  opts.CapturePreviewQueue,
			PreviewFPS:   float64(opts.CapturePreviewFPS),
			OpenRetry:    opts.CaptureOpenRetry,
			OnJobStateChange: func(id string, old, state process.State, jobErr error) {
				logger.Debug("Export job state changed", "job", id, "from", old, "to", state, "error", jobErr)
			},
			Bus: eventBus,
		})

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Coordinator:       coord,
			EventBus:          eventBus,
			PrometheusHandler: metrics.Handler(),
			PreviewQuality:    opts.CapturePreviewQuality,
			CORSOrigin:        opts.CORSOrigin,
		})

		notifier := systemd.NewNotifier(logger)
		watchdogCtx, stopWatchdog := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			startErr := coord.Start(startCtx)
			cancel()
			if startErr != nil {
				logger.Error("Failed to open cameras", "error", startErr)
				os.Exit(1)
			}

			go notifier.RunWatchdog(watchdogCtx)
			notifier.Status("%d cameras", len(coord.Cameras()))
			notifier.Ready()

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			stopWatchdog()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if stopErr := server.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			// Cameras close after the API stops accepting requests.
			if closeErr := coord.Close(ctx); closeErr != nil {
				logger.Error("Error closing cameras", "error", closeErr)
			}
		})
	})

	rootCmd = cli.Root()
	rootCmd.Use = "burstcam"
	rootCmd.Short = "Triggered burst acquisition service for machine-vision cameras"

	rootCmd.AddCommand(cmd.CreateDevicesCmd())
	rootCmd.AddCommand(cmd.CreateCaptureCmd())
	rootCmd.AddCommand(cmd.CreateMkPresetsCmd())
	rootCmd.AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}

// splitList parses a comma-separated option, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
