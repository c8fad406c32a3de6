// Package logging provides slog loggers with per-module levels.
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"camera": "debug"},
//	})
//	logger := logging.GetLogger("camera").With("camera", id)
//	logger.Info("Trigger armed", "source", source)
//
// Records go to stdout when it is a terminal, pipe, or file, to the
// systemd journal when journald is running, and always to an in-memory
// ring buffer that backs the log API. The "camera" attribute is lifted
// into LogEntry.CameraID so the API can filter by camera; in the journal
// it becomes the CAMERA field:
//
//	journalctl -t burstcam MODULE=camera CAMERA=cam0
//
// Module levels come from the flat [logging] table of the config file
// and can be changed at runtime with SetModuleLevel:
//
//	[logging]
//	level = "info"
//	format = "text"
//	camera = "debug"
//	sink = "warn"
package logging
