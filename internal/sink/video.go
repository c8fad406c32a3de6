package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/ffmpeg"
	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/metrics"
	"github.com/smazurov/burstcam/internal/process"
)

// VideoRequest selects the frames and encoding of a video export.
// Start and End are 1-based frame numbers, inclusive; zero selects the
// first or last frame.
type VideoRequest struct {
	Start     int
	End       int
	FrameRate float64
	Codec     ffmpeg.CodecType
	CRF       int
	// Output overrides the default file name inside the burst directory.
	Output string
}

// VideoExporter encodes burst frames into a video file with ffmpeg.
type VideoExporter struct {
	binary string
	pool   process.Pool
	bus    *events.Bus
	logger *slog.Logger
}

// NewVideoExporter creates an exporter running binary (empty = "ffmpeg")
// through pool.
func NewVideoExporter(binary string, pool process.Pool, bus *events.Bus, logger *slog.Logger) *VideoExporter {
	if logger == nil {
		logger = logging.GetLogger("sink")
	}
	return &VideoExporter{binary: binary, pool: pool, bus: bus, logger: logger}
}

// NewFFmpegPool returns a job pool whose processes log ffmpeg output at
// the level ffmpeg reports.
func NewFFmpegPool(onStateChange process.StateChangeCallback) process.Pool {
	ffmpegLogger := logging.GetLogger("ffmpeg")
	return process.NewPool(&process.PoolOptions{
		OnStateChange: onStateChange,
		ConfigureProcess: func(_ string, proc *process.Process) {
			proc.Apply(process.WithOutputLogger(ffmpegLogger, ffmpeg.ParseLogLevel))
		},
		Progress: ffmpeg.ParseProgress,
		Logger:   logging.GetLogger("process"),
	})
}

// VideoFileName is the default name of an export of n frames.
func VideoFileName(n int, ext string) string {
	return fmt.Sprintf("video_(%d)frames%s", n, ext)
}

// Export trims burst to the requested range, stages the frames as a PNG
// sequence, and runs ffmpeg. It blocks until the encoder exits and returns
// the written file.
func (v *VideoExporter) Export(ctx context.Context, burst *frame.Burst, dir string, req VideoRequest) (string, error) {
	start := time.Now()
	path, err := v.export(ctx, burst, dir, req)
	metrics.ObserveExport(KindVideo, time.Since(start), err)

	ev := events.ExportFinishedEvent{
		CameraID:  burst.CameraID,
		Kind:      KindVideo,
		Path:      path,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		v.logger.Error("Video export failed", "camera", burst.CameraID, "error", err)
		ev.Error = err.Error()
	} else {
		v.logger.Info("Video exported", "camera", burst.CameraID, "path", path, "elapsed", time.Since(start))
	}
	v.bus.Publish(ev)
	return path, err
}

func (v *VideoExporter) export(ctx context.Context, burst *frame.Burst, dir string, req VideoRequest) (string, error) {
	if burst.Len() == 0 {
		return "", errors.New("empty burst")
	}
	first, last := req.Start, req.End
	if first == 0 {
		first = 1
	}
	if last == 0 {
		last = burst.Len()
	}
	trimmed, err := burst.Slice(first-1, last-1)
	if err != nil {
		return "", err
	}

	codec, err := ffmpeg.GetCodec(req.Codec)
	if err != nil {
		return "", err
	}
	output := req.Output
	if output == "" {
		output = VideoFileName(trimmed.Len(), codec.Extension)
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(dir, output)
	}

	staging, err := os.MkdirTemp(dir, ".video-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for i, f := range trimmed.Frames {
		if err := writeImage(filepath.Join(staging, fmt.Sprintf("%06d.png", i)), f.Image, FormatPNG); err != nil {
			return "", err
		}
	}

	cmd, err := ffmpeg.BuildExportCommand(&ffmpeg.Params{
		Binary:       v.binary,
		InputPattern: filepath.Join(staging, "%06d.png"),
		Frames:       trimmed.Len(),
		FrameRate:    req.FrameRate,
		Codec:        codec.Key,
		CRF:          req.CRF,
		Output:       output,
	})
	if err != nil {
		return "", err
	}

	jobID := fmt.Sprintf("%s-%s-%d", burst.CameraID, filepath.Base(dir), time.Now().UnixNano())
	if err := v.pool.Start(jobID, cmd); err != nil {
		return "", err
	}
	info, err := v.pool.Wait(ctx, jobID)
	if err != nil {
		_ = v.pool.Stop(jobID)
		return "", err
	}
	if info.State != process.StateDone {
		return "", fmt.Errorf("ffmpeg failed: %s", strings.TrimSpace(info.LastError))
	}
	return output, nil
}
