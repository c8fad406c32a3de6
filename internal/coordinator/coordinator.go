// Package coordinator owns every attached camera: it discovers and opens
// devices, wires their burst and preview consumers, and dispatches
// operations by camera ID.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/device"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/metrics"
	"github.com/smazurov/burstcam/internal/preview"
	"github.com/smazurov/burstcam/internal/process"
	"github.com/smazurov/burstcam/internal/sink"
)

// Error codes
const (
	ErrCodeNoBurst      = "NO_BURST"
	ErrCodeInvalidBurst = "INVALID_BURST"
)

// ErrNoBurst is returned by exports when a camera has not completed a burst yet.
var ErrNoBurst = camera.NewError(ErrCodeNoBurst, "no burst captured yet", nil)

// Options configures a Coordinator.
type Options struct {
	Enumerator device.Enumerator
	// Camera is the template for every controller. ID, Bus, and Logger are
	// filled in per camera. Camera.Quirks is used as given; empty lists
	// disable the workarounds.
	Camera camera.Options
	// ImageFormat and SaveWorkers configure the image sink.
	ImageFormat string
	SaveWorkers int
	// FITS enables the FITS cube sink.
	FITS bool
	// PresetsFile is the user preset file. Empty disables user presets.
	PresetsFile string
	// FFmpegBinary runs video exports.
	FFmpegBinary string
	PreviewSize  int
	PreviewFPS   float64
	// OpenRetry bounds how long opening one device is retried.
	OpenRetry time.Duration
	// OnJobStateChange observes export jobs.
	OnJobStateChange process.StateChangeCallback
	Bus              *events.Bus
	Logger           *slog.Logger
}

// DefaultOpenRetry is how long a failing device open is retried.
const DefaultOpenRetry = 5 * time.Second

// Coordinator manages the set of open cameras.
type Coordinator struct {
	opts   Options
	bus    *events.Bus
	logger *slog.Logger

	preview *preview.Hub
	archive *sink.Archive
	disk    *sink.DiskSaver
	fits    *sink.FITSWriter
	jobs    process.Pool
	video   *sink.VideoExporter
	presets *presetSync

	mu      sync.RWMutex
	cameras map[string]*camera.Controller
	order   []string
}

// New creates a coordinator. Call Start to open devices.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("coordinator")
	}
	if opts.OpenRetry <= 0 {
		opts.OpenRetry = DefaultOpenRetry
	}

	c := &Coordinator{
		opts:    opts,
		bus:     opts.Bus,
		logger:  opts.Logger,
		preview: preview.NewHub(opts.PreviewSize, opts.PreviewFPS),
		archive: sink.NewArchive(),
		disk: sink.NewDiskSaver(sink.DiskOptions{
			Format:  opts.ImageFormat,
			Workers: opts.SaveWorkers,
			Bus:     opts.Bus,
		}),
		jobs:    sink.NewFFmpegPool(opts.OnJobStateChange),
		cameras: make(map[string]*camera.Controller),
	}
	if opts.FITS {
		c.fits = sink.NewFITSWriter(opts.Bus, nil)
	}
	c.video = sink.NewVideoExporter(opts.FFmpegBinary, c.jobs, opts.Bus, nil)
	c.presets = newPresetSync(opts.PresetsFile, c.logger)
	return c
}

// Start opens every enumerated device and watches the user preset file.
func (c *Coordinator) Start(ctx context.Context) error {
	c.presets.start(c.applyUserPresets)

	n, err := c.Discover(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("Coordinator started", "cameras", n)
	return nil
}

// Discover opens enumerated devices that are not open yet and returns how
// many cameras are open afterwards. Devices that fail to open are skipped.
func (c *Coordinator) Discover(ctx context.Context) (int, error) {
	if c.opts.Enumerator == nil {
		return 0, errors.New("no device enumerator configured")
	}
	infos, err := c.opts.Enumerator.Enumerate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	c.logger.Debug("Enumerated devices", "count", len(infos))

	for _, info := range infos {
		if _, ok := c.lookup(info.ID); ok {
			continue
		}
		dev, err := c.open(ctx, info)
		if err != nil {
			c.logger.Error("Failed to open camera", "camera", info.ID, "model", info.Model, "error", err)
			c.publishDiscovery(info, "failed", err)
			continue
		}
		c.add(dev)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cameras), nil
}

// open retries Enumerator.Open with exponential backoff until it succeeds,
// OpenRetry elapses, or ctx is cancelled.
func (c *Coordinator) open(ctx context.Context, info device.Info) (device.Device, error) {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      c.opts.OpenRetry,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	op := func() (device.Device, error) {
		return c.opts.Enumerator.Open(ctx, info)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Camera open failed, retrying", "camera", info.ID, "error", err, "retry_in", wait)
	}
	return backoff.RetryNotifyWithData(op, backoff.WithContext(policy, ctx), notify)
}

func (c *Coordinator) add(dev device.Device) *camera.Controller {
	info := dev.Info()
	opts := c.opts.Camera
	opts.ID = info.ID
	opts.Bus = c.bus
	opts.Logger = nil

	ctrl := camera.New(dev, opts)
	ctrl.AddBurstConsumer(c.archive)
	ctrl.AddBurstConsumer(c.disk)
	if c.fits != nil {
		ctrl.AddBurstConsumer(c.fits)
	}
	ctrl.AddPreviewConsumer(c.preview.Add(ctrl.ID()))
	ctrl.Presets().Merge(c.presets.current())

	c.mu.Lock()
	c.cameras[ctrl.ID()] = ctrl
	c.order = append(c.order, ctrl.ID())
	c.mu.Unlock()

	c.logger.Info("Camera added", "camera", ctrl.ID(), "model", info.Model, "family", ctrl.Family())
	c.publishDiscovery(info, "added", nil)
	return ctrl
}

func (c *Coordinator) publishDiscovery(info device.Info, action string, err error) {
	ev := events.DeviceDiscoveryEvent{
		CameraID:  info.ID,
		Model:     info.Model,
		Family:    device.Family(info.Model),
		Action:    action,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.bus.Publish(ev)
}

func (c *Coordinator) lookup(id string) (*camera.Controller, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctrl, ok := c.cameras[id]
	return ctrl, ok
}

// Camera returns the controller for id.
func (c *Coordinator) Camera(id string) (*camera.Controller, error) {
	ctrl, ok := c.lookup(id)
	if !ok {
		return nil, camera.NewError(camera.ErrCodeUnknownCamera, fmt.Sprintf("camera %q not found", id), nil)
	}
	return ctrl, nil
}

// Dispatch runs fn against the controller for id.
func (c *Coordinator) Dispatch(id string, fn func(*camera.Controller) error) error {
	ctrl, err := c.Camera(id)
	if err != nil {
		return err
	}
	return fn(ctrl)
}

// Cameras returns the open controllers in the order they were added.
func (c *Coordinator) Cameras() []*camera.Controller {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*camera.Controller, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.cameras[id])
	}
	return out
}

// Preview returns the per-camera preview queues.
func (c *Coordinator) Preview() *preview.Hub { return c.preview }

// Archive returns the latest burst of every camera.
func (c *Coordinator) Archive() *sink.Archive { return c.archive }

// Jobs returns the export job pool.
func (c *Coordinator) Jobs() process.Pool { return c.jobs }

// Remove closes the camera and forgets it.
func (c *Coordinator) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	ctrl, ok := c.cameras[id]
	if ok {
		delete(c.cameras, id)
		c.order = slices.DeleteFunc(c.order, func(s string) bool { return s == id })
	}
	c.mu.Unlock()
	if !ok {
		return camera.NewError(camera.ErrCodeUnknownCamera, fmt.Sprintf("camera %q not found", id), nil)
	}

	err := ctrl.Close(ctx)
	ctrl.Wait()
	c.preview.Remove(id)
	c.archive.Forget(id)
	metrics.DeleteCameraMetrics(id)
	c.publishDiscovery(ctrl.Info(), "removed", nil)
	return err
}

// Close closes every camera, stops export jobs, and stops preview delivery.
func (c *Coordinator) Close(ctx context.Context) error {
	c.presets.stop()

	var errs []error
	for _, ctrl := range c.Cameras() {
		if err := c.Remove(ctx, ctrl.ID()); err != nil {
			errs = append(errs, err)
		}
	}
	c.jobs.StopAll()
	c.preview.Close()
	c.logger.Info("Coordinator stopped")
	return errors.Join(errs...)
}
