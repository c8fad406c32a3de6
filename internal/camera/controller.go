// Package camera drives one machine-vision camera through preview
// streaming and triggered burst acquisition.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/time/rate"

	"github.com/smazurov/burstcam/internal/device"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/metrics"
	"github.com/smazurov/burstcam/internal/preset"
	"github.com/smazurov/burstcam/internal/sink"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultMinFrames          = 5
	DefaultTimeout            = 12 * time.Second
	DefaultOperatingFrameRate = 24.0
	DefaultOperatingExposure  = 40000.0
	DefaultFramesQuantity     = 10
	DefaultPreviewIdle        = 10 * time.Millisecond
	defaultROIHeight          = 220
)

// PresetFile is the name of the preset snapshot written beside each burst.
const PresetFile = sink.PresetFile

// Options configures a Controller.
type Options struct {
	// ID names the camera in logs, events, and output paths. Defaults to the device ID.
	ID string
	// OutputDir is the root under which burst directories are allocated.
	OutputDir string
	// MinFrames is the smallest burst that is handed to consumers.
	MinFrames int
	// Timeout bounds a burst, measured from its first frame.
	Timeout time.Duration
	// ArmTimeout bounds the wait for the first frame. Zero waits forever.
	ArmTimeout time.Duration
	// OperatingFrameRate and OperatingExposure replace the user values in
	// the default and preview presets used for continuous display.
	OperatingFrameRate float64
	OperatingExposure  float64
	// PreviewIdle is how long the preview loop sleeps when no frame is ready.
	PreviewIdle time.Duration
	Quirks      Quirks
	Bus         *events.Bus
	Logger      *slog.Logger
}

func (o Options) withDefaults(info device.Info) Options {
	if o.ID == "" {
		o.ID = info.ID
	}
	if o.OutputDir == "" {
		o.OutputDir = "output"
	}
	if o.MinFrames <= 0 {
		o.MinFrames = DefaultMinFrames
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.OperatingFrameRate <= 0 {
		o.OperatingFrameRate = DefaultOperatingFrameRate
	}
	if o.OperatingExposure <= 0 {
		o.OperatingExposure = DefaultOperatingExposure
	}
	if o.PreviewIdle <= 0 {
		o.PreviewIdle = DefaultPreviewIdle
	}
	if o.Logger == nil {
		o.Logger = logging.GetLogger("camera")
	}
	return o
}

// worker is a running background loop.
type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *worker) stop() {
	w.cancel()
	<-w.done
}

// acquisition is one armed trigger and the burst it collects.
type acquisition struct {
	source string
	preset preset.Preset
	burst  *frame.Burst
	reason frame.ExitReason
	worker
}

// Status is a point-in-time view of a controller.
type Status struct {
	ID                string          `json:"id" example:"cam0" doc:"Camera identifier"`
	Model             string          `json:"model" example:"MER2-302-56U3M" doc:"Camera model"`
	Serial            string          `json:"serial" doc:"Serial number"`
	Family            string          `json:"family" example:"MER2" doc:"Camera family"`
	State             string          `json:"state" example:"streaming" doc:"Controller state"`
	Streaming         bool            `json:"streaming" doc:"Stream is on"`
	Triggered         bool            `json:"triggered" doc:"Armed or receiving a burst"`
	TriggerSource     string          `json:"trigger_source,omitempty" doc:"Source of the armed trigger"`
	Color             bool            `json:"color" doc:"Frames are converted to RGB"`
	ColorSupported    bool            `json:"color_supported" doc:"Device offers colour pixel formats"`
	Transform         frame.Transform `json:"transform" doc:"Frame transform settings"`
	AchievedFrameRate float64         `json:"achieved_frame_rate" doc:"Frame rate reported for the trigger preset"`
	Sensor            preset.Sensor   `json:"sensor" doc:"Sensor limits"`
}

// Controller owns one device and its state machine. All exported methods
// are safe for concurrent use.
type Controller struct {
	id        string
	dev       device.Device
	info      device.Info
	family    string
	opts      Options
	logger    *slog.Logger
	bus       *events.Bus
	presets   *preset.Store
	processor *frame.Processor

	// mu serializes state transitions.
	mu                sync.Mutex
	fsm               *fsm.FSM
	sensor            preset.Sensor
	colorSupported    bool
	achievedFrameRate float64
	preview           *worker
	acq               *acquisition

	color        atomic.Bool
	faultLimiter *rate.Limiter

	consumersMu      sync.RWMutex
	burstConsumers   []BurstConsumer
	previewConsumers []PreviewConsumer

	handoffs sync.WaitGroup
}

// New initializes dev and returns its controller in the idle state.
// Device failures during initialization are logged and leave the
// controller usable with whatever features were set.
func New(dev device.Device, opts Options) *Controller {
	info := dev.Info()
	opts = opts.withDefaults(info)

	c := &Controller{
		id:           opts.ID,
		dev:          dev,
		info:         info,
		family:       device.Family(info.Model),
		opts:         opts,
		logger:       opts.Logger.With("camera", opts.ID),
		bus:          opts.Bus,
		processor:    &frame.Processor{},
		faultLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	c.fsm = newStateMachine(c.id, c.bus)
	metrics.SetCameraState(c.id, StateIdle)

	def, err := c.initDevice()
	if err != nil {
		c.logger.Warn("Camera initialization incomplete", "error", err)
	}
	c.presets = preset.NewStore(def)

	if err := c.applyPreset(def); err != nil {
		c.logger.Warn("Failed to apply default preset", "error", err)
	}
	if err := c.defaultSettings(def); err != nil {
		c.logger.Warn("Failed to apply default settings", "error", err)
	}

	c.logger.Info("Camera initialized",
		"model", info.Model,
		"family", c.family,
		"color", c.color.Load(),
		"sensor_width", c.sensor.Width.SensorMax,
		"sensor_height", c.sensor.Height.SensorMax)
	return c
}

// initDevice lifts the link throughput limit, detects colour support, reads
// the sensor limits, and derives the default preset from the feature ranges.
func (c *Controller) initDevice() (preset.Preset, error) {
	def := preset.Preset{
		Height:         defaultROIHeight,
		ExposureTime:   c.opts.OperatingExposure,
		FrameRate:      c.opts.OperatingFrameRate,
		FramesQuantity: DefaultFramesQuantity,
	}
	var errs []error

	if r, err := device.RangeOf(c.dev, device.FeatureThroughputLimit); err != nil {
		errs = append(errs, err)
	} else if err := device.Set(c.dev, device.FeatureThroughputLimit, int(r.Max)); err != nil {
		errs = append(errs, err)
	}
	if err := device.Set(c.dev, device.FeatureThroughputLimitMode, device.ValueOff); err != nil {
		errs = append(errs, err)
	}

	if r, err := device.RangeOf(c.dev, device.FeaturePixelFormat); err != nil {
		errs = append(errs, err)
	} else {
		_, color := device.ColorSupport(r.Options)
		c.colorSupported = color
		c.color.Store(color)
	}

	for _, name := range []string{device.FeatureOffsetX, device.FeatureOffsetY} {
		if err := device.Set(c.dev, name, 0); err != nil {
			errs = append(errs, err)
		}
	}

	if r, err := device.RangeOf(c.dev, device.FeatureWidth); err != nil {
		errs = append(errs, err)
	} else {
		c.sensor.Width = preset.Axis{SensorMax: int(r.Max), MinSize: int(r.Min)}
		def.Width = int(r.Max)
	}
	if r, err := device.RangeOf(c.dev, device.FeatureHeight); err != nil {
		errs = append(errs, err)
	} else {
		c.sensor.Height = preset.Axis{SensorMax: int(r.Max), MinSize: int(r.Min)}
		def.Height = min(def.Height, int(r.Max))
	}
	if r, err := device.RangeOf(c.dev, device.FeatureGain); err != nil {
		errs = append(errs, err)
	} else {
		def.Gain = r.Max
	}
	if r, err := device.RangeOf(c.dev, device.FeatureTriggerDelay); err != nil {
		errs = append(errs, err)
	} else {
		def.TriggerDelay = r.Min
	}

	return def, errors.Join(errs...)
}

// ID returns the camera identifier.
func (c *Controller) ID() string { return c.id }

// Info returns the enumerated device description.
func (c *Controller) Info() device.Info { return c.info }

// Family returns the camera family used for quirks.
func (c *Controller) Family() string { return c.family }

// Presets returns the controller's preset store.
func (c *Controller) Presets() *preset.Store { return c.presets }

// Processor returns the per-frame transform chain.
func (c *Controller) Processor() *frame.Processor { return c.processor }

// State returns the current controller state.
func (c *Controller) State() string { return c.fsm.Current() }

// IsStreaming reports whether the stream is on, armed or not.
func (c *Controller) IsStreaming() bool {
	s := c.fsm.Current()
	return s == StateStreaming || s == StateTriggered
}

// IsTriggered reports whether a trigger is armed or a burst is being received.
func (c *Controller) IsTriggered() bool { return c.fsm.Is(StateTriggered) }

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		ID:                c.id,
		Model:             c.info.Model,
		Serial:            c.info.Serial,
		Family:            c.family,
		State:             c.fsm.Current(),
		Color:             c.color.Load(),
		ColorSupported:    c.colorSupported,
		Transform:         c.processor.Transform(),
		AchievedFrameRate: c.achievedFrameRate,
		Sensor:            c.sensor,
	}
	s.Streaming = s.State == StateStreaming || s.State == StateTriggered
	s.Triggered = s.State == StateTriggered
	if c.acq != nil {
		s.TriggerSource = c.acq.source
	}
	return s
}

// SwitchRecording toggles the stream. Turning it off disarms a pending
// trigger first.
func (c *Controller) SwitchRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.fsm.Current() {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		if err := c.dev.StreamOn(); err != nil {
			return &device.CommunicationError{Op: "stream on", Err: err}
		}
		if err := c.fsm.Event(ctx, eventStart); err != nil {
			return err
		}
		c.startPreviewLocked()
		c.logger.Info("Stream started")
		return nil
	default:
		if c.acq != nil {
			c.stopTriggerLocked(ctx)
		}
		c.stopPreviewLocked()
		if err := c.dev.StreamOff(); err != nil {
			c.logger.Warn("Failed to stop stream", "error", err)
		}
		if err := c.fsm.Event(ctx, eventStop); err != nil {
			return err
		}
		c.logger.Info("Stream stopped")
		return nil
	}
}

// SwitchTrigger arms the camera for a burst from source, or disarms it
// when already armed. It fails with ErrNotStreaming when the stream is off.
func (c *Controller) SwitchTrigger(ctx context.Context, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.fsm.Current() {
	case StateClosed:
		return ErrClosed
	case StateIdle:
		return ErrNotStreaming
	case StateTriggered:
		c.stopTriggerLocked(ctx)
		return nil
	}

	if source == "" {
		source = device.TriggerSourceSoftware
	}

	// The stream has a single consumer, so preview must stop before arming.
	c.stopPreviewLocked()

	trig := c.presets.MustGet(preset.Trigger)
	if err := c.applyPreset(trig); err != nil {
		c.logger.Warn("Failed to apply trigger preset", "error", err)
	}
	if err := c.triggerSettings(source); err != nil {
		c.logger.Warn("Failed to apply trigger settings", "error", err)
	}
	if err := c.fsm.Event(ctx, eventArm, source); err != nil {
		c.startPreviewLocked()
		return err
	}

	actx, cancel := context.WithCancel(context.Background())
	acq := &acquisition{
		source: source,
		preset: trig,
		burst:  &frame.Burst{CameraID: c.id, Preset: trig},
		worker: worker{cancel: cancel, done: make(chan struct{})},
	}
	c.acq = acq
	go c.runAcquisition(actx, acq)

	c.logger.Info("Trigger armed",
		"source", source,
		"frames_quantity", trig.FramesQuantity,
		"exposure_time", trig.ExposureTime)
	return nil
}

// runAcquisition runs the acquisition loop and, when the loop ended on
// its own, performs the disarm transition.
func (c *Controller) runAcquisition(ctx context.Context, acq *acquisition) {
	func() {
		defer close(acq.done)
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("Acquisition loop panicked", "panic", r)
				acq.reason = frame.ReasonFailed
			}
		}()
		acq.reason = c.acquire(ctx, acq)
		if acq.reason != frame.ReasonStopped && acq.burst.Len() > 0 {
			acq.burst.Timestamps[0] = 0
		}
	}()

	if acq.reason != frame.ReasonStopped {
		c.endTrigger(acq)
	}
}

// endTrigger performs the disarm transition for acq unless another caller
// already did.
func (c *Controller) endTrigger(acq *acquisition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acq != acq {
		return
	}
	c.finishTriggerLocked(context.Background(), acq)
}

// stopTriggerLocked cancels the running acquisition, waits for the loop to
// exit, and disarms.
func (c *Controller) stopTriggerLocked(ctx context.Context) {
	acq := c.acq
	if acq == nil {
		return
	}
	acq.stop()
	c.finishTriggerLocked(ctx, acq)
}

// finishTriggerLocked restores continuous streaming and hands off the burst.
func (c *Controller) finishTriggerLocked(ctx context.Context, acq *acquisition) {
	c.acq = nil
	burst := acq.burst
	burst.Reason = acq.reason
	if !burst.StartedAt.IsZero() {
		burst.Duration = time.Since(burst.StartedAt)
	}
	metrics.RecordAcquisitionExit(c.id, string(acq.reason))

	def := c.presets.MustGet(preset.Default)
	if err := c.applyPreset(def); err != nil {
		c.logger.Warn("Failed to restore default preset", "error", err)
	}
	if err := c.defaultSettings(def); err != nil {
		c.logger.Warn("Failed to restore default settings", "error", err)
	}
	if err := c.fsm.Event(ctx, eventDisarm); err != nil {
		c.logger.Error("Failed to leave triggered state", "error", err)
	}
	c.startPreviewLocked()

	c.logger.Info("Trigger disarmed", "reason", acq.reason, "frames", burst.Len())
	c.checkCompletion(burst)
}

// checkCompletion hands a burst to the preset writer and every consumer,
// or discards it when it is below the minimum size.
func (c *Controller) checkCompletion(burst *frame.Burst) {
	n := burst.Len()
	if n < c.opts.MinFrames {
		c.logger.Warn("Not enough images, burst discarded",
			"frames", n, "minimum", c.opts.MinFrames, "reason", burst.Reason)
		metrics.RecordBurst(c.id, metrics.OutcomeDiscarded, n)
		c.bus.Publish(events.BurstDiscardedEvent{
			CameraID:  c.id,
			Frames:    n,
			Minimum:   c.opts.MinFrames,
			Reason:    string(burst.Reason),
			Timestamp: time.Now().Format(time.RFC3339),
		})
		return
	}

	dir, err := sink.NextDir(c.opts.OutputDir, c.id)
	if err != nil {
		c.logger.Error("Failed to allocate burst directory", "error", err)
		metrics.RecordBurst(c.id, metrics.OutcomeDiscarded, n)
		return
	}
	metrics.RecordBurst(c.id, metrics.OutcomeCompleted, n)

	c.handoffs.Add(1)
	go func() {
		defer c.handoffs.Done()
		path := filepath.Join(dir, PresetFile)
		if err := preset.Write(path, burst.Preset); err != nil {
			c.logger.Error("Failed to save preset", "path", path, "error", err)
		}
	}()
	for _, bc := range c.snapshotBurstConsumers() {
		c.handoffs.Add(1)
		go func() {
			defer c.handoffs.Done()
			bc.OnBurstReady(burst, dir)
		}()
	}

	c.logger.Info("Burst completed", "frames", n, "dir", dir, "reason", burst.Reason)
	c.bus.Publish(events.BurstCompletedEvent{
		CameraID:   c.id,
		Frames:     n,
		Directory:  dir,
		Reason:     string(burst.Reason),
		DurationMs: float64(burst.Duration.Microseconds()) / 1000,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// Wait blocks until every background burst handoff has returned.
func (c *Controller) Wait() {
	c.handoffs.Wait()
}

// ApplySettings stores p as the trigger preset and derives the default and
// preview presets from it with the operating frame rate and exposure. It
// returns the frame rate the sensor reports for the trigger preset.
func (c *Controller) ApplySettings(ctx context.Context, p preset.Preset) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.fsm.Current() {
	case StateClosed:
		return 0, ErrClosed
	case StateTriggered:
		return 0, ErrBusy
	}

	if c.sensor.Width.SensorMax > 0 && c.sensor.Height.SensorMax > 0 {
		p = p.Constrain(c.sensor)
	}
	operating := p
	operating.FrameRate = c.opts.OperatingFrameRate
	operating.ExposureTime = c.opts.OperatingExposure

	c.presets.Add(preset.Trigger, p)
	c.presets.Add(preset.Default, operating)
	c.presets.Add(preset.Preview, operating)

	streaming := c.fsm.Is(StateStreaming)
	if streaming {
		c.stopPreviewLocked()
		if err := c.dev.StreamOff(); err != nil {
			c.logger.Warn("Failed to pause stream for settings", "error", err)
		}
	}

	var errs []error
	if err := c.applyPreset(p); err != nil {
		errs = append(errs, err)
	}
	achieved, err := device.Float(c.dev, device.FeatureCurrentFrameRate)
	if err != nil {
		errs = append(errs, err)
	}
	if err := c.applyPreset(operating); err != nil {
		errs = append(errs, err)
	}
	if err := c.defaultSettings(operating); err != nil {
		errs = append(errs, err)
	}

	if streaming {
		if err := c.dev.StreamOn(); err != nil {
			errs = append(errs, &device.CommunicationError{Op: "stream on", Err: err})
		}
		c.startPreviewLocked()
	}

	c.achievedFrameRate = achieved
	metrics.SetAchievedFrameRate(c.id, achieved)
	if joined := errors.Join(errs...); joined != nil {
		c.logger.Warn("Settings applied with device errors", "error", joined)
		return achieved, joined
	}

	c.logger.Info("Settings applied",
		"width", p.Width,
		"height", p.Height,
		"exposure_time", p.ExposureTime,
		"frame_rate", p.FrameRate,
		"achieved_frame_rate", achieved)
	c.bus.Publish(events.SettingsAppliedEvent{
		CameraID:          c.id,
		AchievedFrameRate: achieved,
		Timestamp:         time.Now().Format(time.RFC3339),
	})
	return achieved, nil
}

// ApplyPreset applies a stored preset as the user settings.
func (c *Controller) ApplyPreset(ctx context.Context, name string) (float64, error) {
	p, err := c.presets.Get(name)
	if err != nil {
		return 0, err
	}
	return c.ApplySettings(ctx, p)
}

// SetColorMode switches frame conversion between Mono8 and RGB8.
func (c *Controller) SetColorMode(color bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm.Is(StateClosed) {
		return ErrClosed
	}
	if color && !c.colorSupported {
		return NewError(ErrCodeUnsupported, "camera has no colour pixel formats", nil)
	}
	c.color.Store(color)
	c.logger.Info("Color mode changed", "color", color)
	return nil
}

// BalanceWhiteOnce runs a single automatic white balance pass.
func (c *Controller) BalanceWhiteOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm.Is(StateClosed) {
		return ErrClosed
	}
	if !c.colorSupported {
		return NewError(ErrCodeUnsupported, "white balance needs a colour camera", nil)
	}
	return device.Set(c.dev, device.FeatureBalanceWhiteAuto, device.ValueOnce)
}

// Close disarms, stops the stream, turns trigger mode off, and releases
// the device. Closing twice is a no-op.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fsm.Is(StateClosed) {
		return nil
	}
	if c.acq != nil {
		c.stopTriggerLocked(ctx)
	}
	c.stopPreviewLocked()

	if err := device.Set(c.dev, device.FeatureTriggerMode, device.ValueOff); err != nil {
		c.logger.Warn("Failed to disable trigger mode", "error", err)
	}
	if c.fsm.Is(StateStreaming) {
		if err := c.dev.StreamOff(); err != nil {
			c.logger.Warn("Failed to stop stream", "error", err)
		}
	}
	err := c.dev.Close()
	if fsmErr := c.fsm.Event(ctx, eventClose); fsmErr != nil {
		c.logger.Error("Failed to enter closed state", "error", fsmErr)
	}
	c.logger.Info("Camera closed")
	if err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}
	return nil
}
