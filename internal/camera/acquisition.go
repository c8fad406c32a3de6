package camera

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/smazurov/burstcam/internal/device"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/metrics"
)

// Device timestamps are in ticks; burst timestamps are ticks / tickScale.
const tickScale = 1000

// acquire drains triggered frames into acq.burst until the quantity or
// duration bound is met, the deadline passes, or ctx is cancelled.
// The first frame fixes the time origin and starts the deadline.
func (c *Controller) acquire(ctx context.Context, acq *acquisition) frame.ExitReason {
	burst := acq.burst
	quantity := acq.preset.FramesQuantity
	maxDuration := time.Duration(acq.preset.TriggerTimeSeconds * float64(time.Second))
	triggerOff := acq.source != device.TriggerSourceSoftware && c.opts.Quirks.triggerOffAfterFirstFrame(c.family)

	if acq.source == device.TriggerSourceSoftware {
		if err := device.Execute(c.dev, device.CommandTriggerSoftware); err != nil {
			c.logger.Warn("Software trigger failed", "error", err)
		}
	}

	var (
		t0          uint64
		last        float64
		deadline    time.Time
		durationEnd time.Time
		armDeadline time.Time
	)
	if c.opts.ArmTimeout > 0 {
		armDeadline = time.Now().Add(c.opts.ArmTimeout)
	}

	for {
		if ctx.Err() != nil {
			return frame.ReasonStopped
		}
		now := time.Now()
		if !deadline.IsZero() && now.After(deadline) {
			c.logger.Warn("Acquisition timed out", "frames", burst.Len(), "timeout", c.opts.Timeout)
			return frame.ReasonTimeout
		}
		if !armDeadline.IsZero() && burst.Len() == 0 && now.After(armDeadline) {
			c.logger.Warn("Trigger never fired", "arm_timeout", c.opts.ArmTimeout)
			return frame.ReasonArmTimeout
		}

		raw, err := c.dev.TryPullFrame()
		if err != nil {
			c.reportPullError("acquisition", err)
			continue
		}
		if raw == nil {
			runtime.Gosched()
			continue
		}

		f, err := c.decode(raw)
		if err != nil {
			c.logger.Debug("Dropping undecodable frame", "frame_id", raw.FrameID, "error", err)
			continue
		}
		ts := c.dev.Timestamp(raw)

		if burst.Len() == 0 {
			t0 = ts
			burst.StartedAt = now
			deadline = now.Add(c.opts.Timeout)
			if maxDuration > 0 {
				durationEnd = now.Add(maxDuration)
			}
			burst.Append(f, 0)
			c.publishPreview(f)

			if triggerOff {
				if err := device.Set(c.dev, device.FeatureTriggerMode, device.ValueOff); err != nil {
					c.logger.Warn("Failed to disable trigger mode after first frame", "error", err)
				}
			}
			continue
		}

		rel := float64(int64(ts-t0)) / tickScale
		// Keep timestamps non-decreasing if the device clock steps back.
		if rel < last {
			rel = last
		}
		last = rel
		burst.Append(f, rel)
		c.publishPreview(f)

		if quantity > 0 && burst.Len() >= quantity {
			return frame.ReasonQuantity
		}
		if !durationEnd.IsZero() && time.Now().After(durationEnd) {
			return frame.ReasonDuration
		}
	}
}

// decode converts raw into a frame and runs the transform chain.
func (c *Controller) decode(raw *device.RawFrame) (*frame.Frame, error) {
	target, channels := device.Mono8, 1
	if c.color.Load() {
		target, channels = device.RGB8, 3
	}
	buf, err := c.dev.Convert(raw, target)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s frame to %s: %w", raw.PixelFormat, target, err)
	}
	f, err := frame.FromBuffer(buf, raw.Width, raw.Height, channels)
	if err != nil {
		return nil, err
	}
	f.FrameID = raw.FrameID
	f.DeviceTimestamp = c.dev.Timestamp(raw)
	return c.processor.Process(f), nil
}

// reportPullError counts a device fault and publishes at most one fault
// event per second.
func (c *Controller) reportPullError(loop string, err error) {
	metrics.IncPullErrors(c.id, loop)
	if !c.faultLimiter.Allow() {
		return
	}
	c.logger.Warn("Frame pull failed", "loop", loop, "error", err)
	c.bus.Publish(events.AcquisitionFaultEvent{
		CameraID:  c.id,
		Loop:      loop,
		Error:     err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// startPreviewLocked starts the preview loop if the camera is streaming and
// no loop is running.
func (c *Controller) startPreviewLocked() {
	if c.preview != nil || !c.fsm.Is(StateStreaming) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{cancel: cancel, done: make(chan struct{})}
	c.preview = w
	go func() {
		defer close(w.done)
		c.previewLoop(ctx)
	}()
}

// stopPreviewLocked stops the preview loop and waits for it to exit.
func (c *Controller) stopPreviewLocked() {
	if c.preview == nil {
		return
	}
	c.preview.stop()
	c.preview = nil
}

// previewLoop pulls free-running frames for display until ctx is cancelled.
func (c *Controller) previewLoop(ctx context.Context) {
	wait := func() bool {
		idle := time.NewTimer(c.opts.PreviewIdle)
		defer idle.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-idle.C:
			return true
		}
	}

	for ctx.Err() == nil {
		raw, err := c.dev.TryPullFrame()
		if err != nil {
			c.reportPullError("preview", err)
			if !wait() {
				return
			}
			continue
		}
		if raw == nil {
			if !wait() {
				return
			}
			continue
		}
		f, err := c.decode(raw)
		if err != nil {
			c.logger.Debug("Dropping undecodable preview frame", "error", err)
			continue
		}
		c.publishPreview(f)
	}
}
