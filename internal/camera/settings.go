package camera

import (
	"errors"

	"github.com/smazurov/burstcam/internal/device"
	"github.com/smazurov/burstcam/internal/preset"
)

// applyPreset writes p to the device. Offsets are zeroed first so the new
// width and height are always in range, then restored last. Every feature
// is attempted; failures are joined.
func (c *Controller) applyPreset(p preset.Preset) error {
	var errs []error
	set := func(name string, v any) {
		if err := device.Set(c.dev, name, v); err != nil {
			errs = append(errs, err)
		}
	}

	set(device.FeatureOffsetX, 0)
	set(device.FeatureOffsetY, 0)
	set(device.FeatureWidth, p.Width)
	set(device.FeatureHeight, p.Height)

	if !c.opts.Quirks.legacy(c.family) {
		mode := device.ValueExposureStandard
		if device.UltraShortExposure(p.ExposureTime) {
			mode = device.ValueExposureUltraShort
		}
		set(device.FeatureExposureTimeMode, mode)
	}

	set(device.FeatureExposureTime, p.ExposureTime)
	set(device.FeatureFrameRate, p.FrameRate)
	set(device.FeatureGain, p.Gain)
	set(device.FeatureTriggerDelay, p.TriggerDelay)
	set(device.FeatureOffsetX, p.OffsetX)
	set(device.FeatureOffsetY, p.OffsetY)

	return errors.Join(errs...)
}

// defaultSettings puts the device in free-running mode at the default frame rate.
func (c *Controller) defaultSettings(def preset.Preset) error {
	return errors.Join(
		device.Set(c.dev, device.FeatureFrameRate, def.FrameRate),
		device.Set(c.dev, device.FeatureFrameRateMode, device.ValueOn),
		device.Set(c.dev, device.FeatureTriggerMode, device.ValueOff),
	)
}

// triggerSettings arms the device for a burst from source.
func (c *Controller) triggerSettings(source string) error {
	var errs []error
	set := func(name string, v any) {
		if err := device.Set(c.dev, name, v); err != nil {
			errs = append(errs, err)
		}
	}

	set(device.FeatureTriggerActivation, device.ValueFallingEdge)
	set(device.FeatureFrameRateMode, device.ValueOn)

	if !c.opts.Quirks.legacy(c.family) {
		set(device.FeatureTriggerSelector, device.ValueFrameBurstStart)
		if r, err := device.RangeOf(c.dev, device.FeatureBurstFrameCount); err != nil {
			errs = append(errs, err)
		} else {
			set(device.FeatureBurstFrameCount, int(r.Max))
		}
	}

	set(device.FeatureTriggerMode, device.ValueOn)
	set(device.FeatureTriggerSource, source)
	return errors.Join(errs...)
}
