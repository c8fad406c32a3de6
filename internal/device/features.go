package device

import (
	"fmt"
	"strings"
)

// Feature names shared by GenICam-style drivers.
const (
	FeatureWidth               = "Width"
	FeatureHeight              = "Height"
	FeatureOffsetX             = "OffsetX"
	FeatureOffsetY             = "OffsetY"
	FeatureExposureTime        = "ExposureTime"
	FeatureExposureTimeMode    = "ExposureTimeMode"
	FeatureGain                = "Gain"
	FeatureFrameRate           = "AcquisitionFrameRate"
	FeatureFrameRateMode       = "AcquisitionFrameRateMode"
	FeatureCurrentFrameRate    = "CurrentAcquisitionFrameRate"
	FeatureTriggerMode         = "TriggerMode"
	FeatureTriggerSource       = "TriggerSource"
	FeatureTriggerSelector     = "TriggerSelector"
	FeatureTriggerActivation   = "TriggerActivation"
	FeatureTriggerDelay        = "TriggerDelay"
	FeatureBurstFrameCount     = "AcquisitionBurstFrameCount"
	FeaturePixelFormat         = "PixelFormat"
	FeatureBalanceWhiteAuto    = "BalanceWhiteAuto"
	FeatureThroughputLimit     = "DeviceLinkThroughputLimit"
	FeatureThroughputLimitMode = "DeviceLinkThroughputLimitMode"
	CommandTriggerSoftware     = "TriggerSoftware"
	CommandDeviceReset         = "DeviceReset"
	ValueOn                    = "On"
	ValueOff                   = "Off"
	ValueOnce                  = "Once"
	ValueFallingEdge           = "FallingEdge"
	ValueFrameBurstStart       = "FrameBurstStart"
	ValueExposureStandard      = "Standard"
	ValueExposureUltraShort    = "UltraShort"
	TriggerSourceSoftware      = "Software"
	TriggerSourceLine0         = "Line0"
	TriggerSourceLine2         = "Line2"
	TriggerSourceLine3         = "Line3"
)

const ultraShortExposureThresholdMicros = 20.0

// UltraShortExposure reports whether exposure (µs) needs the UltraShort exposure mode.
func UltraShortExposure(exposure float64) bool {
	return exposure < ultraShortExposureThresholdMicros
}

// PixelFormat names a GenICam pixel format.
type PixelFormat string

// Pixel formats understood by the frame pipeline.
const (
	Mono8     PixelFormat = "Mono8"
	Mono10    PixelFormat = "Mono10"
	Mono12    PixelFormat = "Mono12"
	Mono14    PixelFormat = "Mono14"
	Mono16    PixelFormat = "Mono16"
	BayerRG8  PixelFormat = "BayerRG8"
	BayerRG10 PixelFormat = "BayerRG10"
	BayerRG12 PixelFormat = "BayerRG12"
	BayerRG16 PixelFormat = "BayerRG16"
	RGB8      PixelFormat = "RGB8"
	BGR8      PixelFormat = "BGR8"
)

const validBits8 = "Bit0_7"

// IsMono reports whether the format carries a single gray channel.
func (p PixelFormat) IsMono() bool {
	return strings.HasPrefix(string(p), "Mono")
}

// BitDepth returns the significant bits per sample of the format.
func (p PixelFormat) BitDepth() int {
	s := string(p)
	switch {
	case strings.HasSuffix(s, "16"):
		return 16
	case strings.HasSuffix(s, "14"):
		return 14
	case strings.HasSuffix(s, "12"):
		return 12
	case strings.HasSuffix(s, "10"):
		return 10
	default:
		return 8
	}
}

// ValidBits returns the window of significant bits a converter should keep
// when reducing the format to 8 bits per sample.
func (p PixelFormat) ValidBits() string {
	switch p.BitDepth() {
	case 10:
		return "Bit2_9"
	case 12:
		return "Bit4_11"
	case 14:
		return "Bit6_13"
	case 16:
		return "Bit8_15"
	default:
		return validBits8
	}
}

// ColorSupport inspects the PixelFormat options of a device.
// A device supports colour when any option is not a mono format.
func ColorSupport(options []string) (mono, color bool) {
	for _, opt := range options {
		if PixelFormat(opt).IsMono() {
			mono = true
			continue
		}
		mono = true
		color = true
	}
	return mono, color
}

// Family classifies a camera model name into a device family used for quirk lookup.
func Family(model string) string {
	switch {
	case strings.Contains(model, "MER3"):
		return "MER3"
	case strings.Contains(model, "MER2"):
		return "MER2"
	case strings.Contains(model, "MER"):
		return "MER"
	default:
		return strings.ToUpper(model)
	}
}

// CommunicationError wraps a failure returned by a driver.
type CommunicationError struct {
	Op      string
	Feature string
	Err     error
}

func (e *CommunicationError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("device %s %s: %v", e.Op, e.Feature, e.Err)
	}
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// Float reads a numeric feature as float64.
func Float(d Device, name string) (float64, error) {
	v, err := d.GetFeature(name)
	if err != nil {
		return 0, &CommunicationError{Op: "get", Feature: name, Err: err}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, &CommunicationError{Op: "get", Feature: name, Err: fmt.Errorf("unexpected type %T", v)}
	}
}

// Set writes a feature and wraps driver failures.
func Set(d Device, name string, value any) error {
	if err := d.SetFeature(name, value); err != nil {
		return &CommunicationError{Op: "set", Feature: name, Err: err}
	}
	return nil
}

// RangeOf reads the range of a feature and wraps driver failures.
func RangeOf(d Device, name string) (Range, error) {
	r, err := d.FeatureRange(name)
	if err != nil {
		return Range{}, &CommunicationError{Op: "range", Feature: name, Err: err}
	}
	return r, nil
}

// Execute runs a command feature and wraps driver failures.
func Execute(d Device, name string) error {
	if err := d.ExecuteCommand(name); err != nil {
		return &CommunicationError{Op: "execute", Feature: name, Err: err}
	}
	return nil
}
