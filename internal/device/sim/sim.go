// Package sim provides a simulated camera driver.
//
// The simulated camera honours the same feature registry as a GenICam
// device: trigger mode and source gate frame delivery, width and height are
// validated against the current offsets, and the device clock advances by a
// fixed number of ticks per frame.
package sim

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/burstcam/internal/device"
)

// Errors returned by the simulated driver.
var (
	ErrUnknownFeature = errors.New("unknown feature")
	ErrOutOfRange     = errors.New("value out of range")
	ErrReadOnly       = errors.New("feature is read-only")
	ErrClosed         = errors.New("device closed")
)

// Config describes one simulated camera.
type Config struct {
	ID           string `toml:"id"`
	Model        string `toml:"model"`
	Serial       string `toml:"serial"`
	SensorWidth  int    `toml:"sensor_width"`
	SensorHeight int    `toml:"sensor_height"`
	Color        bool   `toml:"color"`
	// BitDepth of raw samples (8, 10, 12, 14, 16); 0 is 8.
	BitDepth int `toml:"bit_depth"`
	// TickStep is the device clock increment between consecutive frames.
	TickStep uint64 `toml:"tick_step"`
	// FramesPerTrigger is the number of frames delivered after each trigger; 0 is unlimited.
	FramesPerTrigger int `toml:"frames_per_trigger"`
	// FrameIntervalMs paces frame delivery in wall-clock time; 0 delivers on every pull.
	FrameIntervalMs int `toml:"frame_interval_ms"`
	// FailFeatures makes SetFeature fail for the named features.
	FailFeatures []string `toml:"fail_features"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "SIM-1440"
	}
	if c.ID == "" {
		c.ID = c.Model
	}
	if c.Serial == "" {
		c.Serial = "SIM0001"
	}
	if c.SensorWidth == 0 {
		c.SensorWidth = 1440
	}
	if c.SensorHeight == 0 {
		c.SensorHeight = 1080
	}
	if c.TickStep == 0 {
		c.TickStep = 1000
	}
	if c.BitDepth < 8 || c.BitDepth > 16 {
		c.BitDepth = 8
	}
	return c
}

// SetCall records one SetFeature call.
type SetCall struct {
	Name  string
	Value any
}

// Device is a simulated camera.
type Device struct {
	cfg       Config
	family    string
	mu        sync.Mutex
	features  map[string]any
	enums     map[string][]string
	streaming bool
	closed    bool
	pending   int // frames left for the current trigger, -1 is unlimited
	tick      uint64
	frameID   uint64
	lastFrame time.Time
	sets      []SetCall
	commands  []string
	pulls     int
}

type payload struct {
	tick uint64
	seed uint64
}

// New creates a simulated camera with the given configuration.
func New(cfg Config) *Device {
	cfg = cfg.withDefaults()
	formats := []string{rawFormat("Mono", cfg.BitDepth)}
	if cfg.Color {
		formats = append(formats, rawFormat("BayerRG", cfg.BitDepth))
	}

	d := &Device{
		cfg:    cfg,
		family: device.Family(cfg.Model),
		features: map[string]any{
			device.FeatureWidth:               cfg.SensorWidth,
			device.FeatureHeight:              cfg.SensorHeight,
			device.FeatureOffsetX:             0,
			device.FeatureOffsetY:             0,
			device.FeatureExposureTime:        10000.0,
			device.FeatureGain:                0.0,
			device.FeatureFrameRate:           30.0,
			device.FeatureFrameRateMode:       device.ValueOff,
			device.FeatureTriggerMode:         device.ValueOff,
			device.FeatureTriggerSource:       device.TriggerSourceSoftware,
			device.FeatureTriggerSelector:     "FrameStart",
			device.FeatureTriggerActivation:   "RisingEdge",
			device.FeatureTriggerDelay:        0.0,
			device.FeaturePixelFormat:         formats[len(formats)-1],
			device.FeatureBalanceWhiteAuto:    device.ValueOff,
			device.FeatureThroughputLimit:     100_000_000,
			device.FeatureThroughputLimitMode: device.ValueOn,
		},
		enums: map[string][]string{
			device.FeatureFrameRateMode:       {device.ValueOff, device.ValueOn},
			device.FeatureTriggerMode:         {device.ValueOff, device.ValueOn},
			device.FeatureTriggerSource:       {device.TriggerSourceSoftware, device.TriggerSourceLine0, device.TriggerSourceLine2, device.TriggerSourceLine3},
			device.FeatureTriggerSelector:     {"FrameStart"},
			device.FeatureTriggerActivation:   {"RisingEdge", device.ValueFallingEdge},
			device.FeaturePixelFormat:         formats,
			device.FeatureBalanceWhiteAuto:    {device.ValueOff, device.ValueOnce, "Continuous"},
			device.FeatureThroughputLimitMode: {device.ValueOff, device.ValueOn},
		},
	}

	// First generation MER cameras lack burst selection and exposure time modes.
	if d.family != "MER" {
		d.features[device.FeatureBurstFrameCount] = 1
		d.features[device.FeatureExposureTimeMode] = device.ValueExposureStandard
		d.enums[device.FeatureExposureTimeMode] = []string{device.ValueExposureStandard, device.ValueExposureUltraShort}
		d.enums[device.FeatureTriggerSelector] = []string{"FrameStart", device.ValueFrameBurstStart}
	}
	return d
}

// Info implements device.Device.
func (d *Device) Info() device.Info {
	return device.Info{ID: d.cfg.ID, Model: d.cfg.Model, Serial: d.cfg.Serial, Vendor: "sim"}
}

// StreamOn implements device.Device.
func (d *Device) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.streaming = true
	return nil
}

// StreamOff implements device.Device.
func (d *Device) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.streaming = false
	return nil
}

// TryPullFrame implements device.Device.
func (d *Device) TryPullFrame() (*device.RawFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pulls++

	if d.closed {
		return nil, ErrClosed
	}
	if !d.streaming {
		return nil, nil
	}
	if interval := time.Duration(d.cfg.FrameIntervalMs) * time.Millisecond; interval > 0 && time.Since(d.lastFrame) < interval {
		return nil, nil
	}
	if d.features[device.FeatureTriggerMode] == device.ValueOn {
		if d.pending == 0 {
			return nil, nil
		}
		if d.pending > 0 {
			d.pending--
		}
	}

	d.frameID++
	d.tick += d.cfg.TickStep
	d.lastFrame = time.Now()

	return &device.RawFrame{
		FrameID:     d.frameID,
		Width:       d.features[device.FeatureWidth].(int),
		Height:      d.features[device.FeatureHeight].(int),
		PixelFormat: device.PixelFormat(d.features[device.FeaturePixelFormat].(string)),
		Data:        payload{tick: d.tick, seed: d.frameID},
	}, nil
}

// GetFeature implements device.Device.
func (d *Device) GetFeature(name string) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if name == device.FeatureCurrentFrameRate {
		return d.currentFrameRate(), nil
	}
	v, ok := d.features[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return v, nil
}

// currentFrameRate is the rate the sensor achieves with the current exposure.
func (d *Device) currentFrameRate() float64 {
	exposure := d.features[device.FeatureExposureTime].(float64)
	limit := math.Min(1e6/math.Max(exposure, 1), 5000)
	if d.features[device.FeatureFrameRateMode] == device.ValueOn {
		return math.Min(d.features[device.FeatureFrameRate].(float64), limit)
	}
	return limit
}

// SetFeature implements device.Device.
func (d *Device) SetFeature(name string, value any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets = append(d.sets, SetCall{Name: name, Value: value})

	if d.closed {
		return ErrClosed
	}
	if slices.Contains(d.cfg.FailFeatures, name) {
		return fmt.Errorf("simulated failure setting %s", name)
	}
	if name == device.FeatureCurrentFrameRate {
		return ErrReadOnly
	}
	current, ok := d.features[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}

	if options, isEnum := d.enums[name]; isEnum {
		s, isString := value.(string)
		if !isString || !slices.Contains(options, s) {
			return fmt.Errorf("%w: %s=%v", ErrOutOfRange, name, value)
		}
		d.features[name] = s
		d.onEnumChanged(name, s)
		return nil
	}

	r := d.rangeLocked(name)
	n, err := toFloat(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if n < r.Min || n > r.Max {
		return fmt.Errorf("%w: %s=%v not in [%v, %v]", ErrOutOfRange, name, value, r.Min, r.Max)
	}
	switch current.(type) {
	case int:
		d.features[name] = int(n)
	default:
		d.features[name] = n
	}
	return nil
}

func (d *Device) onEnumChanged(name, value string) {
	if name == device.FeatureTriggerMode {
		d.pending = 0
	}
	if name == device.FeatureBalanceWhiteAuto && value == device.ValueOnce {
		// Once settles immediately on a simulated sensor.
		d.features[name] = device.ValueOff
	}
}

// FeatureRange implements device.Device.
func (d *Device) FeatureRange(name string) (device.Range, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if options, ok := d.enums[name]; ok {
		return device.Range{Options: slices.Clone(options)}, nil
	}
	if _, ok := d.features[name]; !ok && name != device.FeatureCurrentFrameRate {
		return device.Range{}, fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
	return d.rangeLocked(name), nil
}

func (d *Device) rangeLocked(name string) device.Range {
	w, h := d.cfg.SensorWidth, d.cfg.SensorHeight
	switch name {
	case device.FeatureWidth:
		return device.Range{Min: 16, Max: float64(w - d.features[device.FeatureOffsetX].(int)), Step: 1}
	case device.FeatureHeight:
		return device.Range{Min: 2, Max: float64(h - d.features[device.FeatureOffsetY].(int)), Step: 1}
	case device.FeatureOffsetX:
		return device.Range{Min: 0, Max: float64(w - d.features[device.FeatureWidth].(int)), Step: 1}
	case device.FeatureOffsetY:
		return device.Range{Min: 0, Max: float64(h - d.features[device.FeatureHeight].(int)), Step: 1}
	case device.FeatureExposureTime:
		return device.Range{Min: 1, Max: 1_000_000}
	case device.FeatureGain:
		return device.Range{Min: 0, Max: 24}
	case device.FeatureFrameRate:
		return device.Range{Min: 0.1, Max: 5000}
	case device.FeatureCurrentFrameRate:
		return device.Range{Min: 0, Max: 5000}
	case device.FeatureTriggerDelay:
		return device.Range{Min: 0, Max: 3_000_000}
	case device.FeatureBurstFrameCount:
		return device.Range{Min: 1, Max: 255, Step: 1}
	case device.FeatureThroughputLimit:
		return device.Range{Min: 1_000_000, Max: 400_000_000, Step: 1}
	default:
		return device.Range{}
	}
}

// ExecuteCommand implements device.Device.
func (d *Device) ExecuteCommand(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, name)

	if d.closed {
		return ErrClosed
	}
	switch name {
	case device.CommandTriggerSoftware:
		if d.features[device.FeatureTriggerSource] == device.TriggerSourceSoftware {
			d.armLocked()
		}
		return nil
	case device.CommandDeviceReset:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFeature, name)
	}
}

// Fire simulates an edge on the external trigger line.
func (d *Device) Fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.features[device.FeatureTriggerSource] != device.TriggerSourceSoftware {
		d.armLocked()
	}
}

func (d *Device) armLocked() {
	if d.features[device.FeatureTriggerMode] != device.ValueOn {
		return
	}
	if d.cfg.FramesPerTrigger > 0 {
		d.pending = d.cfg.FramesPerTrigger
	} else {
		d.pending = -1
	}
}

// Convert implements device.Device.
func (d *Device) Convert(raw *device.RawFrame, target device.PixelFormat) ([]byte, error) {
	p, ok := raw.Data.(payload)
	if !ok {
		return nil, fmt.Errorf("frame %d was not produced by the simulator", raw.FrameID)
	}
	var low, high int
	if _, err := fmt.Sscanf(raw.PixelFormat.ValidBits(), "Bit%d_%d", &low, &high); err != nil {
		return nil, fmt.Errorf("bad valid bits for %s: %w", raw.PixelFormat, err)
	}
	// Raw samples carry the 8-bit pattern in their top bits; keeping the
	// valid window recovers it.
	depth := raw.PixelFormat.BitDepth()
	sample := func(v byte) byte {
		return byte(uint32(v) << (depth - 8) >> low)
	}

	w, h := raw.Width, raw.Height
	seed := byte(p.seed)
	switch target {
	case device.Mono8:
		buf := make([]byte, w*h)
		for y := range h {
			row := buf[y*w : (y+1)*w]
			for x := range row {
				row[x] = sample(byte(x+y) + seed)
			}
		}
		return buf, nil
	case device.RGB8:
		buf := make([]byte, w*h*3)
		for y := range h {
			for x := range w {
				i := (y*w + x) * 3
				buf[i] = sample(byte(x))
				buf[i+1] = sample(byte(y))
				buf[i+2] = sample(seed)
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported conversion target %s", target)
	}
}

// rawFormat names the pixel format of a sensor family at depth bits.
func rawFormat(family string, depth int) string {
	return fmt.Sprintf("%s%d", family, depth)
}

// Timestamp implements device.Device.
func (d *Device) Timestamp(raw *device.RawFrame) uint64 {
	if p, ok := raw.Data.(payload); ok {
		return p.tick
	}
	return 0
}

// Close implements device.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.streaming = false
	return nil
}

// Streaming reports whether the stream is on.
func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Feature returns the current value of a feature without recording a call.
func (d *Device) Feature(name string) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.features[name]
}

// SetCalls returns every SetFeature call in order.
func (d *Device) SetCalls() []SetCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.sets)
}

// Commands returns every executed command in order.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.commands)
}

// Pulls returns the number of TryPullFrame calls.
func (d *Device) Pulls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pulls
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
