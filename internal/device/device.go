// Package device defines the capability interface that camera drivers implement.
//
// A driver wraps a vendor SDK connection and exposes a feature registry
// (named parameters with get/set/range), stream control, and a non-blocking
// raw frame pull. The camera controller never talks to an SDK directly.
package device

import "context"

// Info describes an enumerated camera.
type Info struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	Serial string `json:"serial"`
	Vendor string `json:"vendor,omitempty"`
}

// RawFrame is an undecoded frame as delivered by the driver.
// Data is opaque to everything except the driver that produced it.
type RawFrame struct {
	FrameID     uint64
	Width       int
	Height      int
	PixelFormat PixelFormat
	Data        any
}

// Range describes the legal values of a numeric or enum feature.
type Range struct {
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Step    float64  `json:"step,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Clamp limits v to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if r.Max > r.Min && v > r.Max {
		return r.Max
	}
	return v
}

// Device is the capability interface a camera driver exposes.
type Device interface {
	Info() Info

	StreamOn() error
	StreamOff() error

	// TryPullFrame returns the next available frame without blocking for long.
	// A nil frame with a nil error means no frame is available yet.
	// Errors are reserved for genuine device faults.
	TryPullFrame() (*RawFrame, error)

	GetFeature(name string) (any, error)
	SetFeature(name string, value any) error
	FeatureRange(name string) (Range, error)
	ExecuteCommand(name string) error

	// Convert decodes raw into a packed pixel buffer of the target format.
	Convert(raw *RawFrame, target PixelFormat) ([]byte, error)
	// Timestamp returns the device clock value of raw, monotonic within a session.
	Timestamp(raw *RawFrame) uint64

	Close() error
}

// Enumerator discovers and opens cameras.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]Info, error)
	Open(ctx context.Context, info Info) (Device, error)
}
