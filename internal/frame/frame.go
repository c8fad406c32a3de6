// Package frame holds decoded camera frames, bursts, and the per-frame transform chain.
package frame

import (
	"fmt"
	"image"
	"time"

	"github.com/smazurov/burstcam/internal/preset"
)

// Frame is one decoded image from a camera.
type Frame struct {
	Image           image.Image
	Channels        int
	FrameID         uint64
	DeviceTimestamp uint64
}

// Width returns the image width in pixels.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the image height in pixels.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// FromBuffer wraps a packed Mono8 (channels 1) or RGB8 (channels 3) buffer.
// RGB8 data is expanded into an opaque NRGBA image.
func FromBuffer(buf []byte, width, height, channels int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(buf) < width*height*channels {
		return nil, fmt.Errorf("buffer too short: got %d bytes for %dx%dx%d", len(buf), width, height, channels)
	}

	rect := image.Rect(0, 0, width, height)
	switch channels {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, buf[:width*height])
		return &Frame{Image: img, Channels: 1}, nil
	case 3:
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < width*height*3; i, j = i+3, j+4 {
			img.Pix[j] = buf[i]
			img.Pix[j+1] = buf[i+1]
			img.Pix[j+2] = buf[i+2]
			img.Pix[j+3] = 0xff
		}
		return &Frame{Image: img, Channels: 3}, nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
}

// ExitReason records why an acquisition run ended.
type ExitReason string

const (
	ReasonQuantity   ExitReason = "quantity"
	ReasonDuration   ExitReason = "duration"
	ReasonTimeout    ExitReason = "timeout"
	ReasonArmTimeout ExitReason = "arm_timeout"
	ReasonStopped    ExitReason = "stopped"
	ReasonFailed     ExitReason = "failed"
)

// Burst is the ordered output of one trigger activation.
// Timestamps[i] belongs to Frames[i]; Timestamps[0] is always 0.
// Consumers must treat a Burst as read-only.
type Burst struct {
	CameraID   string
	Frames     []*Frame
	Timestamps []float64
	Preset     preset.Preset
	Reason     ExitReason
	StartedAt  time.Time
	Duration   time.Duration
}

// Len returns the number of frames in the burst.
func (b *Burst) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Frames)
}

// Append adds a frame with its relative timestamp.
func (b *Burst) Append(f *Frame, ts float64) {
	b.Frames = append(b.Frames, f)
	b.Timestamps = append(b.Timestamps, ts)
}

// Slice returns the frames in [start, end] inclusive as a new burst.
// Timestamps are rebased so the first selected frame is at 0.
func (b *Burst) Slice(start, end int) (*Burst, error) {
	if start < 0 || end >= b.Len() || start > end {
		return nil, fmt.Errorf("invalid frame range [%d, %d] for burst of %d frames", start, end, b.Len())
	}
	out := &Burst{
		CameraID:  b.CameraID,
		Preset:    b.Preset,
		Reason:    b.Reason,
		StartedAt: b.StartedAt,
		Duration:  b.Duration,
	}
	origin := b.Timestamps[start]
	for i := start; i <= end; i++ {
		out.Append(b.Frames[i], b.Timestamps[i]-origin)
	}
	return out, nil
}
